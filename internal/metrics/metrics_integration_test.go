package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/cellar-rack/internal/core/observability"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func Test_AppMetrics_CustomRegistry_Smoke(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test"}})
	observability.Init(p.Registerer())
	observability.ExposeBuildInfo("test")

	observability.ObserveLayoutBuild("ok")
	observability.ObserveCacheOp("get", nil, 0.002)
	observability.ObserveCacheOp("del", errors.New("down"), 0.002)
	observability.IncCacheHit("local")
	observability.ObserveInvalidation("consume", nil)
	observability.ObserveUpstream("store_inventory", 200, 0.05)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()

	assertHasMetricLine(t, body, "rack_layout_builds_total", `outcome="ok"`)
	assertHasMetricLine(t, body, "cache_op_total", `op="del"`, `result="error"`)
	assertHasMetricLine(t, body, "cache_results_total", `tier="local"`, `outcome="hit"`)
	assertHasMetricLine(t, body, "invalidation_events_total", `op="consume"`)
	assertHasMetricLine(t, body, "upstream_latency_seconds_bucket", `operation="store_inventory"`)
	assertHasMetricLine(t, body, "app_build_info", `version="test"`)
}
