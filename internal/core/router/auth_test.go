package router

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mohammed-shakir/cellar-rack/internal/cache"
	"github.com/mohammed-shakir/cellar-rack/internal/core/config"
	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
	"github.com/mohammed-shakir/cellar-rack/internal/inventory"
	"github.com/mohammed-shakir/cellar-rack/internal/rack/layout"
	"github.com/mohammed-shakir/cellar-rack/internal/wineapi"
)

// guardedAPI answers like the wine API: nothing without a token.
type guardedAPI struct {
	mu    sync.Mutex
	calls int
}

func (a *guardedAPI) check(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if wineapi.Token(ctx) == "" {
		return &wineapi.Error{Op: "test", Status: http.StatusUnauthorized}
	}
	return nil
}

func (a *guardedAPI) StoreInventory(ctx context.Context, _ model.StoreID) ([]model.OccupiedLocation, error) {
	if err := a.check(ctx); err != nil {
		return nil, err
	}
	return []model.OccupiedLocation{{Column: 1, Row: 1, Count: 4}}, nil
}

func (a *guardedAPI) BottlesByBin(ctx context.Context, _ model.BinID) ([]model.StoreBottle, error) {
	if err := a.check(ctx); err != nil {
		return nil, err
	}
	return []model.StoreBottle{{BottleID: 12, Label: "Reserve", BinX: 1, BinY: 1}}, nil
}

func (a *guardedAPI) AddBottle(ctx context.Context, req model.NewBottleRequest) (model.Bottle, error) {
	return model.Bottle{NewBottleRequest: req}, a.check(ctx)
}

func (a *guardedAPI) PatchBottle(ctx context.Context, id int, _ model.PatchBottleRequest) (model.Bottle, error) {
	return model.Bottle{ID: id}, a.check(ctx)
}

func (a *guardedAPI) ConsumeBottle(ctx context.Context, id int) (model.Bottle, error) {
	return model.Bottle{ID: id}, a.check(ctx)
}

func cachedInventory(t *testing.T, api inventory.Upstream) *inventory.Service {
	t.Helper()
	b, err := layout.New()
	if err != nil {
		t.Fatal(err)
	}
	c, err := cache.New(quiet, nil, 16, 0)
	if err != nil {
		t.Fatal(err)
	}
	return inventory.New(quiet, api, b, c, inventory.Config{LayoutTTL: time.Minute, BinTTL: time.Minute})
}

func TestAuth_AnonymousRequestAfterAuthenticatedFill(t *testing.T) {
	api := &guardedAPI{}
	h := newMuxWith(config.Config{DefaultStore: 5}, cachedInventory(t, api), nil)
	bearer := map[string]string{"Authorization": "Bearer user-token"}

	for _, path := range []string{"/stores/5/layout", "/stores/5/bins/5101"} {
		if rr := do(h, http.MethodGet, path, bearer); rr.Code != http.StatusOK {
			t.Fatalf("%s authenticated: status=%d body=%s", path, rr.Code, rr.Body)
		}
		rr := do(h, http.MethodGet, path, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s anonymous after fill: status=%d body=%s", path, rr.Code, rr.Body)
		}
		if strings.Contains(rr.Body.String(), "Reserve") || strings.Contains(rr.Body.String(), `"count":4`) {
			t.Fatalf("%s leaked cached data: %s", path, rr.Body)
		}
		if rr.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("%s missing WWW-Authenticate", path)
		}
	}
	if api.calls != 2 {
		t.Fatalf("upstream calls=%d want 2 (one fill per view)", api.calls)
	}
}

func TestAuth_ServiceTokenAllowsHeadlessCalls(t *testing.T) {
	h := newMuxWith(config.Config{DefaultStore: 5, WineAPIToken: "svc"}, &fakeInventory{}, nil)
	if rr := do(h, http.MethodGet, "/stores/5/layout", nil); rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200 with a service token", rr.Code)
	}
}

func TestAuth_ExpiredBearerRejected(t *testing.T) {
	sign := func(exp time.Time) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).
			SignedString([]byte("k"))
		if err != nil {
			t.Fatal(err)
		}
		return tok
	}
	h := newMuxWith(config.Config{DefaultStore: 5, WineAPIToken: "svc"}, &fakeInventory{}, nil)

	rr := do(h, http.MethodGet, "/stores/5/layout",
		map[string]string{"Authorization": "Bearer " + sign(time.Now().Add(-time.Minute))})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expired: status=%d want 401", rr.Code)
	}
	rr = do(h, http.MethodGet, "/stores/5/layout",
		map[string]string{"Authorization": "Bearer " + sign(time.Now().Add(time.Hour))})
	if rr.Code != http.StatusOK {
		t.Fatalf("valid: status=%d want 200", rr.Code)
	}
}

func TestAuth_LabelsStayPublic(t *testing.T) {
	h := newMuxWith(config.Config{DefaultStore: 5}, &fakeInventory{}, nil)
	for _, path := range []string{"/stores/5/bins/5307/label.png", "/stores/5/labels.pdf", "/stores"} {
		if rr := do(h, http.MethodGet, path, nil); rr.Code == http.StatusUnauthorized {
			t.Fatalf("%s requires auth", path)
		}
	}
	for _, path := range []string{"/stores/5/bottles/1/consume", "/stores/5/bottles"} {
		if rr := do(h, http.MethodPost, path, nil); rr.Code != http.StatusUnauthorized {
			t.Fatalf("POST %s: status=%d want 401", path, rr.Code)
		}
	}
}
