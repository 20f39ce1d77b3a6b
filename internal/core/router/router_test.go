package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/cellar-rack/internal/core/config"
	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
	"github.com/mohammed-shakir/cellar-rack/internal/inventory"
	"github.com/mohammed-shakir/cellar-rack/internal/rack/bincode"
	"github.com/mohammed-shakir/cellar-rack/internal/rack/layout"
	"github.com/mohammed-shakir/cellar-rack/internal/wineapi"
)

type fakeInventory struct {
	err       error
	lastStore model.StoreID
	lastBin   model.BinID
	lastToken string
	consumed  int
	added     model.NewBottleRequest
	patched   model.PatchBottleRequest
}

func (f *fakeInventory) Layout(ctx context.Context, store model.StoreID) (inventory.Rendered, error) {
	f.lastStore = store
	if f.err != nil {
		return inventory.Rendered{}, f.err
	}
	return inventory.Rendered{Body: []byte(`{"store":5,"cells":[]}`), ETag: `"00000000000000ab"`}, nil
}

func (f *fakeInventory) Bin(_ context.Context, store model.StoreID, id model.BinID) (inventory.BinContents, error) {
	f.lastStore, f.lastBin = store, id
	if f.err != nil {
		return inventory.BinContents{}, f.err
	}
	return inventory.BinContents{BinID: id, Column: 3, Row: 7, Label: "Row 7, Bin 3", Bottles: []model.StoreBottle{}}, nil
}

func (f *fakeInventory) LabelPNG(model.StoreID, model.BinID) ([]byte, error) {
	return []byte("\x89PNG"), f.err
}

func (f *fakeInventory) LabelSheet(model.StoreID) ([]byte, error) {
	return []byte("%PDF-1.3"), f.err
}

func (f *fakeInventory) Consume(ctx context.Context, _ model.StoreID, id int) (model.Bottle, error) {
	f.consumed = id
	f.lastToken = wineapi.Token(ctx)
	return model.Bottle{ID: id}, f.err
}

func (f *fakeInventory) AddBottle(_ context.Context, store model.StoreID, req model.NewBottleRequest) (model.Bottle, error) {
	f.lastStore, f.added = store, req
	return model.Bottle{ID: 77, NewBottleRequest: req}, f.err
}

func (f *fakeInventory) PatchBottle(
	_ context.Context, store model.StoreID, from model.BinID, id int, req model.PatchBottleRequest,
) (model.Bottle, error) {
	f.lastStore, f.lastBin, f.consumed, f.patched = store, from, id, req
	return model.Bottle{ID: id}, f.err
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// newMux mounts the routes as a headless deployment with a service token.
func newMux(inv Inventory) http.Handler {
	return newMuxWith(config.Config{DefaultStore: 5, WineAPIToken: "service-token"}, inv, nil)
}

func newMuxWith(cfg config.Config, inv Inventory, cat Catalog) http.Handler {
	r := chi.NewRouter()
	Mount(r, quiet, cfg, inv, cat)
	return r
}

func do(h http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLayout_ETagAndNotModified(t *testing.T) {
	inv := &fakeInventory{}
	h := newMux(inv)

	rr := do(h, http.MethodGet, "/stores/5/layout", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	etag := rr.Header().Get("ETag")
	if etag != `"00000000000000ab"` || inv.lastStore != 5 {
		t.Fatalf("etag=%q store=%d", etag, inv.lastStore)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}

	rr = do(h, http.MethodGet, "/stores/5/layout", map[string]string{"If-None-Match": `W/"x", ` + etag})
	if rr.Code != http.StatusNotModified || rr.Body.Len() != 0 {
		t.Fatalf("status=%d len=%d want 304 empty", rr.Code, rr.Body.Len())
	}
}

func TestBin_DecodesParams(t *testing.T) {
	inv := &fakeInventory{}
	rr := do(newMux(inv), http.MethodGet, "/stores/5/bins/5307", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var bc inventory.BinContents
	if err := json.Unmarshal(rr.Body.Bytes(), &bc); err != nil {
		t.Fatal(err)
	}
	if inv.lastBin != 5307 || bc.Label != "Row 7, Bin 3" {
		t.Fatalf("bin=%d body=%+v", inv.lastBin, bc)
	}
}

func TestLabelsContentTypes(t *testing.T) {
	h := newMux(&fakeInventory{})
	if rr := do(h, http.MethodGet, "/stores/5/bins/5307/label.png", nil); rr.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("png content-type=%q", rr.Header().Get("Content-Type"))
	}
	if rr := do(h, http.MethodGet, "/stores/5/labels.pdf", nil); rr.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf content-type=%q", rr.Header().Get("Content-Type"))
	}
}

func TestConsume_ForwardsBearer(t *testing.T) {
	inv := &fakeInventory{}
	rr := do(newMux(inv), http.MethodPost, "/stores/5/bottles/42/consume",
		map[string]string{"Authorization": "Bearer user-token"})
	if rr.Code != http.StatusOK || inv.consumed != 42 {
		t.Fatalf("status=%d consumed=%d", rr.Code, inv.consumed)
	}
	if inv.lastToken != "user-token" {
		t.Fatalf("forwarded token=%q", inv.lastToken)
	}
}

func TestDefaultStoreRedirect(t *testing.T) {
	rr := do(newMux(&fakeInventory{}), http.MethodGet, "/stores", nil)
	if rr.Code != http.StatusTemporaryRedirect || rr.Header().Get("Location") != "/stores/5/layout" {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"bad store", "/stores/abc/layout", nil, http.StatusBadRequest},
		{"negative bin", "/stores/5/bins/-1", nil, http.StatusBadRequest},
		{"foreign bin", "/stores/5/bins/4615", bincode.ErrForeignBin, http.StatusBadRequest},
		{"off grid", "/stores/5/bins/5703", inventory.ErrUnknownBin, http.StatusNotFound},
		{"empty rack", "/stores/5/layout", &layout.InvalidInputError{Reason: layout.ErrEmptyInventory}, http.StatusUnprocessableEntity},
		{"upstream 404", "/stores/5/layout", &wineapi.Error{Status: 404}, http.StatusNotFound},
		{"upstream 401", "/stores/5/layout", &wineapi.Error{Status: 401}, http.StatusUnauthorized},
		{"upstream 500", "/stores/5/layout", &wineapi.Error{Status: 500}, http.StatusBadGateway},
		{"timeout", "/stores/5/layout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", "/stores/5/layout", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(newMux(&fakeInventory{err: tc.err}), http.MethodGet, tc.path, nil)
			if rr.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tc.want, rr.Body)
			}
			var body struct {
				Errors []string `json:"errors"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || len(body.Errors) == 0 {
				t.Fatalf("error body=%s", rr.Body)
			}
		})
	}
}

func TestEtagMatch(t *testing.T) {
	if !etagMatch("*", `"a"`) || !etagMatch(`"b", "a"`, `"a"`) || etagMatch(`"b"`, `"a"`) || etagMatch("", `"a"`) {
		t.Fatal("etagMatch mismatch")
	}
}

func TestAddBottle_Created(t *testing.T) {
	inv := &fakeInventory{}
	rr := send(newMux(inv), http.MethodPost, "/stores/5/bottles", `{"wineId":3,"binX":2,"binY":4}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if inv.lastStore != 5 || inv.added.WineID != 3 || inv.added.BinX != 2 || inv.added.BinY != 4 {
		t.Fatalf("store=%d req=%+v", inv.lastStore, inv.added)
	}
}

func TestPatchBottle_DecodesPathAndBody(t *testing.T) {
	inv := &fakeInventory{}
	rr := send(newMux(inv), http.MethodPatch, "/stores/5/bins/5307/bottles/12", `{"binX":4,"binY":8}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if inv.lastBin != 5307 || inv.consumed != 12 {
		t.Fatalf("bin=%d bottle=%d", inv.lastBin, inv.consumed)
	}
	if inv.patched.BinX == nil || *inv.patched.BinX != 4 || inv.patched.Consumed != nil {
		t.Fatalf("req=%+v", inv.patched)
	}
}

func TestBottleBody_Rejected(t *testing.T) {
	for _, body := range []string{``, `{"wineId":"three"}`, `{"wineId":3,"colour":"red"}`} {
		inv := &fakeInventory{}
		if rr := send(newMux(inv), http.MethodPost, "/stores/5/bottles", body); rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status=%d want 400", body, rr.Code)
		}
		if inv.lastStore != 0 {
			t.Fatalf("body %q reached the service", body)
		}
	}
}

func TestBottleWrites_MapServiceErrors(t *testing.T) {
	inv := &fakeInventory{err: fmt.Errorf("target: %w", bincode.ErrCoordinateOutOfRange)}
	if rr := send(newMux(inv), http.MethodPatch, "/stores/5/bins/5307/bottles/12", `{"binX":9}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", rr.Code)
	}
	inv.err = fmt.Errorf("from: %w", inventory.ErrUnknownBin)
	if rr := send(newMux(inv), http.MethodPatch, "/stores/5/bins/5399/bottles/12", `{}`); rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rr.Code)
	}
}
