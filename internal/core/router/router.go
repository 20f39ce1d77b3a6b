// Package router maps the rack HTTP surface onto the inventory service.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/cellar-rack/internal/core/config"
	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
	"github.com/mohammed-shakir/cellar-rack/internal/core/observability"
	"github.com/mohammed-shakir/cellar-rack/internal/inventory"
	"github.com/mohammed-shakir/cellar-rack/internal/logger"
	"github.com/mohammed-shakir/cellar-rack/internal/rack/bincode"
	"github.com/mohammed-shakir/cellar-rack/internal/rack/layout"
	"github.com/mohammed-shakir/cellar-rack/internal/wineapi"
)

// Inventory serves the rack views, satisfied by *inventory.Service.
type Inventory interface {
	Layout(ctx context.Context, store model.StoreID) (inventory.Rendered, error)
	Bin(ctx context.Context, store model.StoreID, id model.BinID) (inventory.BinContents, error)
	LabelPNG(store model.StoreID, id model.BinID) ([]byte, error)
	LabelSheet(store model.StoreID) ([]byte, error)
	Consume(ctx context.Context, store model.StoreID, bottleID int) (model.Bottle, error)
	AddBottle(ctx context.Context, store model.StoreID, req model.NewBottleRequest) (model.Bottle, error)
	PatchBottle(ctx context.Context, store model.StoreID, from model.BinID, bottleID int, req model.PatchBottleRequest) (model.Bottle, error)
}

type handlers struct {
	logger *slog.Logger
	cfg    config.Config
	inv    Inventory
	cat    Catalog
}

// Mount registers the rack routes on r, and the catalog routes when cat is
// not nil.
func Mount(r chi.Router, logger *slog.Logger, cfg config.Config, inv Inventory, cat Catalog) {
	h := &handlers{logger: logger, cfg: cfg, inv: inv, cat: cat}

	r.Get("/stores", observe("/stores", h.defaultStore))
	r.Route("/stores/{storeID}", func(r chi.Router) {
		r.Get("/layout", observe("/stores/{storeID}/layout", h.authed(h.layout)))
		r.Get("/labels.pdf", observe("/stores/{storeID}/labels.pdf", h.labelSheet))
		r.Get("/bins/{binID}", observe("/stores/{storeID}/bins/{binID}", h.authed(h.bin)))
		r.Get("/bins/{binID}/label.png", observe("/stores/{storeID}/bins/{binID}/label.png", h.binLabel))
		r.Patch("/bins/{binID}/bottles/{bottleID}",
			observe("/stores/{storeID}/bins/{binID}/bottles/{bottleID}", h.authed(h.patchBottle)))
		r.Post("/bottles", observe("/stores/{storeID}/bottles", h.authed(h.addBottle)))
		r.Post("/bottles/{bottleID}/consume", observe("/stores/{storeID}/bottles/{bottleID}/consume", h.authed(h.consume)))
	})
	if cat != nil {
		h.mountCatalog(r)
	}
}

// errUnauthenticated marks a request that carries no credentials while the
// service has none of its own to fall back on.
var errUnauthenticated = errors.New("authentication required")

// authed rejects requests that could not authenticate upstream: no bearer
// token and no service token, or a bearer JWT that has already expired.
// Cached views are answered without an upstream call, so this is the only
// check they get.
func (h *handlers) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := wineapi.Token(r.Context())
		switch {
		case tok == "" && strings.TrimSpace(h.cfg.WineAPIToken) == "":
			h.unauthenticated(w, r, "no bearer token")
			return
		case tok != "":
			if exp, err := wineapi.TokenExpiry(tok); err == nil {
				if (wineapi.Session{Token: tok, Expires: exp}).Expired(time.Now()) {
					h.unauthenticated(w, r, "bearer token expired")
					return
				}
			}
		}
		next(w, r)
	}
}

func (h *handlers) unauthenticated(w http.ResponseWriter, r *http.Request, why string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="cellar"`)
	h.fail(w, r, fmt.Errorf("%w: %s", errUnauthenticated, why))
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// observe records request metrics under the route pattern and forwards the
// caller's bearer token to the wine API.
func observe(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		ctx := r.Context()
		if tok := wineapi.BearerToken(r.Header.Get("Authorization")); tok != "" {
			ctx = wineapi.WithToken(ctx, tok)
		}
		next(sw, r.WithContext(ctx))
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

func (h *handlers) defaultStore(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, fmt.Sprintf("/stores/%d/layout", h.cfg.DefaultStore), http.StatusTemporaryRedirect)
}

func (h *handlers) layout(w http.ResponseWriter, r *http.Request) {
	store, err := storeParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.inv.Layout(logger.WithStore(r.Context(), int(store)), store)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("ETag", res.ETag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatch(r.Header.Get("If-None-Match"), res.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(res.Body)
}

func (h *handlers) bin(w http.ResponseWriter, r *http.Request) {
	store, bin, err := binParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bc, err := h.inv.Bin(logger.WithStore(r.Context(), int(store)), store, bin)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bc)
}

func (h *handlers) binLabel(w http.ResponseWriter, r *http.Request) {
	store, bin, err := binParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	png, err := h.inv.LabelPNG(store, bin)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (h *handlers) labelSheet(w http.ResponseWriter, r *http.Request) {
	store, err := storeParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pdf, err := h.inv.LabelSheet(store)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="store-%d-labels.pdf"`, int(store)))
	_, _ = w.Write(pdf)
}

func (h *handlers) consume(w http.ResponseWriter, r *http.Request) {
	store, err := storeParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bottleID, err := intParam(r, "bottleID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.inv.Consume(logger.WithStore(r.Context(), int(store)), store, bottleID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handlers) addBottle(w http.ResponseWriter, r *http.Request) {
	store, err := storeParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.NewBottleRequest
	if err := readJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.inv.AddBottle(logger.WithStore(r.Context(), int(store)), store, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *handlers) patchBottle(w http.ResponseWriter, r *http.Request) {
	store, bin, err := binParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bottleID, err := intParam(r, "bottleID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.PatchBottleRequest
	if err := readJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.inv.PatchBottle(logger.WithStore(r.Context(), int(store)), store, bin, bottleID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// errBadParam marks a malformed path parameter.
var errBadParam = errors.New("bad path parameter")

// errBadBody marks a request body that is not the expected JSON.
var errBadBody = errors.New("bad request body")

const maxBody = 64 << 10

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", errBadParam, name, raw)
	}
	return n, nil
}

func storeParam(r *http.Request) (model.StoreID, error) {
	n, err := intParam(r, "storeID")
	return model.StoreID(n), err
}

func binParams(r *http.Request) (model.StoreID, model.BinID, error) {
	store, err := storeParam(r)
	if err != nil {
		return 0, 0, err
	}
	bin, err := intParam(r, "binID")
	return store, model.BinID(bin), err
}

// etagMatch implements the weak comparison of If-None-Match.
func etagMatch(header, etag string) bool {
	if header == "" || etag == "" {
		return false
	}
	for c := range strings.SplitSeq(header, ",") {
		c = strings.TrimPrefix(strings.TrimSpace(c), "W/")
		if c == "*" || c == etag {
			return true
		}
	}
	return false
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var inv *layout.InvalidInputError
	var api *wineapi.Error
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errBadParam),
		errors.Is(err, errBadBody),
		errors.Is(err, bincode.ErrForeignBin),
		errors.Is(err, bincode.ErrCoordinateOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, inventory.ErrUnknownBin):
		return http.StatusNotFound
	case errors.As(err, &inv):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wineapi.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &api) && (api.Status == http.StatusUnauthorized || api.Status == http.StatusForbidden):
		return api.Status
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &api):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", code, "err", err)
	} else {
		h.logger.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", code, "err", err)
	}
	writeJSON(w, code, map[string]any{"status": code, "errors": []string{err.Error()}})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
