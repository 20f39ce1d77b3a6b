package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
	"github.com/mohammed-shakir/cellar-rack/internal/wineapi"
)

// Catalog is the wine API surface passed through to the dashboard, satisfied
// by *wineapi.Client.
type Catalog interface {
	Login(ctx context.Context, cred model.Credentials) (wineapi.Session, error)
	UserInfo(ctx context.Context) (model.UserInfo, error)

	Varietals(ctx context.Context) ([]model.Varietal, error)
	Wines(ctx context.Context, q model.WineQuery) (model.PagedResponse[model.Wine], error)
	Wine(ctx context.Context, id int) (model.Wine, error)
	BottlesByWine(ctx context.Context, wineID int) ([]model.Bottle, error)
	AddWine(ctx context.Context, req model.NewWineRequest) (model.Wine, error)
	PatchWine(ctx context.Context, id int, req model.PatchWineRequest) (model.Wine, error)

	Users(ctx context.Context, q model.UserQuery) (model.PagedResponse[model.User], error)
	User(ctx context.Context, id int) (model.User, error)
	AddUser(ctx context.Context, req model.UpdateUserRequest) (model.User, error)
	PatchUser(ctx context.Context, id int, req model.UpdateUserRequest) (model.User, error)
	DeleteUser(ctx context.Context, id int) error
}

var _ Catalog = (*wineapi.Client)(nil)

func (h *handlers) mountCatalog(r chi.Router) {
	r.Post("/auth/login", observe("/auth/login", h.login))
	r.Get("/auth/userinfo", observe("/auth/userinfo", h.authed(h.userInfo)))

	r.Get("/varietals", observe("/varietals", h.authed(h.varietals)))
	r.Route("/wines", func(r chi.Router) {
		r.Get("/", observe("/wines", h.authed(h.wines)))
		r.Post("/", observe("/wines", h.authed(h.addWine)))
		r.Get("/{wineID}", observe("/wines/{wineID}", h.authed(h.wine)))
		r.Patch("/{wineID}", observe("/wines/{wineID}", h.authed(h.patchWine)))
		r.Get("/{wineID}/bottles", observe("/wines/{wineID}/bottles", h.authed(h.wineBottles)))
	})
	r.Route("/users", func(r chi.Router) {
		r.Get("/", observe("/users", h.authed(h.users)))
		r.Post("/", observe("/users", h.authed(h.addUser)))
		r.Get("/{userID}", observe("/users/{userID}", h.authed(h.user)))
		r.Patch("/{userID}", observe("/users/{userID}", h.authed(h.patchUser)))
		r.Delete("/{userID}", observe("/users/{userID}", h.authed(h.deleteUser)))
	})
}

// respond writes v with code, or the mapped error.
func (h *handlers) respond(w http.ResponseWriter, r *http.Request, code int, v any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, code, v)
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var cred model.Credentials
	if err := readJSON(w, r, &cred); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.cat.Login(r.Context(), cred)
	h.respond(w, r, http.StatusOK, model.AuthResponse{Token: s.Token, Expires: s.Expires}, err)
}

func (h *handlers) userInfo(w http.ResponseWriter, r *http.Request) {
	u, err := h.cat.UserInfo(r.Context())
	h.respond(w, r, http.StatusOK, u, err)
}

func (h *handlers) varietals(w http.ResponseWriter, r *http.Request) {
	vs, err := h.cat.Varietals(r.Context())
	h.respond(w, r, http.StatusOK, vs, err)
}

func (h *handlers) wines(w http.ResponseWriter, r *http.Request) {
	q := model.WineQuery{}
	var err error
	q.Page, q.PageSize, q.Sort, err = pageQuery(r.URL.Query())
	if err == nil {
		q.Filter, err = filterQuery[model.WineFilter](r.URL.Query())
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.cat.Wines(r.Context(), q)
	h.respond(w, r, http.StatusOK, page, err)
}

func (h *handlers) wine(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "wineID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	wine, err := h.cat.Wine(r.Context(), id)
	h.respond(w, r, http.StatusOK, wine, err)
}

func (h *handlers) wineBottles(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "wineID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bs, err := h.cat.BottlesByWine(r.Context(), id)
	h.respond(w, r, http.StatusOK, bs, err)
}

func (h *handlers) addWine(w http.ResponseWriter, r *http.Request) {
	var req model.NewWineRequest
	if err := readJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	wine, err := h.cat.AddWine(r.Context(), req)
	h.respond(w, r, http.StatusCreated, wine, err)
}

func (h *handlers) patchWine(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "wineID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.PatchWineRequest
	if err := readJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	wine, err := h.cat.PatchWine(r.Context(), id, req)
	h.respond(w, r, http.StatusOK, wine, err)
}

func (h *handlers) users(w http.ResponseWriter, r *http.Request) {
	q := model.UserQuery{}
	var err error
	q.Page, q.PageSize, q.Sort, err = pageQuery(r.URL.Query())
	if err == nil {
		q.Filter, err = filterQuery[model.UserFilter](r.URL.Query())
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.cat.Users(r.Context(), q)
	h.respond(w, r, http.StatusOK, page, err)
}

func (h *handlers) user(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "userID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.cat.User(r.Context(), id)
	h.respond(w, r, http.StatusOK, u, err)
}

func (h *handlers) addUser(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateUserRequest
	if err := readJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.cat.AddUser(r.Context(), req)
	h.respond(w, r, http.StatusCreated, u, err)
}

func (h *handlers) patchUser(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "userID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.UpdateUserRequest
	if err := readJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.cat.PatchUser(r.Context(), id, req)
	h.respond(w, r, http.StatusOK, u, err)
}

func (h *handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "userID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.cat.DeleteUser(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pageQuery reads the paging parameters the dashboard grids send. Pages are
// zero based and default to ten rows.
func pageQuery(v url.Values) (page, pageSize int, sort *model.SortModel, err error) {
	page, pageSize = 0, 10
	if s := v.Get("page"); s != "" {
		if page, err = strconv.Atoi(s); err != nil || page < 0 {
			return 0, 0, nil, fmt.Errorf("%w: page=%q", errBadParam, s)
		}
	}
	if s := v.Get("pageSize"); s != "" {
		if pageSize, err = strconv.Atoi(s); err != nil || pageSize <= 0 || pageSize > 100 {
			return 0, 0, nil, fmt.Errorf("%w: pageSize=%q", errBadParam, s)
		}
	}
	if f := v.Get("sortField"); f != "" {
		dir := v.Get("sortDirection")
		if dir != "asc" && dir != "desc" {
			return 0, 0, nil, fmt.Errorf("%w: sortDirection=%q", errBadParam, dir)
		}
		sort = &model.SortModel{Field: f, Sort: dir}
	}
	return page, pageSize, sort, nil
}

// filterQuery decodes the JSON filter parameter, nil when absent.
func filterQuery[T any](v url.Values) (*T, error) {
	s := v.Get("filter")
	if s == "" {
		return nil, nil
	}
	var f T
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return nil, fmt.Errorf("%w: filter: %v", errBadParam, err)
	}
	return &f, nil
}
