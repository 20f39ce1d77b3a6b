// Package wineapi is the client for the remote wine API that owns all
// inventory data.
package wineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
	"github.com/mohammed-shakir/cellar-rack/internal/core/observability"
)

type Client struct {
	logger *slog.Logger
	client *http.Client
	base   *url.URL
	token  string
	now    func() time.Time // for tests
}

type Option func(*Client)

// WithDefaultToken is used when the request context carries no token.
func WithDefaultToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func New(logger *slog.Logger, client *http.Client, baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse wine api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("wine api url %q must be absolute", baseURL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	c := &Client{logger: logger, client: client, base: u, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Login(ctx context.Context, cred model.Credentials) (Session, error) {
	var resp model.AuthResponse
	if err := c.do(ctx, "login", http.MethodPost, "auth", nil, cred, &resp, false); err != nil {
		return Session{}, err
	}
	s := Session{Token: resp.Token, Expires: resp.Expires}
	if s.Expires.IsZero() {
		if exp, err := TokenExpiry(resp.Token); err == nil {
			s.Expires = exp
		} else {
			c.logger.DebugContext(ctx, "token expiry unknown", "err", err)
		}
	}
	return s, nil
}

func (c *Client) UserInfo(ctx context.Context) (model.UserInfo, error) {
	var out model.UserInfo
	err := c.do(ctx, "user_info", http.MethodGet, "auth/userinfo", nil, nil, &out, true)
	return out, err
}

// StoreInventory returns the occupied locations of a rack, ordered by row
// then column.
func (c *Client) StoreInventory(ctx context.Context, store model.StoreID) ([]model.OccupiedLocation, error) {
	var out []model.OccupiedLocation
	err := c.do(ctx, "store_inventory", http.MethodGet, "wine/store/"+strconv.Itoa(int(store)), nil, nil, &out, true)
	return out, err
}

func (c *Client) BottlesByBin(ctx context.Context, bin model.BinID) ([]model.StoreBottle, error) {
	var out []model.StoreBottle
	err := c.do(ctx, "bottles_by_bin", http.MethodGet, "wine/bin/"+strconv.Itoa(int(bin)), nil, nil, &out, true)
	return out, err
}

func (c *Client) Varietals(ctx context.Context) ([]model.Varietal, error) {
	var out []model.Varietal
	err := c.do(ctx, "varietals", http.MethodGet, "wine/varietals", nil, nil, &out, true)
	return out, err
}

func (c *Client) Wine(ctx context.Context, id int) (model.Wine, error) {
	var out model.Wine
	err := c.do(ctx, "wine", http.MethodGet, "wine/"+strconv.Itoa(id), nil, nil, &out, true)
	return out, err
}

func (c *Client) Wines(ctx context.Context, q model.WineQuery) (model.PagedResponse[model.Wine], error) {
	var filter any
	if q.Filter != nil {
		filter = q.Filter
	}
	params, err := pagedParams(q.Page, q.PageSize, q.Sort, filter)
	if err != nil {
		return model.PagedResponse[model.Wine]{}, err
	}
	var out model.PagedResponse[model.Wine]
	err = c.do(ctx, "wines", http.MethodGet, "wine/query", params, nil, &out, true)
	return out, err
}

// pagedParams builds the query string shared by the /query endpoints. A nil
// filter is omitted; otherwise it travels as JSON.
func pagedParams(page, pageSize int, sort *model.SortModel, filter any) (url.Values, error) {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("pageSize", strconv.Itoa(pageSize))
	if sort != nil && sort.Field != "" {
		v.Set("sortField", sort.Field)
		v.Set("sortDirection", sort.Sort)
	}
	if filter != nil {
		b, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		v.Set("filter", string(b))
	}
	return v, nil
}

func (c *Client) BottlesByWine(ctx context.Context, wineID int) ([]model.Bottle, error) {
	var out []model.Bottle
	err := c.do(ctx, "bottles_by_wine", http.MethodGet, "wine/"+strconv.Itoa(wineID)+"/bottles", nil, nil, &out, true)
	return out, err
}

func (c *Client) AddWine(ctx context.Context, req model.NewWineRequest) (model.Wine, error) {
	var out model.Wine
	err := c.do(ctx, "add_wine", http.MethodPost, "wine", nil, req, &out, true)
	return out, err
}

func (c *Client) PatchWine(ctx context.Context, id int, req model.PatchWineRequest) (model.Wine, error) {
	var out model.Wine
	err := c.do(ctx, "patch_wine", http.MethodPatch, "wine/"+strconv.Itoa(id), nil, req, &out, true)
	return out, err
}

func (c *Client) AddBottle(ctx context.Context, req model.NewBottleRequest) (model.Bottle, error) {
	var out model.Bottle
	err := c.do(ctx, "add_bottle", http.MethodPost, "wine/bottles", nil, req, &out, true)
	return out, err
}

func (c *Client) PatchBottle(ctx context.Context, id int, req model.PatchBottleRequest) (model.Bottle, error) {
	var out model.Bottle
	err := c.do(ctx, "patch_bottle", http.MethodPatch, "wine/bottles/"+strconv.Itoa(id), nil, req, &out, true)
	return out, err
}

func (c *Client) Users(ctx context.Context, q model.UserQuery) (model.PagedResponse[model.User], error) {
	var filter any
	if q.Filter != nil {
		filter = q.Filter
	}
	params, err := pagedParams(q.Page, q.PageSize, q.Sort, filter)
	if err != nil {
		return model.PagedResponse[model.User]{}, err
	}
	var out model.PagedResponse[model.User]
	err = c.do(ctx, "users", http.MethodGet, "user/query", params, nil, &out, true)
	return out, err
}

func (c *Client) User(ctx context.Context, id int) (model.User, error) {
	var out model.User
	err := c.do(ctx, "user", http.MethodGet, "user/"+strconv.Itoa(id), nil, nil, &out, true)
	return out, err
}

func (c *Client) AddUser(ctx context.Context, req model.UpdateUserRequest) (model.User, error) {
	var out model.User
	err := c.do(ctx, "add_user", http.MethodPost, "user", nil, req, &out, true)
	return out, err
}

func (c *Client) PatchUser(ctx context.Context, id int, req model.UpdateUserRequest) (model.User, error) {
	var out model.User
	err := c.do(ctx, "patch_user", http.MethodPatch, "user/"+strconv.Itoa(id), nil, req, &out, true)
	return out, err
}

func (c *Client) DeleteUser(ctx context.Context, id int) error {
	return c.do(ctx, "delete_user", http.MethodDelete, "user/"+strconv.Itoa(id), nil, nil, nil, true)
}

// ConsumeBottle retires a bottle from the cellar.
func (c *Client) ConsumeBottle(ctx context.Context, id int) (model.Bottle, error) {
	consumed := true
	return c.PatchBottle(ctx, id, model.PatchBottleRequest{Consumed: &consumed})
}

func (c *Client) do(
	ctx context.Context,
	op, method, path string,
	query url.Values,
	body, out any,
	auth bool,
) error {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("wineapi %s: encode body: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return fmt.Errorf("wineapi %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		if tok := tokenFrom(ctx, c.token); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := c.now()
	resp, err := c.client.Do(req)
	if err != nil {
		observability.ObserveUpstream(op, 0, time.Since(start).Seconds())
		return fmt.Errorf("wineapi %s: do request: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstream(op, resp.StatusCode, dur.Seconds())
	c.logger.DebugContext(ctx, "wine api call",
		"op", op, "method", method, "status", resp.StatusCode, "duration", dur)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return &Error{Op: op, Status: resp.StatusCode, Errors: errorMessages(resp, b)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("wineapi %s: decode response: %w", op, err)
	}
	return nil
}

// errorMessages pulls messages out of the common error body shapes, falling
// back to the status text.
func errorMessages(resp *http.Response, body []byte) []string {
	var shaped struct {
		Errors  []string `json:"errors"`
		Message string   `json:"message"`
		Title   string   `json:"title"`
	}
	if json.Unmarshal(body, &shaped) == nil {
		switch {
		case len(shaped.Errors) > 0:
			return shaped.Errors
		case shaped.Message != "":
			return []string{shaped.Message}
		case shaped.Title != "":
			return []string{shaped.Title}
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && !strings.HasPrefix(s, "{") && len(s) <= 200 {
		return []string{s}
	}
	if t := http.StatusText(resp.StatusCode); t != "" {
		return []string{t}
	}
	return nil
}
