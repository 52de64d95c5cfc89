package waystone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Meta holds the server-assigned fields common to every entity. Embed it in
// your own payload types or unmarshal items into it directly.
type Meta struct {
	ID               string    `json:"id"`
	CreateDate       time.Time `json:"createDate"`
	LastModifiedDate time.Time `json:"lastModifiedDate"`
}

// PageDetails describes a list response's position in the result set.
// PrevPage and NextPage are server-supplied URLs, empty at the edges.
type PageDetails struct {
	Count        int    `json:"count"`
	RequestCount int    `json:"requestCount"`
	PrevPage     string `json:"prevPage"`
	NextPage     string `json:"nextPage"`
}

// Page is one page of a list result. Items are left undecoded; the client
// transports payloads without interpreting them.
type Page struct {
	Items       []json.RawMessage `json:"items"`
	PageDetails `json:"pageDetails"`
}

// Resource is a handle for list/get/create/update/delete operations on a
// named API resource, e.g. client.Resource("Tickets").
type Resource struct {
	c    *Client
	name string
}

// Resource returns a handle for the named resource.
func (c *Client) Resource(name string) *Resource {
	return &Resource{c: c, name: name}
}

// Name returns the resource name.
func (r *Resource) Name() string {
	return r.name
}

func (r *Resource) path(id string) string {
	if id == "" {
		return "/" + url.PathEscape(r.name)
	}
	return "/" + url.PathEscape(r.name) + "/" + url.PathEscape(id)
}

// listConfig accumulates list query parameters.
type listConfig struct {
	values url.Values
	err    error
}

// ListOption configures a List call.
type ListOption func(*listConfig)

// WithPage requests a specific page number.
func WithPage(page int) ListOption {
	return func(c *listConfig) {
		c.values.Set("page", strconv.Itoa(page))
	}
}

// WithPageSize sets the number of items per page (default 25, max 100).
func WithPageSize(size int) ListOption {
	return func(c *listConfig) {
		if size < 1 || size > MaxPageSize {
			c.err = fmt.Errorf("page size %d out of range [1, %d]", size, MaxPageSize)
			return
		}
		c.values.Set("pageSize", strconv.Itoa(size))
	}
}

// WithSearch sets a free-text search term.
func WithSearch(term string) ListOption {
	return func(c *listConfig) {
		c.values.Set("search", term)
	}
}

// WithActive restricts results to active or inactive entities.
func WithActive(active bool) ListOption {
	return func(c *listConfig) {
		c.values.Set("active", strconv.FormatBool(active))
	}
}

// WithFilter sets a filter expression. Filter semantics are interpreted by
// the server; the client only transports the expression.
func WithFilter(f Filter) ListOption {
	return func(c *listConfig) {
		c.values.Set("filter", f.String())
	}
}

// WithFilterString sets a raw filter expression string.
func WithFilterString(expr string) ListOption {
	return func(c *listConfig) {
		c.values.Set("filter", expr)
	}
}

// WithSort sets the sort field.
func WithSort(field string) ListOption {
	return func(c *listConfig) {
		c.values.Set("sort", field)
	}
}

// WithOrder sets the sort direction, "asc" or "desc".
func WithOrder(order string) ListOption {
	return func(c *listConfig) {
		c.values.Set("order", order)
	}
}

// WithFields restricts the fields returned for each item.
func WithFields(fields ...string) ListOption {
	return func(c *listConfig) {
		c.values.Set("fields", strings.Join(fields, ","))
	}
}

// List fetches one page of entities.
func (r *Resource) List(ctx context.Context, opts ...ListOption) (*Page, error) {
	cfg := &listConfig{values: url.Values{}}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.err != nil {
		return nil, cfg.err
	}

	var page Page
	if err := r.c.Do(ctx, http.MethodGet, r.path(""), cfg.values, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get fetches a single entity by id.
func (r *Resource) Get(ctx context.Context, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := r.c.Do(ctx, http.MethodGet, r.path(id), nil, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Create creates an entity and returns the server's representation,
// including the server-assigned id and timestamps.
func (r *Resource) Create(ctx context.Context, body any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := r.c.Do(ctx, http.MethodPost, r.path(""), nil, body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Update applies a partial update to an entity and returns the updated
// representation.
func (r *Resource) Update(ctx context.Context, id string, patch any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := r.c.Do(ctx, http.MethodPatch, r.path(id), nil, patch, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Count returns the total number of entities matching the given list
// options without fetching them.
func (r *Resource) Count(ctx context.Context, opts ...ListOption) (int, error) {
	page, err := r.List(ctx, append(opts, WithPageSize(1))...)
	if err != nil {
		return 0, err
	}
	return page.RequestCount, nil
}

// Delete removes an entity by id.
func (r *Resource) Delete(ctx context.Context, id string) error {
	return r.c.Do(ctx, http.MethodDelete, r.path(id), nil, nil, nil)
}

// NextPage follows a page's server-supplied nextPage URL. Returns
// ErrNoMorePages when the page has no successor.
func (c *Client) NextPage(ctx context.Context, page *Page) (*Page, error) {
	return c.followPage(ctx, page.PageDetails.NextPage)
}

// PrevPage follows a page's server-supplied prevPage URL. Returns
// ErrNoMorePages when the page has no predecessor.
func (c *Client) PrevPage(ctx context.Context, page *Page) (*Page, error) {
	return c.followPage(ctx, page.PageDetails.PrevPage)
}

func (c *Client) followPage(ctx context.Context, pageURL string) (*Page, error) {
	if pageURL == "" {
		return nil, ErrNoMorePages
	}

	// Server page URLs are absolute; reduce to a path relative to the
	// configured base so the request flows through the normal pipeline.
	u, err := url.Parse(strings.TrimPrefix(pageURL, c.baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var page Page
	if err := c.Do(ctx, http.MethodGet, u.Path, u.Query(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
