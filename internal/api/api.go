// Package api is the HTTP client wrapper every CFRM service call goes through.
// It resolves paths against the configured base URL, attaches the bearer
// token read from persisted storage, and turns a 401 into a forced logout.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBaseUrl = "http://localhost:8000/api/v1"
	DefaultTimeout = 10 * time.Second

	accessTokenKey  = "token"
	requestIdHeader = "X-Request-ID"
)

// TokenSource is the persisted token storage the client reads from. Only the
// access token is read; on a 401 it is deleted.
type TokenSource interface {
	Get(key string) (string, bool)
	Delete(keys ...string) error
}

type Config struct {
	BaseUrl string        `mapstructure:"base_url" json:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`

	// StrictAuth attaches the bearer token to every request, ignoring the
	// unauthenticated path list.
	StrictAuth bool `mapstructure:"strict_auth" json:"strict_auth"`
}

type Client struct {
	baseUrl    *url.URL
	httpClient *http.Client
	tokens     TokenSource
	strictAuth bool

	mu             sync.RWMutex
	onUnauthorized func()
}

type requestOptions struct {
	header http.Header
	query  url.Values
}

type RequestOption func(*requestOptions)

func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.header.Set(key, value)
	}
}

// WithQuery merges q into the request URL's query string.
func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) {
		for k, vs := range q {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}

func NewClient(cfg Config, tokens TokenSource) (*Client, error) {
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = DefaultBaseUrl
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	u, err := url.Parse(cfg.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}

	if !u.IsAbs() {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseUrl)
	}

	slog.Debug("api.NewClient called", "baseUrl", u.String(), "timeout", cfg.Timeout, "strictAuth", cfg.StrictAuth)
	return &Client{
		baseUrl:    u,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		strictAuth: cfg.StrictAuth,
	}, nil
}

// OnUnauthorized registers the hook run after a 401 response has cleared the
// persisted token. The session store uses it to drop the user and route back
// to login.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

func (c *Client) BaseUrl() string {
	return c.baseUrl.String()
}

func (c *Client) Get(ctx context.Context, path string, target any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodGet, path, nil, target, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body, target any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodPost, path, body, target, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body, target any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodPut, path, body, target, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, body, target any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodPatch, path, body, target, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, target any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodDelete, path, nil, target, opts...)
}

// Request sends one request and decodes a 2xx JSON response into target.
// A body that is an io.Reader is sent as-is; anything else is JSON encoded.
// Errors are returned unmodified: no retries, no backoff.
func (c *Client) Request(ctx context.Context, method, path string, body, target any, opts ...RequestOption) error {
	res, err := c.do(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	defer closeBody(res.Body)

	if target == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("reading the response body: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshaling the response to JSON: %w", err)
	}

	return nil
}

// Download streams a successful response body to w, for report files and
// other non-JSON payloads.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	res, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer closeBody(res.Body)

	n, err := io.Copy(w, res.Body)
	if err != nil {
		return n, fmt.Errorf("copying the response body: %w", err)
	}

	return n, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*http.Response, error) {
	o := &requestOptions{header: http.Header{}, query: url.Values{}}
	for _, opt := range opts {
		opt(o)
	}

	u, err := c.Resolve(path)
	if err != nil {
		return nil, err
	}

	if len(o.query) > 0 {
		q := u.Query()
		for k, vs := range o.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	reader, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("creating the request: %w", err)
	}

	if sized, ok := reader.(interface{ Size() int64 }); ok {
		req.ContentLength = sized.Size()
	}

	requestId := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIdHeader, requestId)
	for k, vs := range o.header {
		req.Header[k] = vs
	}

	// absolute urls may point anywhere; the token only goes to the backend
	backend := c.sameOrigin(u)
	if backend && (c.strictAuth || !IsUnauthenticatedPath(u.Path)) {
		if token, ok := c.tokens.Get(accessTokenKey); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	slog.Debug("cfrm api request", "method", method, "path", u.Path, "requestId", requestId)
	res, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("cfrm api transport error", "method", method, "path", u.Path, "requestId", requestId, "error", err)
		return nil, fmt.Errorf("sending %s %s: %w", method, u.Path, err)
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return res, nil
	}

	defer closeBody(res.Body)
	data, readErr := io.ReadAll(res.Body)
	if readErr != nil {
		slog.Warn("reading error response body", "error", readErr)
	}

	apiErr := &Error{
		Method:     method,
		Path:       u.Path,
		StatusCode: res.StatusCode,
		Body:       data,
	}

	slog.Warn("cfrm api request failed", "method", method, "path", u.Path, "statusCode", res.StatusCode, "requestId", requestId)
	if res.StatusCode == http.StatusUnauthorized && backend {
		c.handleUnauthorized()
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
	}

	return nil, apiErr
}

func (c *Client) handleUnauthorized() {
	if err := c.tokens.Delete(accessTokenKey); err != nil {
		slog.Error("clearing access token after 401", "error", err)
	}

	c.mu.RLock()
	hook := c.onUnauthorized
	c.mu.RUnlock()

	if hook != nil {
		hook()
	}
}

// Resolve turns a request path into an absolute URL. Absolute URLs pass
// through; paths already carrying the base path (such as download links the
// backend hands out) are resolved against the host only; anything else is
// appended to the base path.
func (c *Client) Resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parsing request path %q: %w", path, err)
	}

	if ref.IsAbs() {
		return ref, nil
	}

	u := *c.baseUrl
	basePath := strings.TrimSuffix(c.baseUrl.Path, "/")
	if basePath != "" && strings.HasPrefix(ref.Path, basePath+"/") {
		u.Path = ref.Path
	} else {
		u.Path = basePath + "/" + strings.TrimPrefix(ref.Path, "/")
	}

	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	u.Fragment = ""
	return &u, nil
}

func (c *Client) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, c.baseUrl.Scheme) && strings.EqualFold(u.Host, c.baseUrl.Host)
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshaling the request body: %w", err)
		}
		return bytes.NewReader(data), nil
	}
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("closing response body", "error", err)
	}
}
