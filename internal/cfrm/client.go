// Package cfrm maps the CFRM REST API onto typed Go calls. Every method is one
// HTTP request through the api wrapper; nothing is cached or retried here.
package cfrm

import (
	"context"
	"io"
	"net/url"

	"github.com/dsrosen/cfrm-console/internal/api"
)

// Requester is the subset of *api.Client the services need.
type Requester interface {
	Get(ctx context.Context, path string, target any, opts ...api.RequestOption) error
	Post(ctx context.Context, path string, body, target any, opts ...api.RequestOption) error
	Put(ctx context.Context, path string, body, target any, opts ...api.RequestOption) error
	Patch(ctx context.Context, path string, body, target any, opts ...api.RequestOption) error
	Delete(ctx context.Context, path string, target any, opts ...api.RequestOption) error
	Upload(ctx context.Context, path string, form *api.Form, progress api.ProgressFunc, target any) error
	Download(ctx context.Context, path string, w io.Writer) (int64, error)
	Resolve(path string) (*url.URL, error)
}

type Client struct {
	api Requester
}

func NewClient(r Requester) *Client {
	return &Client{api: r}
}

// ConnectionTest hits a lightweight reference endpoint to confirm the
// backend is reachable.
func (c *Client) ConnectionTest(ctx context.Context) error {
	_, err := c.Statuses(ctx)
	return err
}
