package cfrm

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	return listAll[Category](ctx, c, "/categories/", "categories")
}

func (c *Client) Priorities(ctx context.Context) ([]Priority, error) {
	return listAll[Priority](ctx, c, "/priorities/", "priorities")
}

func (c *Client) Statuses(ctx context.Context) ([]Status, error) {
	return listAll[Status](ctx, c, "/statuses/", "statuses")
}

func (c *Client) Channels(ctx context.Context) ([]Channel, error) {
	return listAll[Channel](ctx, c, "/channels/", "channels")
}

func listAll[T any](ctx context.Context, c *Client, path, name string) ([]T, error) {
	var res ListResult[T]
	if err := c.api.Get(ctx, path, &res); err != nil {
		return nil, fmt.Errorf("listing %s: %w", name, err)
	}
	return res.Items(), nil
}

// ReferenceData is the lookup set every form and filter bar needs.
type ReferenceData struct {
	Categories []Category
	Priorities []Priority
	Statuses   []Status
	Channels   []Channel
}

// ReferenceData fetches all four lookup lists in parallel. If any one fails
// the whole batch fails and the partial results are discarded.
func (c *Client) ReferenceData(ctx context.Context) (*ReferenceData, error) {
	slog.Debug("cfrm.ReferenceData called")
	rd := &ReferenceData{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		rd.Categories, err = c.Categories(ctx)
		return err
	})
	g.Go(func() (err error) {
		rd.Priorities, err = c.Priorities(ctx)
		return err
	})
	g.Go(func() (err error) {
		rd.Statuses, err = c.Statuses(ctx)
		return err
	})
	g.Go(func() (err error) {
		rd.Channels, err = c.Channels(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return rd, nil
}

func (rd *ReferenceData) CategoryName(id string) string {
	for _, v := range rd.Categories {
		if v.Id.String() == id {
			return v.Name
		}
	}
	return id
}

func (rd *ReferenceData) StatusName(id string) string {
	for _, v := range rd.Statuses {
		if v.Id.String() == id {
			return v.Name
		}
	}
	return id
}
