package tui

import (
	"context"
	"errors"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dsrosen/cfrm-console/internal/api"
)

// generation numbers every request the console starts, across all pages,
// so a reply can be matched to the request that is still wanted.
var generation atomic.Int64

// fetcher owns the in-flight request of one kind on one page. Starting a
// new request cancels the previous one; replies tagged with an older
// generation are dropped by the page.
type fetcher struct {
	parent context.Context
	cancel context.CancelFunc
	gen    int64
}

func newFetcher(ctx context.Context) *fetcher {
	return &fetcher{parent: ctx}
}

func (f *fetcher) next() (context.Context, int64) {
	f.stop()
	ctx, cancel := context.WithCancel(f.parent)
	f.cancel = cancel
	f.gen = generation.Add(1)
	return ctx, f.gen
}

func (f *fetcher) current(gen int64) bool {
	return gen == f.gen
}

func (f *fetcher) stop() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

type loadedMsg[T any] struct {
	gen  int64
	data T
	err  error
}

func load[T any](f *fetcher, fn func(ctx context.Context) (T, error)) tea.Cmd {
	ctx, gen := f.next()
	return func() tea.Msg {
		data, err := fn(ctx)
		return loadedMsg[T]{gen: gen, data: data, err: err}
	}
}

// loadState is the loading/error/data triple each page keeps for its
// primary resource.
type loadState[T any] struct {
	f       *fetcher
	loading bool
	err     error
	data    T
	loaded  bool
}

func newLoadState[T any](ctx context.Context) *loadState[T] {
	return &loadState[T]{f: newFetcher(ctx)}
}

func (s *loadState[T]) start(fn func(ctx context.Context) (T, error)) tea.Cmd {
	s.loading = true
	s.err = nil
	return load(s.f, fn)
}

// apply stores msg if it answers the latest request. It reports whether
// msg was accepted.
func (s *loadState[T]) apply(msg loadedMsg[T]) bool {
	if !s.f.current(msg.gen) {
		return false
	}

	s.loading = false
	if msg.err != nil {
		if errors.Is(msg.err, context.Canceled) {
			return false
		}
		s.err = msg.err
		return true
	}

	s.data = msg.data
	s.loaded = true
	return true
}

func (s *loadState[T]) stop() {
	s.f.stop()
}

func apiMessage(err error) string {
	if err == nil {
		return ""
	}
	return api.ErrorMessage(err, err.Error())
}
