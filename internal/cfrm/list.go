package cfrm

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Paginated is the backend's page envelope.
type Paginated[T any] struct {
	Results  []T    `json:"results"`
	Count    int    `json:"count"`
	Next     string `json:"next"`
	Previous string `json:"previous"`
}

// ListResult is what every list endpoint returns: either a bare JSON array or
// a Paginated envelope, depending on whether the backend paginates that
// view. Callers read it through Items and never inspect the raw shape.
type ListResult[T any] struct {
	bare []T
	page *Paginated[T]
}

func NewBareList[T any](items []T) ListResult[T] {
	return ListResult[T]{bare: items}
}

func NewPaginatedList[T any](p Paginated[T]) ListResult[T] {
	return ListResult[T]{page: &p}
}

func (l *ListResult[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	l.bare, l.page = nil, nil

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '[':
		return json.Unmarshal(data, &l.bare)
	case '{':
		p := &Paginated[T]{}
		if err := json.Unmarshal(data, p); err != nil {
			return err
		}
		l.page = p
		return nil
	default:
		return fmt.Errorf("list response must be an array or a paginated object, got %q", data[0])
	}
}

func (l ListResult[T]) MarshalJSON() ([]byte, error) {
	if l.page != nil {
		return json.Marshal(l.page)
	}
	return json.Marshal(l.Items())
}

// Items normalizes both shapes to a slice. It never returns nil.
func (l ListResult[T]) Items() []T {
	items := l.bare
	if l.page != nil {
		items = l.page.Results
	}

	if items == nil {
		return []T{}
	}

	return items
}

// Page returns the envelope when the backend paginated the response.
func (l ListResult[T]) Page() (Paginated[T], bool) {
	if l.page == nil {
		return Paginated[T]{}, false
	}
	return *l.page, true
}

// Count is the total across all pages when known, else the number of items.
func (l ListResult[T]) Count() int {
	if l.page != nil {
		return l.page.Count
	}
	return len(l.bare)
}

func (l ListResult[T]) HasNext() bool {
	return l.page != nil && l.page.Next != ""
}

func (l ListResult[T]) HasPrevious() bool {
	return l.page != nil && l.page.Previous != ""
}
