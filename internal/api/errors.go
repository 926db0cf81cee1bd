package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrUnauthorized is matched by every error returned for a 401 response. By
// the time it reaches the caller the access token has already been cleared.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx response from the backend. The body is kept raw so
// callers can decode whatever shape the endpoint uses.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *Error) Error() string {
	msg := e.Message()
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Message extracts a human-readable message from the backend's error body,
// checking "message", then the first "non_field_errors" entry, then "detail".
// It returns "" when none of them is present.
func (e *Error) Message() string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(e.Body, &body); err != nil {
		return ""
	}

	if s := rawString(body["message"]); s != "" {
		return s
	}

	var nonField []string
	if raw, ok := body["non_field_errors"]; ok && json.Unmarshal(raw, &nonField) == nil && len(nonField) > 0 {
		return nonField[0]
	}

	return rawString(body["detail"])
}

// FieldErrors returns per-field validation messages from a 400 body shaped
// like {"title": ["This field is required."]}.
func (e *Error) FieldErrors() map[string][]string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(e.Body, &body); err != nil {
		return nil
	}

	fields := make(map[string][]string)
	for k, raw := range body {
		switch k {
		case "message", "detail", "non_field_errors", "errors", "code":
			continue
		}

		var msgs []string
		if json.Unmarshal(raw, &msgs) == nil && len(msgs) > 0 {
			fields[k] = msgs
			continue
		}

		if s := rawString(raw); s != "" {
			fields[k] = []string{s}
		}
	}

	if len(fields) == 0 {
		return nil
	}

	return fields
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}

	return s
}

// ErrorMessage returns the best message available for err: the backend's own
// message, then a summary of field errors, then fallback.
func ErrorMessage(err error, fallback string) string {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return fallback
	}

	if msg := apiErr.Message(); msg != "" {
		return msg
	}

	fields := apiErr.FieldErrors()
	if len(fields) == 0 {
		return fallback
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(fields[k], " ")))
	}

	return strings.Join(parts, "; ")
}

type Kind int

const (
	KindNone Kind = iota
	KindTransport
	KindCanceled
	KindUnauthorized
	KindValidation
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindCanceled:
		return "canceled"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "none"
	}
}

// Classify sorts err into the console's error taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, ErrUnauthorized) {
		return KindUnauthorized
	}

	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 {
			return KindServer
		}
		return KindValidation
	}

	return KindTransport
}
