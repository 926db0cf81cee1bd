package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage_Shapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"message wins", `{"message":"Identifiants invalides","detail":"x"}`, "Identifiants invalides"},
		{"non field errors", `{"non_field_errors":["Unable to log in."],"detail":"x"}`, "Unable to log in."},
		{"detail", `{"detail":"No active account found"}`, "No active account found"},
		{"field errors", `{"title":["This field is required."],"content":["Required."]}`, "content: Required.; title: This field is required."},
		{"not json", `<html>oops</html>`, "fallback"},
		{"empty non field", `{"non_field_errors":[]}`, "fallback"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := &Error{Method: "POST", Path: "/x/", StatusCode: 400, Body: []byte(tc.body)}
			assert.Equal(t, tc.want, ErrorMessage(err, "fallback"))
		})
	}
}

func TestErrorMessage_NonApiError(t *testing.T) {
	assert.Equal(t, "fallback", ErrorMessage(errors.New("dial tcp: refused"), "fallback"))
}

func TestError_String(t *testing.T) {
	err := &Error{Method: "GET", Path: "/api/v1/tickets/", StatusCode: 404, Body: []byte(`{}`)}
	assert.Equal(t, "GET /api/v1/tickets/: status 404: Not Found", err.Error())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindNone, Classify(nil))
	assert.Equal(t, KindValidation, Classify(&Error{StatusCode: 400}))
	assert.Equal(t, KindServer, Classify(fmt.Errorf("wrapped: %w", &Error{StatusCode: 502})))
	assert.Equal(t, KindUnauthorized, Classify(fmt.Errorf("%w: %w", ErrUnauthorized, &Error{StatusCode: 401})))
	assert.Equal(t, KindCanceled, Classify(fmt.Errorf("sending: %w", context.Canceled)))
	assert.Equal(t, KindTransport, Classify(errors.New("connection refused")))
	assert.Equal(t, "server", KindServer.String())
}

func TestIsUnauthenticatedPath(t *testing.T) {
	assert.True(t, IsUnauthenticatedPath("/api/v1/auth/login/"))
	assert.True(t, IsUnauthenticatedPath("/api/v1/tickets/dashboard_stats/"))
	assert.True(t, IsUnauthenticatedPath("/api/v1/users/users/me/"))
	assert.False(t, IsUnauthenticatedPath("/api/v1/auth/me/"))
	assert.False(t, IsUnauthenticatedPath("/api/v1/auth/logout/"))
	assert.False(t, IsUnauthenticatedPath("/api/v1/feedback/"))
	assert.False(t, IsUnauthenticatedPath("/api/v1/reports/generate/"))
}
