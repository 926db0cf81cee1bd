// Package session holds the signed-in user for the lifetime of the console
// and keeps the persisted tokens in step with it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dsrosen/cfrm-console/internal/api"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dsrosen/cfrm-console/internal/tokenstore"
	"github.com/golang-jwt/jwt/v5"
)

const loginFallback = "login failed"

var ErrNoRefreshToken = errors.New("no refresh token stored")

// AuthService is the slice of the CFRM client the session needs.
type AuthService interface {
	Login(ctx context.Context, creds cfrm.Credentials) (*cfrm.LoginResponse, error)
	Logout(ctx context.Context, refresh string) error
	CurrentUser(ctx context.Context) (*cfrm.User, error)
	RefreshToken(ctx context.Context, refresh string) (access, rotated string, err error)
}

// Navigator moves the UI to the login screen after the session ends.
type Navigator interface {
	ToLogin()
}

type NavigatorFunc func()

func (f NavigatorFunc) ToLogin() { f() }

// LoginError carries the message shown to the user when login fails.
type LoginError struct {
	Message string
	Err     error
}

func (e *LoginError) Error() string { return e.Message }
func (e *LoginError) Unwrap() error { return e.Err }

type Store struct {
	auth   AuthService
	tokens tokenstore.Store

	mu      sync.Mutex
	user    *cfrm.User
	loading bool
	nav     Navigator
	subs    map[int]func(*cfrm.User)
	nextSub int
}

func New(auth AuthService, tokens tokenstore.Store) *Store {
	return &Store{
		auth:    auth,
		tokens:  tokens,
		loading: true,
		subs:    map[int]func(*cfrm.User){},
	}
}

// SetNavigator installs the redirect used on logout and forced logout.
func (s *Store) SetNavigator(n Navigator) {
	s.mu.Lock()
	s.nav = n
	s.mu.Unlock()
}

func (s *Store) User() *cfrm.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) Authenticated() bool {
	return s.User() != nil
}

// Loading reports whether the initial Hydrate is still running.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribe registers fn for user changes and returns a function that
// removes it.
func (s *Store) Subscribe(fn func(*cfrm.User)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// setUser must not be called with s.mu held.
func (s *Store) setUser(u *cfrm.User) {
	s.mu.Lock()
	s.user = u
	subs := make([]func(*cfrm.User), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		if u == nil {
			fn(nil)
			continue
		}
		cp := *u
		fn(&cp)
	}
}

// Hydrate restores the user from a persisted access token. Failures are not
// surfaced: the token is dropped and the console starts signed out.
func (s *Store) Hydrate(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	if _, ok := s.tokens.Get(tokenstore.TokenKey); !ok {
		slog.Debug("session.Hydrate: no stored token")
		return
	}

	u, err := s.auth.CurrentUser(ctx)
	if err != nil {
		slog.Warn("stored token rejected, starting signed out", "error", err)
		if err := s.tokens.Delete(tokenstore.TokenKey); err != nil {
			slog.Error("clearing stored token", "error", err)
		}
		s.setUser(nil)
		return
	}

	slog.Info("session restored", "username", u.Username)
	s.setUser(u)
}

func (s *Store) Login(ctx context.Context, creds cfrm.Credentials) (*cfrm.User, error) {
	res, err := s.auth.Login(ctx, creds)
	if err != nil {
		slog.Warn("login failed", "username", creds.Username, "error", err)
		return nil, &LoginError{Message: api.ErrorMessage(err, loginFallback), Err: err}
	}

	if err := s.tokens.Set(tokenstore.TokenKey, res.Access); err != nil {
		return nil, fmt.Errorf("storing access token: %w", err)
	}
	if res.Refresh != "" {
		if err := s.tokens.Set(tokenstore.RefreshKey, res.Refresh); err != nil {
			return nil, fmt.Errorf("storing refresh token: %w", err)
		}
	}

	u := res.User
	slog.Info("logged in", "username", u.Username)
	s.setUser(&u)
	return s.User(), nil
}

// Logout ends the session. The backend call is best-effort; local state is
// always cleared and the UI always returns to login.
func (s *Store) Logout(ctx context.Context) {
	refresh, _ := s.tokens.Get(tokenstore.RefreshKey)
	if err := s.auth.Logout(ctx, refresh); err != nil {
		slog.Warn("backend logout failed, clearing local session anyway", "error", err)
	}

	s.teardown()
}

// HandleUnauthorized is the HTTP wrapper's 401 hook. The wrapper has
// already dropped the access token.
func (s *Store) HandleUnauthorized() {
	slog.Warn("session expired or revoked")
	s.setUser(nil)
	s.toLogin()
}

func (s *Store) teardown() {
	if err := s.tokens.Delete(tokenstore.TokenKey, tokenstore.RefreshKey); err != nil {
		slog.Error("clearing stored tokens", "error", err)
	}
	s.setUser(nil)
	s.toLogin()
}

func (s *Store) toLogin() {
	s.mu.Lock()
	nav := s.nav
	s.mu.Unlock()

	if nav != nil {
		nav.ToLogin()
	}
}

// UpdateUser merges patch into the in-memory user without calling the
// backend. It does nothing when signed out.
func (s *Store) UpdateUser(patch cfrm.UserPatch) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return
	}
	u := s.user.Apply(patch)
	s.mu.Unlock()

	s.setUser(&u)
}

// Refresh trades the stored refresh token for a new access token.
func (s *Store) Refresh(ctx context.Context) error {
	refresh, ok := s.tokens.Get(tokenstore.RefreshKey)
	if !ok {
		return ErrNoRefreshToken
	}

	access, rotated, err := s.auth.RefreshToken(ctx, refresh)
	if err != nil {
		return err
	}

	if err := s.tokens.Set(tokenstore.TokenKey, access); err != nil {
		return fmt.Errorf("storing access token: %w", err)
	}
	if rotated != "" {
		if err := s.tokens.Set(tokenstore.RefreshKey, rotated); err != nil {
			return fmt.Errorf("storing refresh token: %w", err)
		}
	}

	slog.Debug("access token refreshed")
	return nil
}

// TokenExpiry reads the exp claim of the stored access token. The signature
// is not checked; the backend remains the authority on validity.
func (s *Store) TokenExpiry() (time.Time, bool) {
	raw, ok := s.tokens.Get(tokenstore.TokenKey)
	if !ok {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		slog.Debug("stored token is not a jwt", "error", err)
		return time.Time{}, false
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
