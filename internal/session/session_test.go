package session_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dsrosen/cfrm-console/internal/api"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dsrosen/cfrm-console/internal/fakeapi"
	"github.com/dsrosen/cfrm-console/internal/session"
	"github.com/dsrosen/cfrm-console/internal/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

type fixture struct {
	srv    *fakeapi.Server
	tokens *tokenstore.Memory
	store  *session.Store
	toLog  *atomic.Int32
}

func setup(t *testing.T, opts ...fakeapi.Option) fixture {
	t.Helper()
	srv := fakeapi.New(t, opts...)
	tokens := tokenstore.NewMemory()

	a, err := api.NewClient(api.Config{BaseUrl: srv.URL(), StrictAuth: true}, tokens)
	require.NoError(t, err)

	store := session.New(cfrm.NewClient(a), tokens)
	a.OnUnauthorized(store.HandleUnauthorized)

	var n atomic.Int32
	store.SetNavigator(session.NavigatorFunc(func() { n.Add(1) }))

	return fixture{srv: srv, tokens: tokens, store: store, toLog: &n}
}

func login(t *testing.T, f fixture) {
	t.Helper()
	_, err := f.store.Login(context.Background(), cfrm.Credentials{Username: fakeapi.AdminUsername, Password: fakeapi.AdminPassword})
	require.NoError(t, err)
}

func TestLogin_StoresBothTokens(t *testing.T) {
	f := setup(t)

	u, err := f.store.Login(context.Background(), cfrm.Credentials{Username: fakeapi.AdminUsername, Password: fakeapi.AdminPassword})
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Username)
	assert.True(t, f.store.Authenticated())

	_, ok := f.tokens.Get(tokenstore.TokenKey)
	assert.True(t, ok)
	_, ok = f.tokens.Get(tokenstore.RefreshKey)
	assert.True(t, ok)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := setup(t)

	_, err := f.store.Login(context.Background(), cfrm.Credentials{Username: "admin", Password: "wrong"})
	require.Error(t, err)

	var le *session.LoginError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "Identifiants invalides", le.Message)
	assert.Nil(t, f.store.User())

	_, ok := f.tokens.Get(tokenstore.TokenKey)
	assert.False(t, ok)
	_, ok = f.tokens.Get(tokenstore.RefreshKey)
	assert.False(t, ok)
}

func TestLogin_FallbackMessage(t *testing.T) {
	f := setup(t)
	f.srv.FailNextWithBody(http.MethodPost, "/auth/login/", http.StatusBadGateway, `<html>bad gateway</html>`)

	_, err := f.store.Login(context.Background(), cfrm.Credentials{Username: "admin", Password: "admin123"})
	assert.EqualError(t, err, "login failed")
}

func TestHydrate(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.tokens.Set(tokenstore.TokenKey, f.srv.AccessToken(fakeapi.AdminUsername)))
	assert.True(t, f.store.Loading())

	f.store.Hydrate(context.Background())

	assert.False(t, f.store.Loading())
	require.NotNil(t, f.store.User())
	assert.Equal(t, "admin", f.store.User().Username)
}

func TestHydrate_NoToken(t *testing.T) {
	f := setup(t)

	f.store.Hydrate(context.Background())

	assert.False(t, f.store.Loading())
	assert.Nil(t, f.store.User())
	assert.Empty(t, f.srv.Requests())
}

func TestHydrate_FailureClearsTokenSilently(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.tokens.Set(tokenstore.TokenKey, f.srv.AccessToken(fakeapi.AdminUsername)))
	f.srv.FailNext(http.MethodGet, "/auth/me/", http.StatusInternalServerError)

	f.store.Hydrate(context.Background())

	assert.False(t, f.store.Loading())
	assert.Nil(t, f.store.User())
	_, ok := f.tokens.Get(tokenstore.TokenKey)
	assert.False(t, ok)
}

func TestLogout_ClearsEverything(t *testing.T) {
	f := setup(t)
	login(t, f)

	f.store.Logout(context.Background())

	assert.Nil(t, f.store.User())
	_, ok := f.tokens.Get(tokenstore.TokenKey)
	assert.False(t, ok)
	_, ok = f.tokens.Get(tokenstore.RefreshKey)
	assert.False(t, ok)
	assert.Equal(t, int32(1), f.toLog.Load())
	assert.Len(t, f.srv.RequestsTo(http.MethodPost, "/auth/logout/"), 1)
}

func TestLogout_BackendFailureStillClears(t *testing.T) {
	f := setup(t)
	login(t, f)
	f.srv.FailNext(http.MethodPost, "/auth/logout/", http.StatusInternalServerError)

	f.store.Logout(context.Background())

	assert.Nil(t, f.store.User())
	_, ok := f.tokens.Get(tokenstore.TokenKey)
	assert.False(t, ok)
	_, ok = f.tokens.Get(tokenstore.RefreshKey)
	assert.False(t, ok)
	assert.Equal(t, int32(1), f.toLog.Load())
}

func TestUnauthorizedResponseEndsSession(t *testing.T) {
	f := setup(t)
	login(t, f)
	f.srv.FailNext(http.MethodGet, "/auth/me/", http.StatusUnauthorized)

	f.store.Hydrate(context.Background())

	assert.Nil(t, f.store.User())
	assert.Equal(t, int32(1), f.toLog.Load())
	_, ok := f.tokens.Get(tokenstore.TokenKey)
	assert.False(t, ok)
	_, ok = f.tokens.Get(tokenstore.RefreshKey)
	assert.True(t, ok, "a 401 drops only the access token")
}

func TestUpdateUser(t *testing.T) {
	f := setup(t)
	name := "Nouvel Admin"

	f.store.UpdateUser(cfrm.UserPatch{FullName: &name})
	assert.Nil(t, f.store.User(), "no-op while signed out")

	login(t, f)
	before := len(f.srv.Requests())
	f.store.UpdateUser(cfrm.UserPatch{FullName: &name})

	assert.Equal(t, name, f.store.User().FullName)
	assert.Equal(t, "admin", f.store.User().Username)
	assert.Len(t, f.srv.Requests(), before, "no backend round-trip")
}

func TestSubscribe(t *testing.T) {
	f := setup(t)

	var seen []string
	unsubscribe := f.store.Subscribe(func(u *cfrm.User) {
		if u == nil {
			seen = append(seen, "<nil>")
			return
		}
		seen = append(seen, u.Username)
	})

	login(t, f)
	f.store.Logout(context.Background())
	unsubscribe()
	login(t, f)

	assert.Equal(t, []string{"admin", "<nil>"}, seen)
}

func TestRefreshAndExpiry(t *testing.T) {
	f := setup(t, fakeapi.WithTokenTTL(10*time.Minute))

	_, ok := f.store.TokenExpiry()
	assert.False(t, ok)
	assert.ErrorIs(t, f.store.Refresh(context.Background()), session.ErrNoRefreshToken)

	login(t, f)
	exp, ok := f.store.TokenExpiry()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), exp, time.Minute)

	old, _ := f.tokens.Get(tokenstore.TokenKey)
	require.NoError(t, f.store.Refresh(context.Background()))
	fresh, _ := f.tokens.Get(tokenstore.TokenKey)
	assert.NotEqual(t, old, fresh)
}

func TestTokenExpiry_NotAJwt(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.tokens.Set(tokenstore.TokenKey, "opaque"))

	_, ok := f.store.TokenExpiry()
	assert.False(t, ok)
}
