package tui

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dsrosen/cfrm-console/internal/api"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dsrosen/cfrm-console/internal/fakeapi"
	"github.com/dsrosen/cfrm-console/internal/session"
	"github.com/dsrosen/cfrm-console/internal/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seededTitle = "Distribution"

type harness struct {
	m      *Model
	srv    *fakeapi.Server
	tokens *tokenstore.Memory
}

func newHarness(t *testing.T, signedIn bool, opts ...fakeapi.Option) harness {
	t.Helper()
	srv := fakeapi.New(t, opts...)
	tokens := tokenstore.NewMemory()

	a, err := api.NewClient(api.Config{BaseUrl: srv.URL(), StrictAuth: true}, tokens)
	require.NoError(t, err)

	client := cfrm.NewClient(a)
	store := session.New(client, tokens)
	a.OnUnauthorized(store.HandleUnauthorized)

	if signedIn {
		require.NoError(t, tokens.Set(tokenstore.TokenKey, srv.AccessToken(fakeapi.AdminUsername)))
	}

	m := New(context.Background(), Deps{Client: client, Session: store})
	h := harness{m: m, srv: srv, tokens: tokens}
	h.drain(m.Init())
	return h
}

// drain runs cmd and everything it leads to, feeding each message back into
// the model. Commands that block on timers are abandoned.
func (h harness) drain(cmd tea.Cmd) {
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0 && steps < 500; steps++ {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}

		msg, ok := runCmd(c)
		if !ok {
			continue
		}

		switch msg := msg.(type) {
		case nil, spinner.TickMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case tea.QuitMsg:
			return
		default:
			_, next := h.m.Update(msg)
			queue = append(queue, next)
		}
	}
}

func runCmd(c tea.Cmd) (tea.Msg, bool) {
	ch := make(chan tea.Msg, 1)
	go func() { ch <- c() }()
	select {
	case msg := <-ch:
		return msg, true
	case <-time.After(250 * time.Millisecond):
		return nil, false
	}
}

func (h harness) send(msg tea.Msg) {
	_, cmd := h.m.Update(msg)
	h.drain(cmd)
}

func (h harness) press(k string) {
	h.send(keyPress(k))
}

func keyPress(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+q":
		return tea.KeyMsg{Type: tea.KeyCtrlQ}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func (h harness) goTo(r route, arg string) {
	h.drain(h.m.navigate(r, arg))
}

func mockClipboard(t *testing.T) *string {
	t.Helper()
	var copied string
	orig := clipboardWriteAll
	clipboardWriteAll = func(s string) error {
		copied = s
		return nil
	}
	t.Cleanup(func() { clipboardWriteAll = orig })
	return &copied
}

func TestGuard(t *testing.T) {
	tests := []struct {
		name   string
		to     route
		authed bool
		want   route
	}{
		{"signed out goes to login", routeDashboard, false, routeLogin},
		{"signed out detail goes to login", routeDetail, false, routeLogin},
		{"signed in skips login", routeLogin, true, routeDashboard},
		{"signed in keeps route", routeSettings, true, routeSettings},
		{"signed out stays on login", routeLogin, false, routeLogin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guard(tt.to, tt.authed))
		})
	}
}

func TestStartsOnLoginWithoutToken(t *testing.T) {
	h := newHarness(t, false)

	assert.Equal(t, routeLogin, h.m.route)
	assert.Contains(t, h.m.View(), "Sign in")
	assert.Empty(t, h.srv.Requests(), "no stored token means no hydrate call")
}

func TestRestoresSessionOntoDashboard(t *testing.T) {
	h := newHarness(t, true)

	require.Equal(t, routeDashboard, h.m.route)
	view := h.m.View()
	assert.Contains(t, view, "Admin CFRM")
	assert.Contains(t, view, "Recent tickets")
	assert.Contains(t, view, seededTitle)
	assert.Contains(t, view, "Token: ")
	assert.Contains(t, view, "left")
}

func TestLoginThenDashboard(t *testing.T) {
	h := newHarness(t, false)
	p, ok := h.m.page.(*loginPage)
	require.True(t, ok)

	h.drain(p.submit(cfrm.Credentials{Username: fakeapi.AdminUsername, Password: fakeapi.AdminPassword}))

	assert.Equal(t, routeDashboard, h.m.route)
	_, ok = h.tokens.Get(tokenstore.RefreshKey)
	assert.True(t, ok)
}

func TestLoginShowsBackendMessage(t *testing.T) {
	h := newHarness(t, false)
	p := h.m.page.(*loginPage)

	h.drain(p.submit(cfrm.Credentials{Username: "admin", Password: "nope"}))

	assert.Equal(t, routeLogin, h.m.route)
	assert.Contains(t, h.m.View(), "Identifiants invalides")
}

func TestTabHotkeys(t *testing.T) {
	h := newHarness(t, true)

	h.press("2")
	assert.Equal(t, routeTickets, h.m.route)

	h.press("8")
	assert.Equal(t, routeSettings, h.m.route)

	h.press("9")
	assert.Equal(t, routeSettings, h.m.route, "no ninth tab")
}

func TestTickets_AlertThenRetry(t *testing.T) {
	h := newHarness(t, true)
	h.srv.FailNext(http.MethodGet, "/tickets/", http.StatusInternalServerError)

	h.goTo(routeTickets, "")
	view := h.m.View()
	assert.Contains(t, view, "ALERT")
	assert.Contains(t, view, "forced 500")

	h.press("r")
	view = h.m.View()
	assert.NotContains(t, view, "ALERT")
	assert.Contains(t, view, seededTitle)
}

func TestTickets_ReferenceFailureShownAndRetried(t *testing.T) {
	h := newHarness(t, true)
	h.srv.FailNext(http.MethodGet, "/categories/", http.StatusInternalServerError)
	h.goTo(routeTickets, "")

	p := h.m.page.(*ticketsPage)
	require.Error(t, p.refs.err)
	view := h.m.View()
	assert.Contains(t, view, "filter options")
	assert.Contains(t, view, seededTitle)

	h.press("r")
	assert.NoError(t, p.refs.err)
	assert.True(t, p.refs.loaded)
	assert.NotContains(t, h.m.View(), "filter options")
}

func TestTickets_BareAndPaginatedRenderAlike(t *testing.T) {
	bare := newHarness(t, true)
	paged := newHarness(t, true, fakeapi.WithPagination())

	bare.goTo(routeTickets, "")
	paged.goTo(routeTickets, "")

	b := bare.m.page.(*ticketsPage)
	p := paged.m.page.(*ticketsPage)
	require.True(t, b.list.loaded)
	require.True(t, p.list.loaded)

	assert.Equal(t, b.table.View(), p.table.View())
	assert.Contains(t, b.table.View(), seededTitle)
}

func TestTickets_StaleReplyIsDropped(t *testing.T) {
	h := newHarness(t, true)
	h.goTo(routeTickets, "")
	p := h.m.page.(*ticketsPage)

	stale := p.fetch()
	fresh := p.fetch()

	// the first request was cancelled and superseded
	h.drain(stale)
	h.drain(fresh)
	assert.Contains(t, p.table.View(), seededTitle)

	h.send(loadedMsg[cfrm.ListResult[cfrm.Ticket]]{
		gen:  p.list.f.gen - 1,
		data: cfrm.NewBareList([]cfrm.Ticket{{Title: "stale row"}}),
	})
	assert.NotContains(t, p.table.View(), "stale row")
	assert.Contains(t, p.table.View(), seededTitle)
}

func TestTickets_EnterOpensDetail(t *testing.T) {
	h := newHarness(t, true)
	h.goTo(routeTickets, "")

	h.press("enter")

	require.Equal(t, routeDetail, h.m.route)
	d := h.m.page.(*detailPage)
	require.True(t, d.ticket.loaded)
	assert.Equal(t, h.srv.Tickets()[0].Id.String(), d.id)
}

func TestNewTicket_CreateShowsUpInList(t *testing.T) {
	h := newHarness(t, true)
	h.goTo(routeNewTicket, "")

	p := h.m.page.(*newTicketPage)
	require.True(t, p.refs.loaded)

	h.drain(p.submit(cfrm.TicketInput{
		Title:    "Pompe en panne",
		Content:  "La pompe du quartier nord ne fonctionne plus.",
		Category: "2",
		Priority: "2",
		Channel:  "1",
	}))

	require.Equal(t, routeDetail, h.m.route)
	d := h.m.page.(*detailPage)
	require.True(t, d.ticket.loaded)
	assert.Equal(t, "Pompe en panne", d.ticket.data.Title)
	assert.Contains(t, h.m.status, "CREATED")

	h.goTo(routeTickets, "")
	assert.Contains(t, h.m.page.(*ticketsPage).table.View(), "Pompe en panne")
}

func TestNewTicket_ValidatesLocally(t *testing.T) {
	h := newHarness(t, true)
	h.goTo(routeNewTicket, "")
	p := h.m.page.(*newTicketPage)
	before := len(h.srv.RequestsTo(http.MethodPost, "/tickets/"))

	h.drain(p.submit(cfrm.TicketInput{Title: "Sans contenu"}))

	assert.Equal(t, routeNewTicket, h.m.route)
	assert.Contains(t, h.m.View(), "missing required fields")
	assert.Len(t, h.srv.RequestsTo(http.MethodPost, "/tickets/"), before)
}

func TestDetail_CloseAndCopyId(t *testing.T) {
	copied := mockClipboard(t)
	h := newHarness(t, true)
	id := h.srv.Tickets()[0].Id.String()
	h.goTo(routeDetail, id)

	h.press("c")
	assert.Equal(t, "Fermé", h.srv.Tickets()[0].StatusLabel())
	assert.Equal(t, "Fermé", h.m.page.(*detailPage).ticket.data.StatusLabel())

	h.press("y")
	assert.Equal(t, id, *copied)
	assert.Contains(t, h.m.status, "COPIED")
}

func TestDetail_AssignReportsUserLoadFailure(t *testing.T) {
	h := newHarness(t, true)
	h.goTo(routeDetail, h.srv.Tickets()[0].Id.String())
	h.srv.FailNext(http.MethodGet, "/users/", http.StatusInternalServerError)

	h.press("a")

	p := h.m.page.(*detailPage)
	assert.Contains(t, h.m.status, "ERROR")
	assert.Equal(t, noForm, p.formKind)
	assert.Nil(t, p.form)

	h.press("a")
	assert.Equal(t, assignForm, p.formKind)
	assert.NotNil(t, p.form)
}

func TestDetail_InvalidIdShowsAlert(t *testing.T) {
	h := newHarness(t, true)
	h.goTo(routeDetail, "not-a-uuid")

	assert.Contains(t, h.m.View(), "ALERT")
	assert.Empty(t, h.srv.RequestsTo(http.MethodGet, "/tickets/not-a-uuid/"))

	h.press("esc")
	assert.Equal(t, routeTickets, h.m.route)
}

func TestLogoutKey(t *testing.T) {
	h := newHarness(t, true)

	h.press("L")

	assert.Equal(t, routeLogin, h.m.route)
	assert.Contains(t, h.m.View(), "SIGNED OUT")
	_, ok := h.tokens.Get(tokenstore.TokenKey)
	assert.False(t, ok)
}

func TestExpiredSessionRedirectsToLogin(t *testing.T) {
	h := newHarness(t, true)
	h.srv.FailNext(http.MethodGet, "/tickets/", http.StatusUnauthorized)

	h.goTo(routeTickets, "")

	assert.Equal(t, routeLogin, h.m.route)
	assert.Contains(t, h.m.status, "SESSION EXPIRED")
}

func TestReports_GenerateAndCopyUrl(t *testing.T) {
	copied := mockClipboard(t)
	h := newHarness(t, true)
	h.goTo(routeReports, "")
	p := h.m.page.(*reportsPage)

	h.drain(p.generate(p.req))
	require.True(t, p.report.loaded)

	h.press("y")
	assert.True(t, strings.HasPrefix(*copied, h.srv.URL()+"/reports/download/"), *copied)
}

func TestSettings_ProfileUpdatesHeading(t *testing.T) {
	h := newHarness(t, true)
	h.goTo(routeSettings, "")
	p := h.m.page.(*settingsPage)
	require.True(t, p.prefs.loaded)

	h.drain(p.submit(profileForm, settingsDraft{fullName: "Coordinatrice Terrain", emailAddress: "coord@example.org"}))

	assert.Contains(t, h.m.View(), "Coordinatrice Terrain")
	assert.Contains(t, h.m.status, "SAVED")
}

func TestQuit(t *testing.T) {
	h := newHarness(t, true)

	_, cmd := h.m.Update(keyPress("ctrl+q"))

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, h.m.View())
}
