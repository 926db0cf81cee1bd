// Package tui is the interactive CFRM console: a tabbed bubbletea program
// with one page per screen of the web console.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dsrosen/cfrm-console/internal/session"
	"github.com/dustin/go-humanize"
)

const appTitle = "CFRM Console"

// clipboardWriteAll is swapped out in tests.
var clipboardWriteAll = clipboard.WriteAll

var ansi = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

type Deps struct {
	Client  *cfrm.Client
	Session *session.Store
	Now     func() time.Time
}

// env is shared by every page.
type env struct {
	ctx     context.Context
	client  *cfrm.Client
	session *session.Store
	now     func() time.Time
	width   int
	height  int
}

type page interface {
	Init() tea.Cmd
	Update(msg tea.Msg) tea.Cmd
	View() string
	// Typing reports whether a form has the keyboard, in which case the
	// global hotkeys stand down.
	Typing() bool
	Close()
}

type Model struct {
	env *env

	route   route
	page    page
	spinner spinner.Model
	status  string

	hydrated bool
	quitting bool

	// expired is set from whatever goroutine saw the 401.
	expired atomic.Bool

	// user mirrors the session through its subscription.
	user        atomic.Pointer[cfrm.User]
	unsubscribe func()
}

type hydratedMsg struct{}

type loggedOutMsg struct{}

type statusMsg string

type navigateMsg struct {
	to  route
	arg string
}

func navigate(to route, arg string) tea.Cmd {
	return func() tea.Msg { return navigateMsg{to: to, arg: arg} }
}

func notify(s string) tea.Cmd {
	return func() tea.Msg { return statusMsg(s) }
}

func New(ctx context.Context, deps Deps) *Model {
	spnr := spinner.New()
	spnr.Spinner = spinner.Ellipsis
	spnr.Style = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "236", Dark: "248"})

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	m := &Model{
		env: &env{
			ctx:     ctx,
			client:  deps.Client,
			session: deps.Session,
			now:     now,
			width:   100,
			height:  30,
		},
		spinner: spnr,
	}

	deps.Session.SetNavigator(session.NavigatorFunc(func() { m.expired.Store(true) }))
	m.user.Store(deps.Session.User())
	m.unsubscribe = deps.Session.Subscribe(func(u *cfrm.User) { m.user.Store(u) })
	return m
}

// Run starts the console and blocks until the user quits.
func Run(ctx context.Context, deps Deps) error {
	m := New(ctx, deps)
	defer m.unsubscribe()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running console: %w", err)
	}
	return nil
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.hydrate())
}

func (m *Model) hydrate() tea.Cmd {
	if !m.env.session.Loading() {
		return func() tea.Msg { return hydratedMsg{} }
	}
	return func() tea.Msg {
		m.env.session.Hydrate(m.env.ctx)
		return hydratedMsg{}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		slog.Debug("got WindowSizeMsg", "width", msg.Width, "height", msg.Height)
		m.env.width = msg.Width
		m.env.height = msg.Height

	case hydratedMsg:
		m.hydrated = true
		// a 401 during hydrate is not a session expiry
		m.expired.Store(false)
		return m, m.navigate(routeDashboard, "")

	case navigateMsg:
		return m, m.navigate(msg.to, msg.arg)

	case loggedOutMsg:
		m.expired.Store(false)
		m.status = goodGreenOutput("SIGNED OUT", "see you soon")
		return m, m.navigate(routeLogin, "")

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	cmds = append(cmds, cmd)

	if m.page != nil {
		cmds = append(cmds, m.page.Update(msg))
	}

	if m.expired.Swap(false) && m.route != routeLogin {
		m.status = warnYellowOutput("SESSION EXPIRED", "please sign in again")
		cmds = append(cmds, m.navigate(routeLogin, ""))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "ctrl+q":
		m.quitting = true
		return tea.Quit, true
	}

	if !m.hydrated || m.page == nil || m.page.Typing() || !m.env.session.Authenticated() {
		return nil, false
	}

	k := msg.String()
	switch {
	case k == "L":
		return m.logout(), true
	case len(k) == 1 && k[0] >= '1' && int(k[0]-'1') < len(tabs):
		return m.navigate(tabs[k[0]-'1'], ""), true
	}

	return nil, false
}

func (m *Model) logout() tea.Cmd {
	m.status = infoOutput("SIGNING OUT", "")
	return func() tea.Msg {
		m.env.session.Logout(m.env.ctx)
		return loggedOutMsg{}
	}
}

func (m *Model) navigate(to route, arg string) tea.Cmd {
	dest := guard(to, m.env.session.Authenticated())
	if dest != to {
		slog.Debug("route guarded", "requested", to, "landed", dest)
	}

	if m.page != nil {
		m.page.Close()
	}

	m.route = dest
	m.page = m.newPage(dest, arg)
	return m.page.Init()
}

func (m *Model) newPage(r route, arg string) page {
	switch r {
	case routeLogin:
		return newLoginPage(m.env)
	case routeTickets:
		return newTicketsPage(m.env)
	case routeDetail:
		return newDetailPage(m.env, arg)
	case routeNewTicket:
		return newNewTicketPage(m.env)
	case routeImport:
		return newImportPage(m.env)
	case routeChannels:
		return newChannelsPage(m.env)
	case routeReports:
		return newReportsPage(m.env)
	case routeAnalytics:
		return newAnalyticsPage(m.env)
	case routeSettings:
		return newSettingsPage(m.env)
	default:
		return newDashboardPage(m.env)
	}
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	w := m.env.width
	views := []string{titleBar(m.heading(), w)}

	if !m.hydrated {
		views = append(views, "\n "+m.runSpinner("Restoring session"))
		return lipgloss.JoinVertical(lipgloss.Left, views...)
	}

	if m.route != routeLogin {
		active := m.route
		if active == routeDetail {
			active = routeTickets
		}
		views = append(views, menuBar(tabs, active, w))
	}

	body := lipgloss.NewStyle().Width(w).PaddingLeft(1).Render(m.page.View())
	views = append(views, body)

	if m.status != "" {
		views = append(views, " "+m.status)
	}
	views = append(views, titleBar(m.footer(), w))

	return lipgloss.JoinVertical(lipgloss.Left, views...)
}

func (m *Model) heading() string {
	if u := m.user.Load(); u != nil {
		return fmt.Sprintf("%s | %s", appTitle, u.DisplayName())
	}
	return appTitle
}

func (m *Model) footer() string {
	if m.route == routeLogin {
		return "ENTER: Sign in | CTRL+Q: Exit"
	}
	keys := "1-8: Pages | L: Log out | CTRL+Q: Exit"
	if exp, ok := m.env.session.TokenExpiry(); ok {
		return keys + " | Token: " + humanize.RelTime(m.env.now(), exp, "left", "ago")
	}
	return keys
}

func (m *Model) runSpinner(text string) string {
	return fmt.Sprintf("%s%s", text, m.spinner.View())
}

func spin(text string) string {
	return textFaint(text + "...")
}

// copyToClipboard strips styling before writing s.
func copyToClipboard(what, s string) tea.Cmd {
	return func() tea.Msg {
		plaintext := ansi.ReplaceAllString(s, "")
		if err := clipboardWriteAll(strings.TrimSpace(plaintext)); err != nil {
			slog.Error("copying to clipboard", "what", what, "error", err)
			return statusMsg(badRedOutput("ERROR", "couldn't copy "+what+" to clipboard"))
		}
		slog.Debug("copied to clipboard", "what", what)
		return statusMsg(goodGreenOutput("COPIED", what))
	}
}
