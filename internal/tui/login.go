package tui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dsrosen/cfrm-console/internal/session"
)

type loginPage struct {
	env *env

	form     *huh.Form
	username string
	password string

	submitting bool
	err        string
	f          *fetcher
}

type loginResultMsg struct {
	gen int64
	err error
}

func newLoginPage(e *env) *loginPage {
	p := &loginPage{env: e, f: newFetcher(e.ctx)}
	p.form = p.loginForm()
	return p
}

func (p *loginPage) loginForm() *huh.Form {
	p.password = ""
	return newForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(&p.username).
				Validate(required("username")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&p.password).
				Validate(required("password")),
		),
	)
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}

func (p *loginPage) Init() tea.Cmd {
	return p.form.Init()
}

func (p *loginPage) Typing() bool { return !p.submitting }

func (p *loginPage) Close() { p.f.stop() }

func (p *loginPage) Update(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(loginResultMsg); ok {
		if !p.f.current(msg.gen) {
			return nil
		}
		p.submitting = false
		if msg.err != nil {
			var le *session.LoginError
			if errors.As(msg.err, &le) {
				p.err = le.Message
			} else {
				p.err = msg.err.Error()
			}
			p.form = p.loginForm()
			return p.form.Init()
		}
		return navigate(routeDashboard, "")
	}

	if p.submitting {
		return nil
	}

	form, cmd := p.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		p.form = f
	}

	switch p.form.State {
	case huh.StateCompleted:
		return tea.Batch(cmd, p.submit(cfrm.Credentials{Username: p.username, Password: p.password}))
	case huh.StateAborted:
		p.form = p.loginForm()
		return p.form.Init()
	}

	return cmd
}

func (p *loginPage) submit(creds cfrm.Credentials) tea.Cmd {
	p.submitting = true
	p.err = ""
	ctx, gen := p.f.next()
	return func() tea.Msg {
		_, err := p.env.session.Login(ctx, creds)
		return loginResultMsg{gen: gen, err: err}
	}
}

func (p *loginPage) View() string {
	var s strings.Builder
	s.WriteString("\nSign in to the complaint and feedback console.\n\n")

	if p.submitting {
		s.WriteString(spin("Signing in"))
		return s.String()
	}

	if p.err != "" {
		s.WriteString(badRedOutput("ERROR", p.err))
		s.WriteString("\n\n")
	}
	s.WriteString(p.form.View())
	return s.String()
}
