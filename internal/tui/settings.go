package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
)

type settingsForm int

const (
	noSettingsForm settingsForm = iota
	prefsForm
	passwordForm
	profileForm
)

type settingsDraft struct {
	theme        string
	itemsPerPage string
	defaultView  string
	email        bool
	sms          bool
	push         bool

	oldPassword string
	newPassword string
	confirm     string

	fullName     string
	emailAddress string
}

type settingsPage struct {
	env *env

	prefs  *loadState[*cfrm.UserPreferences]
	act    *fetcher
	acting bool

	form     *huh.Form
	formKind settingsForm
	draft    settingsDraft
}

func newSettingsPage(e *env) *settingsPage {
	return &settingsPage{
		env:   e,
		prefs: newLoadState[*cfrm.UserPreferences](e.ctx),
		act:   newFetcher(e.ctx),
	}
}

func (p *settingsPage) Init() tea.Cmd { return p.fetch() }
func (p *settingsPage) Typing() bool  { return p.form != nil }

func (p *settingsPage) Close() {
	p.prefs.stop()
	p.act.stop()
}

func (p *settingsPage) fetch() tea.Cmd {
	c := p.env.client
	return p.prefs.start(func(ctx context.Context) (*cfrm.UserPreferences, error) {
		return c.MyPreferences(ctx)
	})
}

func (p *settingsPage) run(label string, fn func(ctx context.Context) error) tea.Cmd {
	p.acting = true
	ctx, gen := p.act.next()
	return func() tea.Msg {
		return actionMsg{gen: gen, label: label, err: fn(ctx)}
	}
}

func (p *settingsPage) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loadedMsg[*cfrm.UserPreferences]:
		p.prefs.apply(msg)
		return nil

	case actionMsg:
		if !p.act.current(msg.gen) {
			return nil
		}
		p.acting = false
		if msg.err != nil {
			return notify(badRedOutput("ERROR", apiMessage(msg.err)))
		}
		return notify(goodGreenOutput("SAVED", msg.label))
	}

	if p.form != nil {
		form, cmd := p.form.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			p.form = f
		}
		switch p.form.State {
		case huh.StateCompleted:
			kind := p.formKind
			p.form, p.formKind = nil, noSettingsForm
			return p.submit(kind, p.draft)
		case huh.StateAborted:
			p.form, p.formKind = nil, noSettingsForm
			return nil
		}
		return cmd
	}

	k, ok := msg.(tea.KeyMsg)
	if !ok || p.acting {
		return nil
	}

	switch k.String() {
	case "r":
		return p.fetch()
	case "p":
		if p.prefs.loaded {
			return p.openForm(prefsForm)
		}
	case "c":
		return p.openForm(passwordForm)
	case "e":
		return p.openForm(profileForm)
	}
	return nil
}

func (p *settingsPage) openForm(kind settingsForm) tea.Cmd {
	p.formKind = kind
	p.draft = settingsDraft{}

	switch kind {
	case prefsForm:
		pr := p.prefs.data
		p.draft.theme = pr.Theme
		p.draft.itemsPerPage = strconv.Itoa(pr.ItemsPerPage)
		p.draft.defaultView = pr.DefaultView
		p.draft.email = boolOr(pr.EmailNotifications, true)
		p.draft.sms = boolOr(pr.SmsNotifications, false)
		p.draft.push = boolOr(pr.PushNotifications, true)

		themes := make([]huh.Option[string], 0, len(cfrm.Themes))
		for _, t := range cfrm.Themes {
			themes = append(themes, huh.NewOption(t, t))
		}
		p.form = newForm(huh.NewGroup(
			huh.NewSelect[string]().Title("Theme").Options(themes...).Value(&p.draft.theme),
			huh.NewInput().Title("Items per page").Value(&p.draft.itemsPerPage).Validate(positiveInt),
			huh.NewSelect[string]().Title("Default view").
				Options(huh.NewOption("List", "list"), huh.NewOption("Cards", "cards")).
				Value(&p.draft.defaultView),
			huh.NewConfirm().Title("Email notifications").Value(&p.draft.email),
			huh.NewConfirm().Title("SMS notifications").Value(&p.draft.sms),
			huh.NewConfirm().Title("Push notifications").Value(&p.draft.push),
		))

	case passwordForm:
		p.form = newForm(huh.NewGroup(
			huh.NewInput().Title("Current password").EchoMode(huh.EchoModePassword).
				Value(&p.draft.oldPassword).Validate(required("current password")),
			huh.NewInput().Title("New password").EchoMode(huh.EchoModePassword).
				Value(&p.draft.newPassword).Validate(required("new password")),
			huh.NewInput().Title("Confirm new password").EchoMode(huh.EchoModePassword).
				Value(&p.draft.confirm).
				Validate(func(s string) error {
					if s != p.draft.newPassword {
						return errors.New("passwords do not match")
					}
					return nil
				}),
		))

	case profileForm:
		if u := p.env.session.User(); u != nil {
			p.draft.fullName = u.FullName
			p.draft.emailAddress = u.Email
		}
		p.form = newForm(huh.NewGroup(
			huh.NewInput().Title("Full name").Value(&p.draft.fullName).Validate(required("full name")),
			huh.NewInput().Title("Email").Value(&p.draft.emailAddress),
		))
	}

	return p.form.Init()
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return errors.New("enter a positive number")
	}
	return nil
}

func (p *settingsPage) submit(kind settingsForm, d settingsDraft) tea.Cmd {
	c, sess := p.env.client, p.env.session

	switch kind {
	case prefsForm:
		n, _ := strconv.Atoi(strings.TrimSpace(d.itemsPerPage))
		prefs := cfrm.UserPreferences{
			Theme:              d.theme,
			ItemsPerPage:       n,
			DefaultView:        d.defaultView,
			EmailNotifications: &d.email,
			SmsNotifications:   &d.sms,
			PushNotifications:  &d.push,
		}
		return p.run("preferences", func(ctx context.Context) error {
			_, err := c.UpdateMyPreferences(ctx, prefs)
			return err
		})

	case passwordForm:
		change := cfrm.PasswordChange{OldPassword: d.oldPassword, NewPassword: d.newPassword}
		return p.run("password changed", func(ctx context.Context) error {
			return c.ChangePassword(ctx, change)
		})

	case profileForm:
		name, email := strings.TrimSpace(d.fullName), strings.TrimSpace(d.emailAddress)
		patch := cfrm.UserPatch{FullName: &name, Email: &email}
		return p.run("profile", func(ctx context.Context) error {
			if _, err := c.UpdateProfile(ctx, patch); err != nil {
				return err
			}
			sess.UpdateUser(patch)
			return nil
		})
	}
	return nil
}

func (p *settingsPage) View() string {
	if p.form != nil {
		return "\n" + p.form.View()
	}

	var s strings.Builder
	s.WriteString("\n")

	if u := p.env.session.User(); u != nil {
		s.WriteString(textBlue("Profile") + "\n")
		s.WriteString(infoOutput("Name", u.DisplayName()) + "\n")
		s.WriteString(infoOutput("Username", u.Username) + "\n")
		s.WriteString(infoOutput("Email", u.Email) + "\n")
		if u.Role.Name != "" {
			s.WriteString(infoOutput("Role", u.Role.Name) + "\n")
		}
		if u.Organization.Name != "" {
			s.WriteString(infoOutput("Organization", u.Organization.Name) + "\n")
		}
		s.WriteString("\n")
	}

	s.WriteString(textBlue("Preferences") + "\n")
	switch {
	case p.prefs.err != nil:
		s.WriteString(alertPanel("Could not load preferences.", p.prefs.err) + "\n")
	case !p.prefs.loaded:
		s.WriteString(spin("Loading preferences") + "\n")
	default:
		pr := p.prefs.data
		s.WriteString(infoOutput("Theme", pr.Theme) + "\n")
		s.WriteString(infoOutput("Items per page", fmt.Sprint(pr.ItemsPerPage)) + "\n")
		s.WriteString(infoOutput("Default view", pr.DefaultView) + "\n")
		s.WriteString(infoOutput("Notifications", notifications(pr)) + "\n")
	}

	footer := textFaint("p: edit preferences | e: edit profile | c: change password | r: refresh")
	if p.acting {
		footer = spin("Saving")
	}
	s.WriteString("\n" + footer)
	return s.String()
}

func notifications(pr *cfrm.UserPreferences) string {
	var on []string
	if boolOr(pr.EmailNotifications, true) {
		on = append(on, "email")
	}
	if boolOr(pr.SmsNotifications, false) {
		on = append(on, "sms")
	}
	if boolOr(pr.PushNotifications, true) {
		on = append(on, "push")
	}
	if len(on) == 0 {
		return "off"
	}
	return strings.Join(on, ", ")
}
