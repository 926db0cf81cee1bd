package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/dsrosen/cfrm-console/internal/api"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
)

type ticketDraft struct {
	title       string
	content     string
	category    string
	priority    string
	channel     string
	anonymous   bool
	name        string
	phone       string
	location    string
	tags        string
	attachments string
}

type createdMsg struct {
	gen    int64
	ticket *cfrm.Ticket
	err    error
}

type newTicketPage struct {
	env *env

	refs  *loadState[*cfrm.ReferenceData]
	form  *huh.Form
	draft ticketDraft

	f          *fetcher
	submitting bool
	err        error
}

func newNewTicketPage(e *env) *newTicketPage {
	return &newTicketPage{
		env:  e,
		refs: newLoadState[*cfrm.ReferenceData](e.ctx),
		f:    newFetcher(e.ctx),
	}
}

func (p *newTicketPage) Init() tea.Cmd { return p.fetchRefs() }

func (p *newTicketPage) Typing() bool { return p.form != nil && !p.submitting }

func (p *newTicketPage) Close() {
	p.refs.stop()
	p.f.stop()
}

func (p *newTicketPage) fetchRefs() tea.Cmd {
	c := p.env.client
	return p.refs.start(func(ctx context.Context) (*cfrm.ReferenceData, error) {
		return c.ReferenceData(ctx)
	})
}

func (p *newTicketPage) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loadedMsg[*cfrm.ReferenceData]:
		if p.refs.apply(msg) && msg.err == nil {
			p.form = p.ticketForm(msg.data)
			return p.form.Init()
		}
		return nil

	case createdMsg:
		if !p.f.current(msg.gen) {
			return nil
		}
		p.submitting = false
		if msg.err != nil {
			p.err = msg.err
			p.form = p.ticketForm(p.refs.data)
			return p.form.Init()
		}
		return tea.Batch(
			notify(goodGreenOutput("CREATED", msg.ticket.Title)),
			navigate(routeDetail, msg.ticket.Id.String()),
		)

	case tea.KeyMsg:
		if p.refs.err != nil && msg.String() == "r" {
			return p.fetchRefs()
		}
	}

	if p.form == nil || p.submitting {
		return nil
	}

	form, cmd := p.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		p.form = f
	}

	switch p.form.State {
	case huh.StateCompleted:
		in, err := p.draft.input()
		if err != nil {
			p.err = err
			p.form = p.ticketForm(p.refs.data)
			return p.form.Init()
		}
		return p.submit(in)
	case huh.StateAborted:
		return navigate(routeTickets, "")
	}
	return cmd
}

func (p *newTicketPage) submit(in cfrm.TicketInput) tea.Cmd {
	p.err = nil
	if missing := in.Validate(); missing != nil {
		p.err = &cfrm.ValidationError{Fields: missing}
		if p.refs.data == nil {
			return nil
		}
		p.form = p.ticketForm(p.refs.data)
		return p.form.Init()
	}

	p.submitting = true
	c := p.env.client
	ctx, gen := p.f.next()
	return func() tea.Msg {
		var (
			t   *cfrm.Ticket
			err error
		)
		if len(in.Attachments) > 0 {
			t, err = c.CreateTicketMultipart(ctx, in, nil)
			closeAttachments(in.Attachments)
		} else {
			t, err = c.CreateTicket(ctx, in)
		}
		return createdMsg{gen: gen, ticket: t, err: err}
	}
}

func closeAttachments(files []api.FormFile) {
	for _, f := range files {
		if c, ok := f.Reader.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}

func (d ticketDraft) input() (cfrm.TicketInput, error) {
	in := cfrm.TicketInput{
		Title:             strings.TrimSpace(d.title),
		Content:           strings.TrimSpace(d.content),
		Category:          d.category,
		Priority:          d.priority,
		Channel:           d.channel,
		IsAnonymous:       d.anonymous,
		SubmitterLocation: strings.TrimSpace(d.location),
		Tags:              splitList(d.tags),
	}
	if !d.anonymous {
		in.SubmitterName = strings.TrimSpace(d.name)
		in.SubmitterPhone = strings.TrimSpace(d.phone)
	}

	for _, path := range splitList(d.attachments) {
		f, err := os.Open(path)
		if err != nil {
			closeAttachments(in.Attachments)
			return cfrm.TicketInput{}, fmt.Errorf("opening attachment: %w", err)
		}
		in.Attachments = append(in.Attachments, api.FormFile{Field: "attachments", Name: filepath.Base(path), Reader: f})
	}

	return in, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *newTicketPage) ticketForm(rd *cfrm.ReferenceData) *huh.Form {
	var categories, priorities, channels []huh.Option[string]
	for _, c := range rd.Categories {
		categories = append(categories, huh.NewOption(c.Name, c.Id.String()))
	}
	for _, pr := range rd.Priorities {
		priorities = append(priorities, huh.NewOption(pr.Name, pr.Id.String()))
	}
	for _, ch := range rd.Channels {
		if ch.IsActive {
			channels = append(channels, huh.NewOption(ch.Name, ch.Id.String()))
		}
	}

	return newForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(&p.draft.title).Validate(required("title")),
			huh.NewText().Title("Content").Value(&p.draft.content).Validate(required("content")),
		),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Category").Options(categories...).Value(&p.draft.category),
			huh.NewSelect[string]().Title("Priority").Options(priorities...).Value(&p.draft.priority),
			huh.NewSelect[string]().Title("Channel").Options(channels...).Value(&p.draft.channel),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Anonymous submission?").Value(&p.draft.anonymous),
			huh.NewInput().Title("Submitter name").Value(&p.draft.name),
			huh.NewInput().Title("Submitter phone").Value(&p.draft.phone),
			huh.NewInput().Title("Location").Value(&p.draft.location),
			huh.NewInput().Title("Tags").Description("comma separated").Value(&p.draft.tags),
			huh.NewInput().Title("Attachments").Description("comma separated file paths").Value(&p.draft.attachments),
		),
	)
}

func (p *newTicketPage) View() string {
	switch {
	case p.refs.err != nil:
		return "\n" + alertPanel("Could not load categories, priorities and channels.", p.refs.err)
	case !p.refs.loaded:
		return "\n" + spin("Loading form")
	case p.submitting:
		return "\n" + spin("Creating ticket")
	}

	var s strings.Builder
	s.WriteString("\n" + textBlue("New ticket") + "\n\n")
	if p.err != nil {
		s.WriteString(submitError(p.err) + "\n\n")
	}
	if p.form != nil {
		s.WriteString(p.form.View())
	}
	return s.String()
}

// submitError lists field errors one per line when the backend sent them.
func submitError(err error) string {
	var ae *api.Error
	if !errors.As(err, &ae) {
		return badRedOutput("ERROR", apiMessage(err))
	}

	fields := ae.FieldErrors()
	if len(fields) == 0 {
		return badRedOutput("ERROR", apiMessage(err))
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{badRedOutput("ERROR", "the backend rejected the ticket")}
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %s", k, strings.Join(fields[k], " ")))
	}
	return strings.Join(lines, "\n")
}
