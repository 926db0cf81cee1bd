package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dustin/go-humanize"
)

type detailForm int

const (
	noForm detailForm = iota
	escalateForm
	assignForm
	respondForm
	feedbackForm
)

type actionMsg struct {
	gen   int64
	label string
	err   error
}

type detailPage struct {
	env *env
	id  string

	ticket *loadState[*cfrm.Ticket]
	users  *loadState[[]cfrm.User]
	act    *fetcher
	acting string

	viewport viewport.Model
	rendered string

	form     *huh.Form
	formKind detailForm
	draft    actionDraft
}

type actionDraft struct {
	escalateTo string
	assignee   string
	response   string
	internal   bool
	rating     string
	comments   string
}

func newDetailPage(e *env, id string) *detailPage {
	return &detailPage{
		env:      e,
		id:       id,
		ticket:   newLoadState[*cfrm.Ticket](e.ctx),
		users:    newLoadState[[]cfrm.User](e.ctx),
		act:      newFetcher(e.ctx),
		viewport: viewport.New(e.width-2, max(5, e.height-10)),
	}
}

func (p *detailPage) Init() tea.Cmd { return p.fetch() }
func (p *detailPage) Typing() bool  { return p.form != nil }

func (p *detailPage) Close() {
	p.ticket.stop()
	p.users.stop()
	p.act.stop()
}

func (p *detailPage) fetch() tea.Cmd {
	c, id := p.env.client, p.id
	return p.ticket.start(func(ctx context.Context) (*cfrm.Ticket, error) {
		return c.GetTicket(ctx, id)
	})
}

func (p *detailPage) run(label string, fn func(ctx context.Context) error) tea.Cmd {
	p.acting = label
	ctx, gen := p.act.next()
	return func() tea.Msg {
		return actionMsg{gen: gen, label: label, err: fn(ctx)}
	}
}

func (p *detailPage) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loadedMsg[*cfrm.Ticket]:
		if p.ticket.apply(msg) && msg.err == nil {
			p.render()
		}
		return nil

	case loadedMsg[[]cfrm.User]:
		if !p.users.apply(msg) || p.formKind != assignForm {
			return nil
		}
		if msg.err != nil {
			p.formKind = noForm
			slog.Warn("loading assignable users", "ticketId", p.id, "error", msg.err)
			return notify(badRedOutput("ERROR", apiMessage(msg.err)))
		}
		return p.openAssign()

	case actionMsg:
		if !p.act.current(msg.gen) {
			return nil
		}
		p.acting = ""
		if msg.err != nil {
			slog.Warn("ticket action failed", "action", msg.label, "ticketId", p.id, "error", msg.err)
			return notify(badRedOutput("ERROR", apiMessage(msg.err)))
		}
		return tea.Batch(notify(goodGreenOutput("DONE", msg.label)), p.fetch())

	case tea.WindowSizeMsg:
		p.viewport.Width = msg.Width - 2
		p.viewport.Height = max(5, msg.Height-10)
		p.render()
		return nil
	}

	if p.form != nil {
		return p.updateForm(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		if cmd, handled := p.handleKey(msg.String()); handled {
			return cmd
		}
	}

	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return cmd
}

func (p *detailPage) handleKey(k string) (tea.Cmd, bool) {
	switch k {
	case "esc", "backspace":
		return navigate(routeTickets, ""), true
	case "r":
		return p.fetch(), true
	case "y":
		return copyToClipboard("ticket id", p.id), true
	}

	// actions need a loaded ticket and nothing else in flight
	if !p.ticket.loaded || p.acting != "" {
		return nil, false
	}

	c, id := p.env.client, p.id
	switch k {
	case "c":
		return p.run("ticket closed", func(ctx context.Context) error {
			_, err := c.CloseTicket(ctx, id)
			return err
		}), true
	case "o":
		return p.run("ticket reopened", func(ctx context.Context) error {
			_, err := c.ReopenTicket(ctx, id)
			return err
		}), true
	case "e":
		return p.openForm(escalateForm), true
	case "a":
		return p.openForm(assignForm), true
	case "R":
		return p.openForm(respondForm), true
	case "f":
		return p.openForm(feedbackForm), true
	}

	return nil, false
}

func (p *detailPage) openForm(kind detailForm) tea.Cmd {
	p.draft = actionDraft{rating: "5"}
	p.formKind = kind

	switch kind {
	case escalateForm:
		p.form = newForm(huh.NewGroup(
			huh.NewInput().Title("Escalate to").
				Description("Team or partner receiving the case").
				Value(&p.draft.escalateTo).
				Validate(required("escalation target")),
		))
	case assignForm:
		if !p.users.loaded {
			c := p.env.client
			return p.users.start(func(ctx context.Context) ([]cfrm.User, error) {
				return c.ListUsers(ctx)
			})
		}
		return p.openAssign()
	case respondForm:
		p.form = newForm(huh.NewGroup(
			huh.NewText().Title("Response").Value(&p.draft.response).Validate(required("response")),
			huh.NewConfirm().Title("Internal note?").Value(&p.draft.internal),
		))
	case feedbackForm:
		ratings := make([]huh.Option[string], 0, 5)
		for i := 5; i >= 1; i-- {
			ratings = append(ratings, huh.NewOption(strings.Repeat("*", i), strconv.Itoa(i)))
		}
		p.form = newForm(huh.NewGroup(
			huh.NewSelect[string]().Title("Satisfaction").Options(ratings...).Value(&p.draft.rating),
			huh.NewText().Title("Comments").Value(&p.draft.comments),
		))
	}

	return p.form.Init()
}

func (p *detailPage) openAssign() tea.Cmd {
	opts := make([]huh.Option[string], 0, len(p.users.data))
	for _, u := range p.users.data {
		opts = append(opts, huh.NewOption(u.DisplayName(), u.Id.String()))
	}
	if len(opts) == 0 {
		p.formKind = noForm
		return notify(warnYellowOutput("WARNING", "no users to assign to"))
	}

	p.form = newForm(huh.NewGroup(
		huh.NewSelect[string]().Title("Assign to").Options(opts...).Value(&p.draft.assignee),
	))
	return p.form.Init()
}

func (p *detailPage) updateForm(msg tea.Msg) tea.Cmd {
	form, cmd := p.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		p.form = f
	}

	switch p.form.State {
	case huh.StateCompleted:
		kind := p.formKind
		p.form, p.formKind = nil, noForm
		return p.submit(kind, p.draft)
	case huh.StateAborted:
		p.form, p.formKind = nil, noForm
		return nil
	}
	return cmd
}

func (p *detailPage) submit(kind detailForm, d actionDraft) tea.Cmd {
	c, id := p.env.client, p.id

	switch kind {
	case escalateForm:
		return p.run("ticket escalated", func(ctx context.Context) error {
			_, err := c.EscalateTicket(ctx, id, strings.TrimSpace(d.escalateTo))
			return err
		})
	case assignForm:
		return p.run("ticket assigned", func(ctx context.Context) error {
			_, err := c.AssignTicket(ctx, id, d.assignee)
			return err
		})
	case respondForm:
		return p.run("response added", func(ctx context.Context) error {
			_, err := c.CreateResponse(ctx, cfrm.ResponseInput{Ticket: id, Content: d.response, IsInternal: d.internal})
			return err
		})
	case feedbackForm:
		rating, _ := strconv.Atoi(d.rating)
		return p.run("feedback recorded", func(ctx context.Context) error {
			_, err := c.CreateFeedback(ctx, cfrm.FeedbackInput{Ticket: id, SatisfactionRating: rating, Comments: d.comments})
			return err
		})
	}
	return nil
}

// render lays the ticket out as markdown and hands it to the viewport.
func (p *detailPage) render() {
	t := p.ticket.data
	if t == nil {
		return
	}

	md := ticketMarkdown(t, p.env)
	out, err := renderMarkdown(md, p.viewport.Width)
	if err != nil {
		slog.Warn("rendering ticket markdown", "ticketId", p.id, "error", err)
		out = md
	}

	p.rendered = out
	p.viewport.SetContent(out)
}

func renderMarkdown(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(20, width-4)),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

func ticketMarkdown(t *cfrm.Ticket, e *env) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", t.Title)
	fmt.Fprintf(&b, "| Status | Priority | Category | Channel |\n|---|---|---|---|\n| %s | %s | %s | %s |\n\n",
		t.StatusLabel(), t.PriorityLabel(), t.CategoryLabel(), t.ChannelLabel())

	fmt.Fprintf(&b, "Created %s", humanize.RelTime(t.CreatedAt, e.now(), "ago", "from now"))
	if t.AssignedTo != nil {
		fmt.Fprintf(&b, ", assigned to **%s**", t.AssignedTo.Label())
	}
	if t.SlaDeadline != nil {
		fmt.Fprintf(&b, ", SLA due %s", humanize.RelTime(*t.SlaDeadline, e.now(), "ago", "from now"))
	}
	b.WriteString(".\n\n")

	if t.IsOverdue {
		b.WriteString("> **Overdue**\n\n")
	}
	if t.EscalatedTo != "" {
		fmt.Fprintf(&b, "> Escalated to %s\n\n", t.EscalatedTo)
	}
	if t.IsPsea {
		b.WriteString("> PSEA case: handle under the safeguarding protocol.\n\n")
	}

	b.WriteString("## Content\n\n")
	b.WriteString(t.Content)
	b.WriteString("\n\n")

	if !t.IsAnonymous && t.SubmitterName != "" {
		fmt.Fprintf(&b, "Submitted by %s", t.SubmitterName)
		if t.SubmitterPhone != "" {
			fmt.Fprintf(&b, " (%s)", t.SubmitterPhone)
		}
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "## Responses (%d)\n\n", len(t.Responses))
	for _, r := range t.Responses {
		who := "unknown"
		if r.Author != nil {
			who = r.Author.Label()
		}
		tag := ""
		if r.IsInternal {
			tag = " _(internal)_"
		}
		fmt.Fprintf(&b, "- **%s**%s: %s\n", who, tag, r.Content)
	}

	fmt.Fprintf(&b, "\n## History (%d)\n\n", len(t.Logs))
	for _, l := range t.Logs {
		action := l.ActionDisplay
		if action == "" {
			action = l.Action
		}
		fmt.Fprintf(&b, "- %s %s: %s\n", humanize.RelTime(l.CreatedAt, e.now(), "ago", "from now"), action, l.Description)
	}

	if fb := t.Feedback; fb != nil {
		fmt.Fprintf(&b, "\n## Feedback\n\n%s %s\n", strings.Repeat("*", min(max(fb.SatisfactionRating, 0), 5)), fb.Comments)
	}

	return b.String()
}

func (p *detailPage) View() string {
	switch {
	case p.ticket.err != nil:
		return "\n" + alertPanel("Could not load ticket "+p.id+".", p.ticket.err) +
			"\n" + textFaint("esc: back")
	case !p.ticket.loaded:
		return "\n" + spin("Loading ticket")
	case p.form != nil:
		return "\n" + p.form.View()
	}

	footer := textFaint("c: close | o: reopen | e: escalate | a: assign | R: respond | f: feedback | y: copy id | esc: back")
	if p.acting != "" {
		footer = spin("Working")
	}
	return p.viewport.View() + "\n" + footer
}
