package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/google/uuid"
)

type channelFormKind int

const (
	noChannelForm channelFormKind = iota
	createChannelForm
	editChannelForm
	deleteChannelForm
	webhookForm
)

type channelDraft struct {
	name        string
	kind        string
	description string
	active      bool
	confirm     bool
	from        string
	body        string
}

type channelsPage struct {
	env *env

	list     *loadState[[]cfrm.Channel]
	table    table.Model
	act      *fetcher
	acting   bool
	editing  cfrm.Channel
	form     *huh.Form
	formKind channelFormKind
	draft    channelDraft
}

func newChannelsPage(e *env) *channelsPage {
	return &channelsPage{
		env:  e,
		list: newLoadState[[]cfrm.Channel](e.ctx),
		act:  newFetcher(e.ctx),
		table: table.New(
			table.WithColumns([]table.Column{
				{Title: "Name", Width: 24},
				{Title: "Type", Width: 10},
				{Title: "Active", Width: 8},
				{Title: "Description", Width: 40},
			}),
			table.WithFocused(true),
			table.WithHeight(10),
		),
	}
}

func (p *channelsPage) Init() tea.Cmd { return p.fetch() }
func (p *channelsPage) Typing() bool  { return p.form != nil }

func (p *channelsPage) Close() {
	p.list.stop()
	p.act.stop()
}

func (p *channelsPage) fetch() tea.Cmd {
	c := p.env.client
	return p.list.start(func(ctx context.Context) ([]cfrm.Channel, error) {
		return c.ListChannelConfigs(ctx)
	})
}

func (p *channelsPage) run(label string, fn func(ctx context.Context) (string, error)) tea.Cmd {
	p.acting = true
	ctx, gen := p.act.next()
	return func() tea.Msg {
		detail, err := fn(ctx)
		if detail != "" {
			label = label + ": " + detail
		}
		return actionMsg{gen: gen, label: label, err: err}
	}
}

func (p *channelsPage) selected() (cfrm.Channel, bool) {
	i := p.table.Cursor()
	if !p.list.loaded || i < 0 || i >= len(p.list.data) {
		return cfrm.Channel{}, false
	}
	return p.list.data[i], true
}

func (p *channelsPage) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loadedMsg[[]cfrm.Channel]:
		if p.list.apply(msg) && msg.err == nil {
			rows := make([]table.Row, 0, len(msg.data))
			for _, ch := range msg.data {
				active := "no"
				if ch.IsActive {
					active = "yes"
				}
				rows = append(rows, table.Row{ch.Name, string(ch.Type), active, ch.Description})
			}
			p.table.SetRows(rows)
		}
		return nil

	case actionMsg:
		if !p.act.current(msg.gen) {
			return nil
		}
		p.acting = false
		if msg.err != nil {
			return notify(badRedOutput("ERROR", apiMessage(msg.err)))
		}
		return tea.Batch(notify(goodGreenOutput("DONE", msg.label)), p.fetch())
	}

	if p.form != nil {
		return p.updateForm(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok && !p.acting {
		switch msg.String() {
		case "r":
			return p.fetch()
		case "n":
			return p.openForm(createChannelForm, cfrm.Channel{IsActive: true, Type: cfrm.ChannelWeb})
		case "e":
			if ch, ok := p.selected(); ok {
				return p.openForm(editChannelForm, ch)
			}
		case "d":
			if ch, ok := p.selected(); ok {
				return p.openForm(deleteChannelForm, ch)
			}
		case "w":
			if ch, ok := p.selected(); ok {
				if ch.Type != cfrm.ChannelSMS && ch.Type != cfrm.ChannelWhatsApp {
					return notify(warnYellowOutput("WARNING", "webhook tests exist for sms and whatsapp channels only"))
				}
				return p.openForm(webhookForm, ch)
			}
		}
	}

	var cmd tea.Cmd
	p.table, cmd = p.table.Update(msg)
	return cmd
}

func (p *channelsPage) openForm(kind channelFormKind, ch cfrm.Channel) tea.Cmd {
	p.formKind = kind
	p.editing = ch
	p.draft = channelDraft{
		name:        ch.Name,
		kind:        string(ch.Type),
		description: ch.Description,
		active:      ch.IsActive,
		from:        "+221770000000",
		body:        "Test message",
	}

	switch kind {
	case createChannelForm, editChannelForm:
		kinds := make([]huh.Option[string], 0, len(cfrm.ChannelTypes))
		for _, t := range cfrm.ChannelTypes {
			kinds = append(kinds, huh.NewOption(string(t), string(t)))
		}
		p.form = newForm(huh.NewGroup(
			huh.NewInput().Title("Name").Value(&p.draft.name).Validate(required("name")),
			huh.NewSelect[string]().Title("Type").Options(kinds...).Value(&p.draft.kind),
			huh.NewInput().Title("Description").Value(&p.draft.description),
			huh.NewConfirm().Title("Active?").Value(&p.draft.active),
		))
	case deleteChannelForm:
		p.form = newForm(huh.NewGroup(
			huh.NewConfirm().Title(fmt.Sprintf("Delete channel %q?", ch.Name)).Value(&p.draft.confirm),
		))
	case webhookForm:
		fields := []huh.Field{}
		if ch.Type == cfrm.ChannelWhatsApp {
			fields = append(fields, huh.NewInput().Title("From").Value(&p.draft.from))
		}
		fields = append(fields, huh.NewInput().Title("Message").Value(&p.draft.body))
		p.form = newForm(huh.NewGroup(fields...))
	}

	return p.form.Init()
}

func (p *channelsPage) updateForm(msg tea.Msg) tea.Cmd {
	form, cmd := p.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		p.form = f
	}

	switch p.form.State {
	case huh.StateCompleted:
		kind := p.formKind
		p.form, p.formKind = nil, noChannelForm
		return p.submit(kind, p.editing, p.draft)
	case huh.StateAborted:
		p.form, p.formKind = nil, noChannelForm
		return nil
	}
	return cmd
}

func (p *channelsPage) submit(kind channelFormKind, ch cfrm.Channel, d channelDraft) tea.Cmd {
	c := p.env.client
	in := cfrm.ChannelInput{
		Name:          strings.TrimSpace(d.name),
		Type:          cfrm.ChannelType(d.kind),
		Description:   d.description,
		IsActive:      d.active,
		Configuration: ch.Configuration,
	}
	if in.Configuration == nil {
		in.Configuration = map[string]any{}
	}

	switch kind {
	case createChannelForm:
		if bad := in.Validate(); bad != nil {
			return notify(badRedOutput("ERROR", (&cfrm.ValidationError{Fields: bad}).Error()))
		}
		return p.run("channel created", func(ctx context.Context) (string, error) {
			_, err := c.CreateChannelConfig(ctx, in)
			return "", err
		})
	case editChannelForm:
		if bad := in.Validate(); bad != nil {
			return notify(badRedOutput("ERROR", (&cfrm.ValidationError{Fields: bad}).Error()))
		}
		return p.run("channel updated", func(ctx context.Context) (string, error) {
			_, err := c.UpdateChannelConfig(ctx, ch.Id.String(), in)
			return "", err
		})
	case deleteChannelForm:
		if !d.confirm {
			return nil
		}
		return p.run("channel deleted", func(ctx context.Context) (string, error) {
			return "", c.DeleteChannelConfig(ctx, ch.Id.String())
		})
	case webhookForm:
		webhook, payload := cfrm.WebhookSMS, cfrm.SMSStatusPayload("SM"+strings.ReplaceAll(uuid.NewString(), "-", ""), "delivered")
		if ch.Type == cfrm.ChannelWhatsApp {
			webhook, payload = cfrm.WebhookWhatsApp, cfrm.WhatsAppMessagePayload(d.from, d.body)
		}
		return p.run("webhook accepted", func(ctx context.Context) (string, error) {
			res, err := c.SendWebhook(ctx, webhook, payload)
			if err != nil {
				return "", err
			}
			return "event " + res.EventId, nil
		})
	}
	return nil
}

func (p *channelsPage) View() string {
	switch {
	case p.form != nil:
		return "\n" + p.form.View()
	case p.list.err != nil:
		return "\n" + alertPanel("Could not load channels.", p.list.err)
	case !p.list.loaded:
		return "\n" + spin("Loading channels")
	}

	var s strings.Builder
	s.WriteString("\n")
	if len(p.list.data) == 0 {
		s.WriteString(textFaint("No channels configured."))
	} else {
		s.WriteString(p.table.View())
	}

	footer := textFaint("n: new | e: edit | d: delete | w: test webhook | r: refresh")
	if p.acting {
		footer = spin("Working")
	}
	s.WriteString("\n" + footer)
	return s.String()
}
