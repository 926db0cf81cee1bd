package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dustin/go-humanize"
)

type ticketsPage struct {
	env *env

	filters cfrm.TicketFilters
	list    *loadState[cfrm.ListResult[cfrm.Ticket]]
	refs    *loadState[*cfrm.ReferenceData]
	table   table.Model
	ids     []string

	form  *huh.Form
	draft filterDraft
}

// filterDraft backs the filter form; huh needs addressable strings.
type filterDraft struct {
	search   string
	status   string
	category string
	priority string
	overdue  string
}

func newTicketsPage(e *env) *ticketsPage {
	t := table.New(
		table.WithColumns(ticketColumns(e.width)),
		table.WithFocused(true),
		table.WithHeight(max(5, e.height-12)),
	)

	return &ticketsPage{
		env:     e,
		filters: cfrm.TicketFilters{Page: 1, PageSize: cfrm.DefaultPageSize, Ordering: "-created_at"},
		list:    newLoadState[cfrm.ListResult[cfrm.Ticket]](e.ctx),
		refs:    newLoadState[*cfrm.ReferenceData](e.ctx),
		table:   t,
	}
}

func ticketColumns(width int) []table.Column {
	title := max(20, width-78)
	return []table.Column{
		{Title: "Title", Width: title},
		{Title: "Status", Width: 12},
		{Title: "Priority", Width: 10},
		{Title: "Category", Width: 14},
		{Title: "Channel", Width: 12},
		{Title: "Created", Width: 16},
	}
}

func (p *ticketsPage) Init() tea.Cmd {
	return tea.Batch(p.fetch(), p.fetchRefs())
}

func (p *ticketsPage) Typing() bool { return p.form != nil }

func (p *ticketsPage) Close() {
	p.list.stop()
	p.refs.stop()
}

func (p *ticketsPage) fetch() tea.Cmd {
	c, f := p.env.client, p.filters
	return p.list.start(func(ctx context.Context) (cfrm.ListResult[cfrm.Ticket], error) {
		return c.ListTickets(ctx, f)
	})
}

func (p *ticketsPage) fetchRefs() tea.Cmd {
	c := p.env.client
	return p.refs.start(func(ctx context.Context) (*cfrm.ReferenceData, error) {
		return c.ReferenceData(ctx)
	})
}

func (p *ticketsPage) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loadedMsg[cfrm.ListResult[cfrm.Ticket]]:
		if p.list.apply(msg) && msg.err == nil {
			p.setRows(msg.data.Items())
		}
		return nil

	case loadedMsg[*cfrm.ReferenceData]:
		p.refs.apply(msg)
		return nil

	case tea.WindowSizeMsg:
		p.table.SetColumns(ticketColumns(msg.Width))
		p.table.SetHeight(max(5, msg.Height-12))
		return nil
	}

	if p.form != nil {
		return p.updateForm(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "r":
			if p.refs.err != nil {
				return tea.Batch(p.fetch(), p.fetchRefs())
			}
			return p.fetch()
		case "f":
			return p.openFilters()
		case "x":
			p.filters = cfrm.TicketFilters{Page: 1, PageSize: p.filters.PageSize, Ordering: p.filters.Ordering}
			return p.fetch()
		case "n":
			if p.list.loaded && p.list.data.HasNext() {
				p.filters.Page++
				return p.fetch()
			}
			return nil
		case "p":
			if p.filters.Page > 1 && p.list.loaded && p.list.data.HasPrevious() {
				p.filters.Page--
				return p.fetch()
			}
			return nil
		case "enter":
			if i := p.table.Cursor(); i >= 0 && i < len(p.ids) {
				return navigate(routeDetail, p.ids[i])
			}
			return nil
		}
	}

	var cmd tea.Cmd
	p.table, cmd = p.table.Update(msg)
	return cmd
}

func (p *ticketsPage) setRows(tickets []cfrm.Ticket) {
	rows := make([]table.Row, 0, len(tickets))
	p.ids = p.ids[:0]
	for _, t := range tickets {
		rows = append(rows, ticketRow(&t, p.env))
		p.ids = append(p.ids, t.Id.String())
	}
	p.table.SetRows(rows)
	p.table.SetCursor(0)
}

func ticketRow(t *cfrm.Ticket, e *env) table.Row {
	title := t.Title
	if t.IsOverdue {
		title = "! " + title
	}
	return table.Row{
		title,
		t.StatusLabel(),
		t.PriorityLabel(),
		t.CategoryLabel(),
		t.ChannelLabel(),
		humanize.RelTime(t.CreatedAt, e.now(), "ago", "from now"),
	}
}

func (p *ticketsPage) openFilters() tea.Cmd {
	p.draft = filterDraft{
		search:   p.filters.Search,
		status:   p.filters.Status,
		category: p.filters.Category,
		priority: p.filters.Priority,
	}
	if p.filters.IsOverdue != nil && *p.filters.IsOverdue {
		p.draft.overdue = "yes"
	}

	statuses := []huh.Option[string]{huh.NewOption("Any", "")}
	categories := []huh.Option[string]{huh.NewOption("Any", "")}
	priorities := []huh.Option[string]{huh.NewOption("Any", "")}
	if rd := p.refs.data; rd != nil {
		for _, s := range rd.Statuses {
			statuses = append(statuses, huh.NewOption(s.Name, s.Id.String()))
		}
		for _, c := range rd.Categories {
			categories = append(categories, huh.NewOption(c.Name, c.Id.String()))
		}
		for _, pr := range rd.Priorities {
			priorities = append(priorities, huh.NewOption(pr.Name, pr.Id.String()))
		}
	}

	p.form = newForm(
		huh.NewGroup(
			huh.NewInput().Title("Search").Value(&p.draft.search),
			huh.NewSelect[string]().Title("Status").Options(statuses...).Value(&p.draft.status),
			huh.NewSelect[string]().Title("Category").Options(categories...).Value(&p.draft.category),
			huh.NewSelect[string]().Title("Priority").Options(priorities...).Value(&p.draft.priority),
			huh.NewSelect[string]().Title("Overdue only").
				Options(huh.NewOption("No", ""), huh.NewOption("Yes", "yes")).
				Value(&p.draft.overdue),
		),
	)
	return p.form.Init()
}

func (p *ticketsPage) updateForm(msg tea.Msg) tea.Cmd {
	form, cmd := p.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		p.form = f
	}

	switch p.form.State {
	case huh.StateCompleted:
		p.form = nil
		return p.applyFilters(p.draft)
	case huh.StateAborted:
		p.form = nil
		return nil
	}
	return cmd
}

// applyFilters resets to the first page whenever the filters change.
func (p *ticketsPage) applyFilters(d filterDraft) tea.Cmd {
	p.filters.Search = strings.TrimSpace(d.search)
	p.filters.Status = d.status
	p.filters.Category = d.category
	p.filters.Priority = d.priority
	p.filters.IsOverdue = nil
	if d.overdue == "yes" {
		overdue := true
		p.filters.IsOverdue = &overdue
	}
	p.filters.Page = 1
	return p.fetch()
}

func (p *ticketsPage) View() string {
	if p.form != nil {
		return "\n" + textBlue("Filter tickets") + "\n\n" + p.form.View()
	}

	var s strings.Builder
	s.WriteString("\n")

	switch {
	case p.list.err != nil:
		s.WriteString(alertPanel("Could not load tickets.", p.list.err))
		return s.String()
	case !p.list.loaded:
		s.WriteString(spin("Loading tickets"))
		return s.String()
	}

	if p.refs.err != nil {
		s.WriteString(alertPanel("Could not load filter options.", p.refs.err) + "\n")
	}

	if len(p.ids) == 0 {
		s.WriteString(textFaint("No tickets match these filters."))
	} else {
		s.WriteString(p.table.View())
	}

	s.WriteString("\n" + p.pager())
	s.WriteString("\n" + textFaint("enter: open | f: filter | x: clear filters | n/p: page | r: refresh"))
	return s.String()
}

func (p *ticketsPage) pager() string {
	l := p.list.data
	if _, paged := l.Page(); !paged {
		return textFaint(fmt.Sprintf("%d tickets", l.Count()))
	}

	pages := 1
	if size := p.filters.PageSize; size > 0 && l.Count() > 0 {
		pages = (l.Count() + size - 1) / size
	}
	return textFaint(fmt.Sprintf("page %d of %d | %d tickets", p.filters.Page, pages, l.Count()))
}
