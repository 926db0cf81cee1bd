package tui

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
)

// maxAnalyticsPages bounds how much of a paginated backend one refresh walks.
const maxAnalyticsPages = 20

var analyticsWindows = []int{7, 30, 90}

type analytics struct {
	days       int
	total      int
	overdue    int
	closed     int
	psea       int
	byStatus   []cfrm.NameCount
	byCategory []cfrm.NameCount
	byPriority []cfrm.NameCount
	byChannel  []cfrm.NameCount
	perDay     []cfrm.NameCount
	avgAge     time.Duration
}

type analyticsPage struct {
	env    *env
	window int
	data   *loadState[analytics]
}

func newAnalyticsPage(e *env) *analyticsPage {
	return &analyticsPage{env: e, window: 1, data: newLoadState[analytics](e.ctx)}
}

func (p *analyticsPage) Init() tea.Cmd { return p.fetch() }
func (p *analyticsPage) Typing() bool  { return false }
func (p *analyticsPage) Close()        { p.data.stop() }

func (p *analyticsPage) fetch() tea.Cmd {
	c, now, days := p.env.client, p.env.now(), analyticsWindows[p.window]
	return p.data.start(func(ctx context.Context) (analytics, error) {
		from := now.AddDate(0, 0, -days)
		tickets, err := ticketsSince(ctx, c, from)
		if err != nil {
			return analytics{}, err
		}
		return summarize(tickets, days, from, now), nil
	})
}

func ticketsSince(ctx context.Context, c *cfrm.Client, from time.Time) ([]cfrm.Ticket, error) {
	f := cfrm.TicketFilters{DateFrom: from.Format("2006-01-02"), PageSize: 100, Page: 1}

	var all []cfrm.Ticket
	for range maxAnalyticsPages {
		l, err := c.ListTickets(ctx, f)
		if err != nil {
			return nil, err
		}
		all = append(all, l.Items()...)
		if !l.HasNext() {
			break
		}
		f.Page++
	}

	// bare-list backends ignore the date filter
	return slices.DeleteFunc(all, func(t cfrm.Ticket) bool { return t.CreatedAt.Before(from) }), nil
}

func summarize(tickets []cfrm.Ticket, days int, from, now time.Time) analytics {
	a := analytics{days: days, total: len(tickets)}

	status := map[string]int{}
	category := map[string]int{}
	priority := map[string]int{}
	channel := map[string]int{}
	perDay := map[string]int{}
	var age time.Duration

	for _, t := range tickets {
		status[t.StatusLabel()]++
		category[t.CategoryLabel()]++
		priority[t.PriorityLabel()]++
		channel[t.ChannelLabel()]++
		perDay[t.CreatedAt.In(now.Location()).Format("2006-01-02")]++

		if t.IsOverdue {
			a.overdue++
		}
		if t.IsPsea {
			a.psea++
		}
		if t.ClosedAt != nil {
			a.closed++
			age += t.ClosedAt.Sub(t.CreatedAt)
		} else {
			age += now.Sub(t.CreatedAt)
		}
	}

	if len(tickets) > 0 {
		a.avgAge = age / time.Duration(len(tickets))
	}

	a.byStatus = ranked(status)
	a.byCategory = ranked(category)
	a.byPriority = ranked(priority)
	a.byChannel = ranked(channel)

	for d := from.In(now.Location()); !d.After(now); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		a.perDay = append(a.perDay, cfrm.NameCount{Name: key, Count: perDay[key]})
	}

	return a
}

func ranked(m map[string]int) []cfrm.NameCount {
	out := make([]cfrm.NameCount, 0, len(m))
	for k, v := range m {
		out = append(out, cfrm.NameCount{Name: k, Count: v})
	}
	slices.SortFunc(out, func(a, b cfrm.NameCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func (p *analyticsPage) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loadedMsg[analytics]:
		p.data.apply(msg)
	case tea.KeyMsg:
		switch msg.String() {
		case "r":
			return p.fetch()
		case "w":
			p.window = (p.window + 1) % len(analyticsWindows)
			return p.fetch()
		}
	}
	return nil
}

func (p *analyticsPage) View() string {
	days := analyticsWindows[p.window]
	head := textBlue(fmt.Sprintf("Last %d days", days)) + "  " + textFaint("w: change window | r: refresh")

	switch {
	case p.data.err != nil:
		return "\n" + head + "\n\n" + alertPanel("Could not load analytics.", p.data.err)
	case !p.data.loaded || p.data.loading:
		return "\n" + head + "\n\n" + spin("Crunching numbers")
	}

	a := p.data.data
	rate := "n/a"
	if a.total > 0 {
		rate = fmt.Sprintf("%.0f%%", float64(a.closed)*100/float64(a.total))
	}

	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		card("Tickets", fmt.Sprint(a.total)),
		card("Closed", rate),
		card("Overdue", textRed(fmt.Sprint(a.overdue))),
		card("PSEA", fmt.Sprint(a.psea)),
		card("Avg. age", a.avgAge.Round(time.Hour).String()),
	)

	breakdowns := lipgloss.JoinHorizontal(lipgloss.Top,
		breakdown("Status", a.byStatus),
		breakdown("Category", a.byCategory),
		breakdown("Priority", a.byPriority),
		breakdown("Channel", a.byChannel),
	)

	return lipgloss.JoinVertical(lipgloss.Left, "", head, cards, breakdowns, sparkline(a.perDay))
}

var sparks = []rune("▁▂▃▄▅▆▇█")

func sparkline(days []cfrm.NameCount) string {
	peak := 0
	for _, d := range days {
		peak = max(peak, d.Count)
	}

	var b strings.Builder
	for _, d := range days {
		if peak == 0 || d.Count == 0 {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(sparks[(d.Count*(len(sparks)-1))/peak])
	}
	return textFaint("per day ") + b.String()
}
