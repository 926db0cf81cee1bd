package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

const recentTicketCount = 5

type dashboardData struct {
	stats  *cfrm.TicketStats
	recent []cfrm.Ticket
}

type dashboardPage struct {
	env  *env
	data *loadState[dashboardData]
}

func newDashboardPage(e *env) *dashboardPage {
	return &dashboardPage{env: e, data: newLoadState[dashboardData](e.ctx)}
}

func (p *dashboardPage) Init() tea.Cmd { return p.fetch() }
func (p *dashboardPage) Typing() bool  { return false }
func (p *dashboardPage) Close()        { p.data.stop() }

func (p *dashboardPage) fetch() tea.Cmd {
	c := p.env.client
	return p.data.start(func(ctx context.Context) (dashboardData, error) {
		var d dashboardData
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			s, err := c.DashboardStats(ctx)
			d.stats = s
			return err
		})
		g.Go(func() error {
			l, err := c.ListTickets(ctx, cfrm.TicketFilters{Ordering: "-created_at", PageSize: recentTicketCount})
			d.recent = l.Items()
			return err
		})
		if err := g.Wait(); err != nil {
			return dashboardData{}, err
		}
		if len(d.recent) > recentTicketCount {
			d.recent = d.recent[:recentTicketCount]
		}
		return d, nil
	})
}

func (p *dashboardPage) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loadedMsg[dashboardData]:
		p.data.apply(msg)
	case tea.KeyMsg:
		if msg.String() == "r" && !p.data.loading {
			return p.fetch()
		}
	}
	return nil
}

func (p *dashboardPage) View() string {
	switch {
	case p.data.err != nil:
		return "\n" + alertPanel("Could not load the dashboard.", p.data.err)
	case !p.data.loaded:
		return "\n" + spin("Loading dashboard")
	}

	d := p.data.data
	st := d.stats

	avg := "n/a"
	if st.AvgResponseTime != nil {
		avg = fmt.Sprintf("%.1f h", *st.AvgResponseTime)
	}

	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		card("Total", fmt.Sprint(st.Total())),
		card("Overdue", textRed(fmt.Sprint(st.OverdueCount))),
		card("This week", fmt.Sprint(st.WeeklyTickets)),
		card("Avg. response", avg),
	)

	breakdowns := lipgloss.JoinHorizontal(lipgloss.Top,
		breakdown("By status", st.StatusStats),
		breakdown("By category", st.CategoryStats),
		breakdown("By channel", st.ChannelStats),
	)

	var recent strings.Builder
	recent.WriteString(textBlue("Recent tickets") + "\n")
	if len(d.recent) == 0 {
		recent.WriteString(textFaint("No tickets yet."))
	}
	for _, t := range d.recent {
		fmt.Fprintf(&recent, "%s  %s  %s\n",
			statusBadge(&t), t.Title,
			textFaint(humanize.RelTime(t.CreatedAt, p.env.now(), "ago", "from now")))
	}

	return lipgloss.JoinVertical(lipgloss.Left, "", cards, breakdowns, recent.String(), textFaint("r: refresh"))
}

func card(label, value string) string {
	return panelStyle().Width(18).Render(textFaint(label) + "\n" + value)
}

func breakdown(title string, rows []cfrm.NameCount) string {
	var s strings.Builder
	s.WriteString(textBlue(title))
	if len(rows) == 0 {
		s.WriteString("\n" + textFaint("none"))
	}
	for _, r := range rows {
		fmt.Fprintf(&s, "\n%-16s %4d", r.Name, r.Count)
	}
	return panelStyle().Render(s.String())
}

func statusBadge(t *cfrm.Ticket) string {
	label := t.StatusLabel()
	if t.IsOverdue {
		return textRed("[" + label + "]")
	}
	return textYellow("[" + label + "]")
}
