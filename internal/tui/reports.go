package tui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dustin/go-humanize"
)

type reportOutcome struct {
	result *cfrm.ReportResult
	url    string
}

type downloadedMsg struct {
	gen  int64
	path string
	size int64
	err  error
}

type reportsPage struct {
	env *env

	refs   *loadState[*cfrm.ReferenceData]
	report *loadState[reportOutcome]
	dl     *fetcher
	saving bool

	req  cfrm.ReportRequest
	form *huh.Form
}

func newReportsPage(e *env) *reportsPage {
	return &reportsPage{
		env:    e,
		refs:   newLoadState[*cfrm.ReferenceData](e.ctx),
		report: newLoadState[reportOutcome](e.ctx),
		dl:     newFetcher(e.ctx),
		req:    cfrm.NewReportRequest(cfrm.ReportPDF, e.now()),
	}
}

func (p *reportsPage) Init() tea.Cmd {
	c := p.env.client
	return p.refs.start(func(ctx context.Context) (*cfrm.ReferenceData, error) {
		return c.ReferenceData(ctx)
	})
}

func (p *reportsPage) Typing() bool { return p.form != nil }

func (p *reportsPage) Close() {
	p.refs.stop()
	p.report.stop()
	p.dl.stop()
}

func (p *reportsPage) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loadedMsg[*cfrm.ReferenceData]:
		p.refs.apply(msg)
		return nil

	case loadedMsg[reportOutcome]:
		if p.report.apply(msg) && msg.err == nil {
			return notify(goodGreenOutput("REPORT READY", msg.data.result.Message))
		}
		return nil

	case downloadedMsg:
		if !p.dl.current(msg.gen) {
			return nil
		}
		p.saving = false
		if msg.err != nil {
			return notify(badRedOutput("ERROR", apiMessage(msg.err)))
		}
		return notify(goodGreenOutput("SAVED", fmt.Sprintf("%s (%s)", msg.path, humanize.Bytes(uint64(msg.size)))))
	}

	if p.form != nil {
		form, cmd := p.form.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			p.form = f
		}
		switch p.form.State {
		case huh.StateCompleted:
			p.form = nil
			return p.generate(p.req)
		case huh.StateAborted:
			p.form = nil
			return nil
		}
		return cmd
	}

	k, ok := msg.(tea.KeyMsg)
	if !ok || p.report.loading || p.saving {
		return nil
	}

	switch k.String() {
	case "g", "enter":
		p.form = p.requestForm()
		return p.form.Init()
	case "r":
		if p.report.err != nil {
			return p.generate(p.req)
		}
	case "y":
		if p.report.loaded {
			return copyToClipboard("download url", p.report.data.url)
		}
	case "s":
		if p.report.loaded {
			return p.save(p.report.data.result)
		}
	}
	return nil
}

func (p *reportsPage) generate(req cfrm.ReportRequest) tea.Cmd {
	c := p.env.client
	return p.report.start(func(ctx context.Context) (reportOutcome, error) {
		res, err := c.GenerateReport(ctx, req)
		if err != nil {
			return reportOutcome{}, err
		}
		u, err := c.ResolveDownloadUrl(res)
		if err != nil {
			return reportOutcome{}, err
		}
		return reportOutcome{result: res, url: u}, nil
	})
}

func (p *reportsPage) save(res *cfrm.ReportResult) tea.Cmd {
	p.saving = true
	c := p.env.client
	name := path.Base(res.DownloadUrl)
	ctx, gen := p.dl.next()
	return func() tea.Msg {
		f, err := os.Create(name)
		if err != nil {
			return downloadedMsg{gen: gen, err: fmt.Errorf("creating %s: %w", name, err)}
		}
		defer f.Close()

		n, err := c.DownloadTo(ctx, res.DownloadUrl, f)
		if err != nil {
			slog.Error("downloading report", "url", res.DownloadUrl, "error", err)
		}
		return downloadedMsg{gen: gen, path: name, size: n, err: err}
	}
}

func (p *reportsPage) requestForm() *huh.Form {
	var categories, statuses, priorities, channels []huh.Option[string]
	if rd := p.refs.data; rd != nil {
		for _, c := range rd.Categories {
			categories = append(categories, huh.NewOption(c.Name, c.Id.String()))
		}
		for _, s := range rd.Statuses {
			statuses = append(statuses, huh.NewOption(s.Name, s.Id.String()))
		}
		for _, pr := range rd.Priorities {
			priorities = append(priorities, huh.NewOption(pr.Name, pr.Id.String()))
		}
		for _, ch := range rd.Channels {
			channels = append(channels, huh.NewOption(ch.Name, ch.Id.String()))
		}
	}

	groups := []*huh.Group{
		huh.NewGroup(
			huh.NewSelect[cfrm.ReportFormat]().Title("Format").
				Options(huh.NewOption("PDF", cfrm.ReportPDF), huh.NewOption("Excel", cfrm.ReportExcel)).
				Value(&p.req.Format),
			huh.NewInput().Title("From").Description("YYYY-MM-DD").Value(&p.req.DateFrom).Validate(isDate),
			huh.NewInput().Title("To").Description("YYYY-MM-DD").Value(&p.req.DateTo).Validate(isDate),
			huh.NewConfirm().Title("Include responses?").Value(&p.req.IncludeResponses),
			huh.NewConfirm().Title("Include history?").Value(&p.req.IncludeLogs),
		),
	}

	// an empty selection means all
	var filters []huh.Field
	if len(categories) > 0 {
		filters = append(filters, huh.NewMultiSelect[string]().Title("Categories").Options(categories...).Value(&p.req.Categories))
	}
	if len(statuses) > 0 {
		filters = append(filters, huh.NewMultiSelect[string]().Title("Statuses").Options(statuses...).Value(&p.req.Statuses))
	}
	if len(priorities) > 0 {
		filters = append(filters, huh.NewMultiSelect[string]().Title("Priorities").Options(priorities...).Value(&p.req.Priorities))
	}
	if len(channels) > 0 {
		filters = append(filters, huh.NewMultiSelect[string]().Title("Channels").Options(channels...).Value(&p.req.Channels))
	}
	if len(filters) > 0 {
		groups = append(groups, huh.NewGroup(filters...))
	}

	return newForm(groups...)
}

func isDate(s string) error {
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("use YYYY-MM-DD")
	}
	return nil
}

func (p *reportsPage) View() string {
	if p.form != nil {
		return "\n" + textBlue("Generate report") + "\n\n" + p.form.View()
	}

	var s strings.Builder
	s.WriteString("\n" + textBlue("Reports") + "\n\n")
	s.WriteString(fmt.Sprintf("%s report, %s to %s\n\n", strings.ToUpper(string(p.req.Format)), p.req.DateFrom, p.req.DateTo))

	switch {
	case p.report.loading:
		s.WriteString(spin("Generating report"))
		return s.String()
	case p.report.err != nil:
		s.WriteString(alertPanel("Could not generate the report.", p.report.err) + "\n")
	case p.report.loaded:
		out := p.report.data
		s.WriteString(goodGreenOutput("READY", out.result.Message) + "\n")
		s.WriteString(infoOutput("URL", out.url) + "\n\n")
		if p.saving {
			s.WriteString(spin("Downloading") + "\n")
		}
		s.WriteString(textFaint("y: copy url | s: save to current directory | g: new report"))
		return s.String()
	}

	s.WriteString(textFaint("g: choose filters and generate"))
	return s.String()
}
