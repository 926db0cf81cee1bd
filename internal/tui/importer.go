package tui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
)

type importDoneMsg struct {
	gen    int64
	result *cfrm.ImportResult
	err    error
}

type importTickMsg struct{ gen int64 }

type templateSavedMsg struct {
	path string
	err  error
}

type importPage struct {
	env *env

	form *huh.Form
	path string

	f         *fetcher
	uploading bool
	percent   atomic.Int64
	bar       progress.Model

	result *cfrm.ImportResult
	err    error
}

func newImportPage(e *env) *importPage {
	p := &importPage{
		env: e,
		f:   newFetcher(e.ctx),
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
	return p
}

func (p *importPage) pathForm() *huh.Form {
	p.path = ""
	return newForm(huh.NewGroup(
		huh.NewInput().
			Title("CSV file").
			Value(&p.path).
			Validate(func(s string) error {
				if !strings.EqualFold(filepath.Ext(strings.TrimSpace(s)), ".csv") {
					return fmt.Errorf("choose a .csv file")
				}
				return nil
			}),
	))
}

func (p *importPage) Init() tea.Cmd { return nil }

func (p *importPage) Typing() bool { return p.form != nil }

func (p *importPage) Close() { p.f.stop() }

func (p *importPage) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case importDoneMsg:
		if !p.f.current(msg.gen) {
			return nil
		}
		p.uploading = false
		p.result, p.err = msg.result, msg.err
		if msg.err != nil {
			return nil
		}
		return notify(goodGreenOutput("IMPORTED", fmt.Sprintf("%d tickets", msg.result.ImportedCount)))

	case importTickMsg:
		if p.uploading && p.f.current(msg.gen) {
			return p.tick(msg.gen)
		}
		return nil

	case templateSavedMsg:
		if msg.err != nil {
			return notify(badRedOutput("ERROR", msg.err.Error()))
		}
		return notify(goodGreenOutput("SAVED", msg.path))
	}

	if p.uploading {
		return nil
	}

	if p.form == nil {
		if msg, ok := msg.(tea.KeyMsg); ok {
			switch msg.String() {
			case "i", "enter":
				p.form = p.pathForm()
				return p.form.Init()
			case "t":
				return saveTemplate(cfrm.ImportTemplateName)
			}
		}
		return nil
	}

	form, cmd := p.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		p.form = f
	}

	switch p.form.State {
	case huh.StateCompleted:
		p.form = nil
		return p.upload(strings.TrimSpace(p.path))
	case huh.StateAborted:
		p.form = nil
		return nil
	}
	return cmd
}

func (p *importPage) tick(gen int64) tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return importTickMsg{gen: gen} })
}

func (p *importPage) upload(path string) tea.Cmd {
	p.uploading = true
	p.result, p.err = nil, nil
	p.percent.Store(0)

	c := p.env.client
	ctx, gen := p.f.next()
	run := func() tea.Msg {
		res, err := importFile(ctx, c, path, func(pct int) { p.percent.Store(int64(pct)) })
		return importDoneMsg{gen: gen, result: res, err: err}
	}
	return tea.Batch(run, p.tick(gen))
}

func importFile(ctx context.Context, c *cfrm.Client, path string, onProgress func(int)) (*cfrm.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	return c.ImportTickets(ctx, filepath.Base(path), f, onProgress)
}

func saveTemplate(path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Create(path)
		if err != nil {
			return templateSavedMsg{err: fmt.Errorf("creating template: %w", err)}
		}
		defer f.Close()

		if err := cfrm.WriteImportTemplate(f); err != nil {
			return templateSavedMsg{err: err}
		}
		slog.Info("import template saved", "path", path)
		return templateSavedMsg{path: path}
	}
}

func (p *importPage) View() string {
	var s strings.Builder
	s.WriteString("\n" + textBlue("Import tickets from CSV") + "\n\n")

	if p.uploading {
		s.WriteString(p.bar.ViewAs(float64(p.percent.Load()) / 100))
		s.WriteString("\n" + spin("Uploading"))
		return s.String()
	}

	if p.err != nil {
		s.WriteString(badRedOutput("IMPORT FAILED", apiMessage(p.err)) + "\n\n")
	}

	if r := p.result; r != nil {
		s.WriteString(goodGreenOutput("IMPORTED", fmt.Sprintf("%d tickets", r.ImportedCount)) + "\n")
		if r.Message != "" {
			s.WriteString(r.Message + "\n")
		}
		for _, e := range r.Errors {
			s.WriteString(warnYellowOutput("SKIPPED", e) + "\n")
		}
		s.WriteString("\n")
	}

	if p.form != nil {
		s.WriteString(p.form.View())
	} else {
		s.WriteString(textFaint("i: choose a file | t: save the template (" + cfrm.ImportTemplateName + ")"))
	}
	return s.String()
}
