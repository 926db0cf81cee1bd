package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
)

func textRed(s string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")).Render(s)
}

func textYellow(s string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")).Render(s)
}

func textGreen(s string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Render(s)
}

func textFaint(s string) string {
	return lipgloss.NewStyle().Faint(true).Render(s)
}

func textNormalAdaptive(s string) string {
	return lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "236", Dark: "247"}).
		Render(s)
}

func badRedOutput(label, output string) string {
	return fmt.Sprintf("%s %s", textRed(label), output)
}

func warnYellowOutput(label, output string) string {
	return fmt.Sprintf("%s %s", textYellow(label), output)
}

func goodGreenOutput(label, output string) string {
	return fmt.Sprintf("%s %s", textGreen(label), output)
}

func infoOutput(label, output string) string {
	return fmt.Sprintf("%s %s", textNormalAdaptive(label), output)
}

func customFormTheme() *huh.Theme {
	t := huh.ThemeBase()
	t.Focused.Base = lipgloss.NewStyle()
	t.Blurred.Base = t.Focused.Base
	return t
}

// withSpinner runs fn behind a spinner until it returns.
var withSpinner = func(title string, fn func()) error {
	return spinner.New().Title(title).Context(ctx).Action(fn).Run()
}
