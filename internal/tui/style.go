package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = func() lipgloss.Style {
		b := lipgloss.NormalBorder()
		return lipgloss.NewStyle().BorderStyle(b).Padding(0, 1)
	}

	inactiveTabStyle = func() lipgloss.Style {
		return lipgloss.NewStyle().Border(inactiveTabBorder()).Padding(0, 1).Faint(true)
	}

	activeTabStyle = func() lipgloss.Style {
		return lipgloss.NewStyle().Border(activeTabBorder()).Padding(0, 1)
	}

	alertStyle = func() lipgloss.Style {
		return lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("1")).
			Padding(0, 1)
	}

	panelStyle = func() lipgloss.Style {
		return lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	}
)

func textRed(s string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")).Render(s)
}

func textYellow(s string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")).Render(s)
}

func textBlue(s string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")).Render(s)
}

// I am not colorblind. I know it's turquoise.
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

func activeTabBorder() lipgloss.Border {
	b := lipgloss.NormalBorder()
	b.BottomLeft = "┘"
	b.BottomRight = "└"
	b.Bottom = ""
	return b
}

func inactiveTabBorder() lipgloss.Border {
	b := lipgloss.NormalBorder()
	b.BottomLeft = "┴"
	b.BottomRight = "┴"
	return b
}

func titleBar(t string, width int) string {
	titleBox := titleStyle().Render(t)

	dividerLength := width - lipgloss.Width(titleBox)

	return lipgloss.JoinHorizontal(lipgloss.Center, titleBox, line(dividerLength))
}

func menuBar(tabs []route, active route, width int) string {
	var tabText []string
	for i, tab := range tabs {
		label := fmt.Sprintf("%d %s", i+1, tab.title())
		r := inactiveTabStyle().Render(label)
		if tab == active {
			r = activeTabStyle().Render(label)
		}
		tabText = append(tabText, r)
	}

	renderedTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, tabText...)
	dividerLength := width - lipgloss.Width(renderedTabs)
	return lipgloss.JoinHorizontal(lipgloss.Bottom, renderedTabs, line(dividerLength))
}

func line(w int) string {
	return strings.Repeat("─", max(0, w))
}

// alertPanel is the inline failure panel every page shows when its fetch
// fails. r retries.
func alertPanel(what string, err error) string {
	msg := apiMessage(err)
	body := fmt.Sprintf("%s %s\n%s\n\n%s", textRed("ALERT"), what, msg, textFaint("r: retry"))
	return alertStyle().Render(body)
}

func customFormTheme() *huh.Theme {
	t := huh.ThemeBase()
	t.Focused.Base = lipgloss.NewStyle()
	t.Blurred.Base = t.Focused.Base
	return t
}

func quitKeyMap() key.Binding {
	return key.NewBinding(key.WithKeys("esc"))
}

func customKeyMap() *huh.KeyMap {
	k := huh.NewDefaultKeyMap()
	k.Quit = quitKeyMap()

	return k
}

func newForm(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).
		WithShowHelp(false).
		WithTheme(customFormTheme()).
		WithKeyMap(customKeyMap())
}
