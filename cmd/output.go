package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

var outputFormats = []string{"table", "json", "yaml"}

func validateOutput(f string) error {
	if !slices.Contains(outputFormats, f) {
		return fmt.Errorf("unknown output format %q: use one of %v", f, outputFormats)
	}
	return nil
}

// view is what a command prints: the raw value for json and yaml, and a
// header plus rows for the table form.
type view struct {
	value   any
	headers []string
	rows    [][]string
}

func render(w io.Writer, v view) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v.value)
	case "yaml":
		return writeYAML(w, v.value)
	}

	if len(v.rows) == 0 {
		_, err := fmt.Fprintln(w, textFaint("nothing to show"))
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Faint(true)).
		Headers(v.headers...).
		Rows(v.rows...)

	_, err := fmt.Fprintln(w, t.String())
	return err
}

// writeYAML goes through the JSON encoding so keys keep their wire names and
// order, then drops the flow and quoting styles JSON parses into.
func writeYAML(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("converting to yaml: %w", err)
	}
	blockStyle(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("writing yaml: %w", err)
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle | yaml.DoubleQuotedStyle
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// fields renders a single record as a two-column table.
func fields(value any, pairs ...string) view {
	v := view{value: value, headers: []string{"FIELD", "VALUE"}}
	for i := 0; i+1 < len(pairs); i += 2 {
		v.rows = append(v.rows, []string{pairs[i], pairs[i+1]})
	}
	return v
}
