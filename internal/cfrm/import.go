package cfrm

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dsrosen/cfrm-console/internal/api"
)

var importHeader = []string{
	"title", "content", "category", "priority", "channel",
	"submitter_name", "submitter_phone", "submitter_email", "submitter_location", "is_anonymous",
}

var importExample = []string{
	"Exemple de ticket", "Description du ticket", "Information", "3", "Portail Web",
	"John Doe", "+1234567890", "john@example.com", "Paris", "false",
}

const ImportTemplateName = "template_import_tickets.csv"

type ImportResult struct {
	Message       string   `json:"message"`
	ImportedCount int      `json:"imported_count"`
	Errors        []string `json:"errors"`
}

// WriteImportTemplate writes the CSV header the import endpoint expects,
// followed by one example row.
func WriteImportTemplate(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(importHeader); err != nil {
		return fmt.Errorf("writing template header: %w", err)
	}
	if err := cw.Write(importExample); err != nil {
		return fmt.Errorf("writing template example: %w", err)
	}

	cw.Flush()
	return cw.Error()
}

// ImportTickets uploads a CSV file. Row-level failures come back in
// ImportResult.Errors; only transport or whole-file failures return an error.
func (c *Client) ImportTickets(ctx context.Context, name string, r io.Reader, progress api.ProgressFunc) (*ImportResult, error) {
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return nil, &ValidationError{Fields: map[string]string{"file": "must be a .csv file"}}
	}

	form := api.NewForm().AddFile("file", filepath.Base(name), r)
	res := &ImportResult{}
	if err := c.api.Upload(ctx, "/tickets/import/", form, progress, res); err != nil {
		return nil, fmt.Errorf("importing %s: %w", name, err)
	}

	slog.Info("tickets imported", "file", name, "count", res.ImportedCount, "rowErrors", len(res.Errors))
	return res, nil
}
