package cfrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/dsrosen/cfrm-console/internal/api"
	"github.com/google/uuid"
)

var ErrInvalidTicketId = errors.New("invalid ticket id")

const DefaultPageSize = 20

// TicketFilters are the list query parameters. Zero values are omitted.
type TicketFilters struct {
	Search     string
	Status     string
	Category   string
	Priority   string
	Channel    string
	AssignedTo string
	IsOverdue  *bool
	DateFrom   string
	DateTo     string
	Ordering   string
	Page       int
	PageSize   int
}

func (f TicketFilters) Values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}

	set("search", f.Search)
	set("status", f.Status)
	set("category", f.Category)
	set("priority", f.Priority)
	set("channel", f.Channel)
	set("assigned_to", f.AssignedTo)
	set("created_at__gte", f.DateFrom)
	set("created_at__lte", f.DateTo)
	set("ordering", f.Ordering)

	if f.IsOverdue != nil {
		v.Set("is_overdue", strconv.FormatBool(*f.IsOverdue))
	}
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(f.PageSize))
	}

	return v
}

// TicketInput is the body for creating a ticket. It is sent as multipart so
// attachments can ride along.
type TicketInput struct {
	Title             string
	Content           string
	Category          string
	Priority          string
	Channel           string
	IsAnonymous       bool
	ExternalId        string
	SubmitterName     string
	SubmitterPhone    string
	SubmitterEmail    string
	SubmitterLocation string
	Latitude          *float64
	Longitude         *float64
	Tags              []string
	Metadata          map[string]any
	Attachments       []api.FormFile
}

// Validate reports the missing required fields by form field name.
func (in TicketInput) Validate() map[string]string {
	missing := map[string]string{}
	required := []struct{ field, value string }{
		{"title", in.Title},
		{"content", in.Content},
		{"category", in.Category},
		{"priority", in.Priority},
		{"channel", in.Channel},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing[r.field] = "required"
		}
	}

	if len(missing) == 0 {
		return nil
	}
	return missing
}

func (in TicketInput) body() map[string]any {
	b := map[string]any{
		"title":        in.Title,
		"content":      in.Content,
		"is_anonymous": in.IsAnonymous,
		"category":     in.Category,
		"priority":     in.Priority,
		"channel":      in.Channel,
	}

	opt := map[string]string{
		"external_id":        in.ExternalId,
		"submitter_name":     in.SubmitterName,
		"submitter_phone":    in.SubmitterPhone,
		"submitter_email":    in.SubmitterEmail,
		"submitter_location": in.SubmitterLocation,
	}
	for k, v := range opt {
		if v != "" {
			b[k] = v
		}
	}

	if in.Latitude != nil {
		b["latitude"] = *in.Latitude
	}
	if in.Longitude != nil {
		b["longitude"] = *in.Longitude
	}
	if len(in.Tags) > 0 {
		b["tags"] = in.Tags
	}
	if len(in.Metadata) > 0 {
		b["metadata"] = in.Metadata
	}

	return b
}

func (in TicketInput) form() (*api.Form, error) {
	f := api.NewForm().
		Set("title", in.Title).
		Set("content", in.Content).
		Set("is_anonymous", strconv.FormatBool(in.IsAnonymous)).
		Set("category", in.Category).
		Set("priority", in.Priority).
		Set("channel", in.Channel).
		SetIf("external_id", in.ExternalId).
		SetIf("submitter_name", in.SubmitterName).
		SetIf("submitter_phone", in.SubmitterPhone).
		SetIf("submitter_email", in.SubmitterEmail).
		SetIf("submitter_location", in.SubmitterLocation)

	if in.Latitude != nil {
		f.Set("latitude", formatFloat(*in.Latitude))
	}
	if in.Longitude != nil {
		f.Set("longitude", formatFloat(*in.Longitude))
	}

	if len(in.Tags) > 0 {
		b, err := json.Marshal(in.Tags)
		if err != nil {
			return nil, fmt.Errorf("encoding tags: %w", err)
		}
		f.Set("tags", string(b))
	}

	if len(in.Metadata) > 0 {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata: %w", err)
		}
		f.Set("metadata", string(b))
	}

	for _, a := range in.Attachments {
		f.AddFile("attachments", a.Name, a.Reader)
	}

	return f, nil
}

// TicketPatch is a partial ticket update; nil fields are not sent.
type TicketPatch struct {
	Title      *string  `json:"title,omitempty"`
	Content    *string  `json:"content,omitempty"`
	Category   *string  `json:"category,omitempty"`
	Priority   *string  `json:"priority,omitempty"`
	Status     *string  `json:"status,omitempty"`
	Channel    *string  `json:"channel,omitempty"`
	AssignedTo *string  `json:"assigned_to,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

func ValidateTicketId(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w %q", ErrInvalidTicketId, id)
	}
	return nil
}

func ticketPath(id string, action string) (string, error) {
	if err := ValidateTicketId(id); err != nil {
		return "", err
	}

	p := "/tickets/" + url.PathEscape(id) + "/"
	if action != "" {
		p += action + "/"
	}
	return p, nil
}

func (c *Client) ListTickets(ctx context.Context, f TicketFilters) (ListResult[Ticket], error) {
	slog.Debug("cfrm.ListTickets called", "filters", f.Values().Encode())
	var res ListResult[Ticket]
	if err := c.api.Get(ctx, "/tickets/", &res, api.WithQuery(f.Values())); err != nil {
		return ListResult[Ticket]{}, fmt.Errorf("listing tickets: %w", err)
	}
	return res, nil
}

func (c *Client) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	p, err := ticketPath(id, "")
	if err != nil {
		return nil, err
	}

	t := &Ticket{}
	if err := c.api.Get(ctx, p, t); err != nil {
		return nil, fmt.Errorf("getting ticket %s: %w", id, err)
	}
	return t, nil
}

// CreateTicket posts the ticket as JSON. Attachments are ignored; use
// CreateTicketMultipart to send files.
func (c *Client) CreateTicket(ctx context.Context, in TicketInput) (*Ticket, error) {
	if missing := in.Validate(); missing != nil {
		return nil, &ValidationError{Fields: missing}
	}

	t := &Ticket{}
	if err := c.api.Post(ctx, "/tickets/", in.body(), t); err != nil {
		return nil, fmt.Errorf("creating ticket: %w", err)
	}

	slog.Info("ticket created", "ticketId", t.Id)
	return t, nil
}

func (c *Client) CreateTicketMultipart(ctx context.Context, in TicketInput, progress api.ProgressFunc) (*Ticket, error) {
	if missing := in.Validate(); missing != nil {
		return nil, &ValidationError{Fields: missing}
	}

	form, err := in.form()
	if err != nil {
		return nil, err
	}

	t := &Ticket{}
	if err := c.api.Upload(ctx, "/tickets/", form, progress, t); err != nil {
		return nil, fmt.Errorf("creating ticket: %w", err)
	}

	slog.Info("ticket created", "ticketId", t.Id)
	return t, nil
}

func (c *Client) UpdateTicket(ctx context.Context, id string, patch TicketPatch) (*Ticket, error) {
	p, err := ticketPath(id, "")
	if err != nil {
		return nil, err
	}

	t := &Ticket{}
	if err := c.api.Patch(ctx, p, patch, t); err != nil {
		return nil, fmt.Errorf("updating ticket %s: %w", id, err)
	}
	return t, nil
}

func (c *Client) DeleteTicket(ctx context.Context, id string) error {
	p, err := ticketPath(id, "")
	if err != nil {
		return err
	}

	if err := c.api.Delete(ctx, p, nil); err != nil {
		return fmt.Errorf("deleting ticket %s: %w", id, err)
	}
	return nil
}

func (c *Client) AssignTicket(ctx context.Context, id, userId string) (*Ticket, error) {
	return c.ticketAction(ctx, id, "assign", map[string]string{"assigned_to": userId})
}

func (c *Client) CloseTicket(ctx context.Context, id string) (*Ticket, error) {
	return c.ticketAction(ctx, id, "close", map[string]string{})
}

func (c *Client) ReopenTicket(ctx context.Context, id string) (*Ticket, error) {
	return c.ticketAction(ctx, id, "reopen", map[string]string{})
}

func (c *Client) EscalateTicket(ctx context.Context, id, to string) (*Ticket, error) {
	if strings.TrimSpace(to) == "" {
		return nil, &ValidationError{Fields: map[string]string{"escalated_to": "required"}}
	}
	return c.ticketAction(ctx, id, "escalate", map[string]string{"escalated_to": to})
}

func (c *Client) ticketAction(ctx context.Context, id, action string, body any) (*Ticket, error) {
	p, err := ticketPath(id, action)
	if err != nil {
		return nil, err
	}

	slog.Debug("cfrm.ticketAction called", "ticketId", id, "action", action)
	t := &Ticket{}
	if err := c.api.Post(ctx, p, body, t); err != nil {
		return nil, fmt.Errorf("%s ticket %s: %w", action, id, err)
	}

	// some actions answer with a message instead of the ticket
	if t.Id == "" {
		t.Id = Id(id)
	}
	return t, nil
}

func (c *Client) TicketStats(ctx context.Context, id string) (*TicketDetailStats, error) {
	p, err := ticketPath(id, "stats")
	if err != nil {
		return nil, err
	}

	s := &TicketDetailStats{}
	if err := c.api.Get(ctx, p, s); err != nil {
		return nil, fmt.Errorf("getting stats for ticket %s: %w", id, err)
	}
	return s, nil
}

func (c *Client) DashboardStats(ctx context.Context) (*TicketStats, error) {
	s := &TicketStats{}
	if err := c.api.Get(ctx, "/tickets/dashboard_stats/", s); err != nil {
		return nil, fmt.Errorf("getting dashboard stats: %w", err)
	}
	return s, nil
}

// ValidationError is returned before any request is sent when required
// input is missing.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return "missing required fields: " + strings.Join(keys, ", ")
}
