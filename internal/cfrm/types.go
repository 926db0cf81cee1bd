package cfrm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Id is a resource identifier. Tickets use UUIDs while reference data uses
// integer keys, so both JSON strings and numbers are accepted.
type Id string

func (id *Id) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = Id(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("id must be a string or number: %w", err)
		}
		*id = Id(n.String())
	}
	return nil
}

func (id Id) String() string {
	return string(id)
}

// Ref is a reference to another resource as embedded in a ticket. The
// backend sends either the nested object or just its key.
type Ref struct {
	Id       Id     `json:"id"`
	Name     string `json:"name,omitempty"`
	Level    int    `json:"level,omitempty"`
	Type     string `json:"type,omitempty"`
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		type plain Ref
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*r = Ref(p)
		return nil
	}

	var id Id
	if err := id.UnmarshalJSON(data); err != nil {
		return err
	}
	*r = Ref{Id: id}
	return nil
}

// Label is the display name of the reference, falling back to its key.
func (r *Ref) Label() string {
	if r == nil {
		return ""
	}

	switch {
	case r.FullName != "":
		return r.FullName
	case r.Name != "":
		return r.Name
	case r.Username != "":
		return r.Username
	default:
		return r.Id.String()
	}
}

type Organization struct {
	Id   Id     `json:"id"`
	Name string `json:"name"`
}

type Role struct {
	Id   Id     `json:"id"`
	Name string `json:"name"`
}

type User struct {
	Id           Id           `json:"id"`
	Username     string       `json:"username"`
	Email        string       `json:"email"`
	FirstName    string       `json:"first_name"`
	LastName     string       `json:"last_name"`
	FullName     string       `json:"full_name"`
	Organization Organization `json:"organization"`
	Role         Role         `json:"role"`
	IsActive     bool         `json:"is_active"`
	IsVerified   bool         `json:"is_verified"`
	LastLogin    *time.Time   `json:"last_login,omitempty"`
	LastActivity *time.Time   `json:"last_activity,omitempty"`
	CreatedAt    *time.Time   `json:"created_at,omitempty"`
}

func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// UserPatch is a partial user update; nil fields are left alone.
type UserPatch struct {
	Username   *string `json:"username,omitempty"`
	Email      *string `json:"email,omitempty"`
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	FullName   *string `json:"full_name,omitempty"`
	IsVerified *bool   `json:"is_verified,omitempty"`
}

// Apply returns a copy of u with the patch's fields merged in.
func (u User) Apply(p UserPatch) User {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.IsVerified != nil {
		u.IsVerified = *p.IsVerified
	}
	return u
}

type Category struct {
	Id          Id     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsSensitive bool   `json:"is_sensitive"`
}

type Priority struct {
	Id       Id     `json:"id"`
	Name     string `json:"name"`
	Level    int    `json:"level"`
	SlaHours int    `json:"sla_hours"`
}

type Status struct {
	Id          Id     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
}

type ChannelType string

const (
	ChannelSMS      ChannelType = "sms"
	ChannelWhatsApp ChannelType = "whatsapp"
	ChannelEmail    ChannelType = "email"
	ChannelWeb      ChannelType = "web"
)

var ChannelTypes = []ChannelType{ChannelSMS, ChannelWhatsApp, ChannelEmail, ChannelWeb}

// Channel is both the reference entry used on tickets and the configuration
// record managed from the channels page.
type Channel struct {
	Id            Id             `json:"id"`
	Name          string         `json:"name"`
	Type          ChannelType    `json:"type"`
	Description   string         `json:"description,omitempty"`
	IsActive      bool           `json:"is_active"`
	Configuration map[string]any `json:"configuration,omitempty"`
	CreatedAt     *time.Time     `json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `json:"updated_at,omitempty"`
}

type Ticket struct {
	Id          Id     `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	IsAnonymous bool   `json:"is_anonymous"`

	Category *Ref `json:"category"`
	Priority *Ref `json:"priority"`
	Status   *Ref `json:"status"`
	Channel  *Ref `json:"channel"`

	// Flattened names sent by the list serializer.
	CategoryName string `json:"category_name,omitempty"`
	PriorityName string `json:"priority_name,omitempty"`
	StatusName   string `json:"status_name,omitempty"`
	ChannelName  string `json:"channel_name,omitempty"`

	ExternalId        string `json:"external_id"`
	SubmitterName     string `json:"submitter_name"`
	SubmitterPhone    string `json:"submitter_phone"`
	SubmitterEmail    string `json:"submitter_email"`
	SubmitterLocation string `json:"submitter_location"`

	AssignedTo *Ref `json:"assigned_to"`
	CreatedBy  *Ref `json:"created_by"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at"`
	SlaDeadline *time.Time `json:"sla_deadline"`
	EscalatedAt *time.Time `json:"escalated_at"`
	EscalatedTo string     `json:"escalated_to"`

	IsPsea        bool   `json:"is_psea"`
	PseaContact   string `json:"psea_contact"`
	PseaEscalated bool   `json:"psea_escalated"`

	Attachments []any          `json:"attachments"`
	Latitude    *float64       `json:"latitude"`
	Longitude   *float64       `json:"longitude"`
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata"`

	IsOverdue         bool `json:"is_overdue"`
	DaysSinceCreation int  `json:"days_since_creation"`

	Responses []Response  `json:"responses,omitempty"`
	Logs      []TicketLog `json:"logs,omitempty"`
	Feedback  *Feedback   `json:"feedback,omitempty"`
}

func (t *Ticket) CategoryLabel() string { return refLabel(t.Category, t.CategoryName) }
func (t *Ticket) PriorityLabel() string { return refLabel(t.Priority, t.PriorityName) }
func (t *Ticket) StatusLabel() string   { return refLabel(t.Status, t.StatusName) }
func (t *Ticket) ChannelLabel() string  { return refLabel(t.Channel, t.ChannelName) }

func refLabel(r *Ref, flat string) string {
	if r != nil && r.Name != "" {
		return r.Name
	}
	if flat != "" {
		return flat
	}
	return r.Label()
}

type Response struct {
	Id                Id         `json:"id"`
	Ticket            Id         `json:"ticket,omitempty"`
	Content           string     `json:"content"`
	Author            *Ref       `json:"author"`
	Channel           *Ref       `json:"channel"`
	IsInternal        bool       `json:"is_internal"`
	SentAt            *time.Time `json:"sent_at"`
	CreatedAt         time.Time  `json:"created_at"`
	DeliveryStatus    string     `json:"delivery_status"`
	ExternalMessageId string     `json:"external_message_id"`
}

type TicketLog struct {
	Id            Id        `json:"id"`
	Action        string    `json:"action"`
	ActionDisplay string    `json:"action_display"`
	User          *Ref      `json:"user"`
	Description   string    `json:"description"`
	OldValue      string    `json:"old_value"`
	NewValue      string    `json:"new_value"`
	CreatedAt     time.Time `json:"created_at"`
	IpAddress     string    `json:"ip_address"`
}

type Feedback struct {
	Id                 Id        `json:"id"`
	SatisfactionRating int       `json:"satisfaction_rating"`
	ResponseTimeRating int       `json:"response_time_rating"`
	QualityRating      int       `json:"quality_rating"`
	Comments           string    `json:"comments"`
	WouldRecommend     *bool     `json:"would_recommend"`
	CreatedAt          time.Time `json:"created_at"`
}

type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TicketStats is the dashboard aggregate. The backend keys each breakdown by
// a Django lookup name, hence the custom decoding.
type TicketStats struct {
	StatusStats     []NameCount `json:"status_stats"`
	CategoryStats   []NameCount `json:"category_stats"`
	ChannelStats    []NameCount `json:"channel_stats"`
	OverdueCount    int         `json:"overdue_count"`
	WeeklyTickets   int         `json:"weekly_tickets"`
	AvgResponseTime *float64    `json:"avg_response_time"`
}

func (s *TicketStats) UnmarshalJSON(data []byte) error {
	var raw struct {
		StatusStats []struct {
			Name  string `json:"status__name"`
			Count int    `json:"count"`
		} `json:"status_stats"`
		CategoryStats []struct {
			Name  string `json:"category__name"`
			Count int    `json:"count"`
		} `json:"category_stats"`
		ChannelStats []struct {
			Name  string `json:"channel__name"`
			Count int    `json:"count"`
		} `json:"channel_stats"`
		OverdueCount    int      `json:"overdue_count"`
		WeeklyTickets   int      `json:"weekly_tickets"`
		AvgResponseTime *float64 `json:"avg_response_time"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = TicketStats{
		OverdueCount:    raw.OverdueCount,
		WeeklyTickets:   raw.WeeklyTickets,
		AvgResponseTime: raw.AvgResponseTime,
	}

	for _, v := range raw.StatusStats {
		s.StatusStats = append(s.StatusStats, NameCount{Name: v.Name, Count: v.Count})
	}
	for _, v := range raw.CategoryStats {
		s.CategoryStats = append(s.CategoryStats, NameCount{Name: v.Name, Count: v.Count})
	}
	for _, v := range raw.ChannelStats {
		s.ChannelStats = append(s.ChannelStats, NameCount{Name: v.Name, Count: v.Count})
	}

	return nil
}

// Total is the sum of the status breakdown.
func (s *TicketStats) Total() int {
	total := 0
	for _, v := range s.StatusStats {
		total += v.Count
	}
	return total
}

type TicketDetailStats struct {
	DaysSinceCreation int       `json:"days_since_creation"`
	IsOverdue         bool      `json:"is_overdue"`
	ResponsesCount    int       `json:"responses_count"`
	LogsCount         int       `json:"logs_count"`
	HasFeedback       bool      `json:"has_feedback"`
	Feedback          *Feedback `json:"feedback,omitempty"`
}

type UserPreferences struct {
	Theme              string         `json:"theme,omitempty"`
	ItemsPerPage       int            `json:"items_per_page,omitempty"`
	DefaultView        string         `json:"default_view,omitempty"`
	EmailNotifications *bool          `json:"email_notifications,omitempty"`
	SmsNotifications   *bool          `json:"sms_notifications,omitempty"`
	PushNotifications  *bool          `json:"push_notifications,omitempty"`
	DefaultFilters     map[string]any `json:"default_filters,omitempty"`
}

var Themes = []string{"light", "dark", "auto"}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
