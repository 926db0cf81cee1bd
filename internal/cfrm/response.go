package cfrm

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dsrosen/cfrm-console/internal/api"
)

type ResponseInput struct {
	Ticket     string `json:"ticket"`
	Content    string `json:"content"`
	IsInternal bool   `json:"is_internal"`
	Channel    string `json:"channel,omitempty"`
}

func (c *Client) Responses(ctx context.Context, ticketId string) ([]Response, error) {
	if err := ValidateTicketId(ticketId); err != nil {
		return nil, err
	}

	var res ListResult[Response]
	q := url.Values{"ticket": {ticketId}}
	if err := c.api.Get(ctx, "/responses/", &res, api.WithQuery(q)); err != nil {
		return nil, fmt.Errorf("listing responses for ticket %s: %w", ticketId, err)
	}
	return res.Items(), nil
}

func (c *Client) CreateResponse(ctx context.Context, in ResponseInput) (*Response, error) {
	if err := ValidateTicketId(in.Ticket); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, &ValidationError{Fields: map[string]string{"content": "required"}}
	}

	r := &Response{}
	if err := c.api.Post(ctx, "/responses/", in, r); err != nil {
		return nil, fmt.Errorf("adding response to ticket %s: %w", in.Ticket, err)
	}
	return r, nil
}

func (c *Client) TicketLogs(ctx context.Context, ticketId string) ([]TicketLog, error) {
	if err := ValidateTicketId(ticketId); err != nil {
		return nil, err
	}

	var res ListResult[TicketLog]
	q := url.Values{"ticket": {ticketId}}
	if err := c.api.Get(ctx, "/logs/", &res, api.WithQuery(q)); err != nil {
		return nil, fmt.Errorf("listing logs for ticket %s: %w", ticketId, err)
	}
	return res.Items(), nil
}

type FeedbackInput struct {
	Ticket             string `json:"ticket"`
	SatisfactionRating int    `json:"satisfaction_rating"`
	ResponseTimeRating int    `json:"response_time_rating,omitempty"`
	QualityRating      int    `json:"quality_rating,omitempty"`
	Comments           string `json:"comments,omitempty"`
	WouldRecommend     *bool  `json:"would_recommend,omitempty"`
}

func (in FeedbackInput) Validate() map[string]string {
	bad := map[string]string{}
	check := func(field string, v int, required bool) {
		if v == 0 && !required {
			return
		}
		if v < 1 || v > 5 {
			bad[field] = "must be between 1 and 5"
		}
	}

	check("satisfaction_rating", in.SatisfactionRating, true)
	check("response_time_rating", in.ResponseTimeRating, false)
	check("quality_rating", in.QualityRating, false)

	if len(bad) == 0 {
		return nil
	}
	return bad
}

func (c *Client) CreateFeedback(ctx context.Context, in FeedbackInput) (*Feedback, error) {
	if err := ValidateTicketId(in.Ticket); err != nil {
		return nil, err
	}
	if bad := in.Validate(); bad != nil {
		return nil, &ValidationError{Fields: bad}
	}

	f := &Feedback{}
	if err := c.api.Post(ctx, "/feedback/", in, f); err != nil {
		return nil, fmt.Errorf("submitting feedback for ticket %s: %w", in.Ticket, err)
	}
	return f, nil
}
