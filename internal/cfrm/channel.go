package cfrm

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
)

type ChannelInput struct {
	Name          string         `json:"name"`
	Type          ChannelType    `json:"type"`
	Description   string         `json:"description"`
	IsActive      bool           `json:"is_active"`
	Configuration map[string]any `json:"configuration"`
}

func (in ChannelInput) Validate() map[string]string {
	bad := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		bad["name"] = "required"
	}
	if !slices.Contains(ChannelTypes, in.Type) {
		bad["type"] = fmt.Sprintf("must be one of %v", ChannelTypes)
	}

	if len(bad) == 0 {
		return nil
	}
	return bad
}

func channelPath(id string) string {
	return "/channels/" + url.PathEscape(id) + "/"
}

func (c *Client) ListChannelConfigs(ctx context.Context) ([]Channel, error) {
	return c.Channels(ctx)
}

func (c *Client) CreateChannelConfig(ctx context.Context, in ChannelInput) (*Channel, error) {
	if bad := in.Validate(); bad != nil {
		return nil, &ValidationError{Fields: bad}
	}
	if in.Configuration == nil {
		in.Configuration = map[string]any{}
	}

	ch := &Channel{}
	if err := c.api.Post(ctx, "/channels/", in, ch); err != nil {
		return nil, fmt.Errorf("creating channel %q: %w", in.Name, err)
	}

	slog.Info("channel created", "channelId", ch.Id, "type", ch.Type)
	return ch, nil
}

func (c *Client) UpdateChannelConfig(ctx context.Context, id string, in ChannelInput) (*Channel, error) {
	if id == "" {
		return nil, fmt.Errorf("channel id is required")
	}
	if bad := in.Validate(); bad != nil {
		return nil, &ValidationError{Fields: bad}
	}
	if in.Configuration == nil {
		in.Configuration = map[string]any{}
	}

	ch := &Channel{}
	if err := c.api.Put(ctx, channelPath(id), in, ch); err != nil {
		return nil, fmt.Errorf("updating channel %s: %w", id, err)
	}
	return ch, nil
}

func (c *Client) DeleteChannelConfig(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("channel id is required")
	}

	if err := c.api.Delete(ctx, channelPath(id), nil); err != nil {
		return fmt.Errorf("deleting channel %s: %w", id, err)
	}
	return nil
}
