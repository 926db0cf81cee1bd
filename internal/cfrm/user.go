package cfrm

import (
	"context"
	"fmt"
)

// ListUsers returns the users a ticket can be assigned to.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	return listAll[User](ctx, c, "/users/", "users")
}

func (c *Client) MyPreferences(ctx context.Context) (*UserPreferences, error) {
	p := &UserPreferences{}
	if err := c.api.Get(ctx, "/users/preferences/my_preferences/", p); err != nil {
		return nil, fmt.Errorf("getting preferences: %w", err)
	}
	return p, nil
}

// UpdateMyPreferences sends a partial update; unset fields keep their
// stored values.
func (c *Client) UpdateMyPreferences(ctx context.Context, p UserPreferences) (*UserPreferences, error) {
	out := &UserPreferences{}
	if err := c.api.Post(ctx, "/users/preferences/update_preferences/", p, out); err != nil {
		return nil, fmt.Errorf("updating preferences: %w", err)
	}
	return out, nil
}
