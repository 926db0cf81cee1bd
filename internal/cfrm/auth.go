package cfrm

import (
	"context"
	"fmt"
	"log/slog"
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type PasswordChange struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	slog.Debug("cfrm.Login called", "username", creds.Username)
	res := &LoginResponse{}
	if err := c.api.Post(ctx, "/auth/login/", creds, res); err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}

	if res.Access == "" {
		return nil, fmt.Errorf("login response did not include an access token")
	}

	return res, nil
}

// Logout tells the backend to invalidate the refresh token. Callers treat
// failures as non-fatal.
func (c *Client) Logout(ctx context.Context, refresh string) error {
	body := map[string]string{}
	if refresh != "" {
		body["refresh"] = refresh
	}

	if err := c.api.Post(ctx, "/auth/logout/", body, nil); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	u := &User{}
	if err := c.api.Get(ctx, "/auth/me/", u); err != nil {
		return nil, fmt.Errorf("getting current user: %w", err)
	}
	return u, nil
}

// RefreshToken exchanges a refresh token for a new access token. The
// returned refresh token is empty unless the backend rotates it.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (access, rotated string, err error) {
	res := &refreshResponse{}
	if err := c.api.Post(ctx, "/auth/token/refresh/", map[string]string{"refresh": refresh}, res); err != nil {
		return "", "", fmt.Errorf("refreshing token: %w", err)
	}

	if res.Access == "" {
		return "", "", fmt.Errorf("refresh response did not include an access token")
	}

	return res.Access, res.Refresh, nil
}

func (c *Client) ChangePassword(ctx context.Context, p PasswordChange) error {
	if p.OldPassword == "" || p.NewPassword == "" {
		return fmt.Errorf("old and new password are required")
	}

	if err := c.api.Post(ctx, "/users/users/change_password/", p, nil); err != nil {
		return fmt.Errorf("changing password: %w", err)
	}
	return nil
}

func (c *Client) UpdateProfile(ctx context.Context, patch UserPatch) (*User, error) {
	u := &User{}
	if err := c.api.Patch(ctx, "/users/users/me/", patch, u); err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return u, nil
}
