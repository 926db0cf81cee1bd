package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := cfrm.Credentials{Username: loginUsername, Password: loginPassword}
		if creds.Username == "" || creds.Password == "" {
			if err := credentialsForm(&creds).Run(); err != nil {
				return err
			}
		}

		var (
			u   *cfrm.User
			err error
		)
		if spinErr := withSpinner("Signing in", func() {
			u, err = sess.Login(ctx, creds)
		}); spinErr != nil {
			return spinErr
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("SIGNED IN", u.DisplayName()))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the refresh token and forget the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess.Logout(ctx)
		fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("SIGNED OUT", "local session cleared"))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLogin(); err != nil {
			return err
		}

		sess.Hydrate(ctx)
		u := sess.User()
		if u == nil {
			return errLoginRequired
		}

		expires := "unknown"
		if exp, ok := sess.TokenExpiry(); ok {
			expires = humanize.Time(exp)
		}

		return render(cmd.OutOrStdout(), fields(u,
			"Name", u.DisplayName(),
			"Username", u.Username,
			"Email", u.Email,
			"Role", u.Role.Name,
			"Organization", u.Organization.Name,
			"Token expires", expires,
		))
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Trade the stored refresh token for a new access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := sess.Refresh(ctx); err != nil {
			return fmt.Errorf("refreshing session: %w", err)
		}

		exp, ok := sess.TokenExpiry()
		msg := "access token renewed"
		if ok {
			msg += ", expires " + humanize.Time(exp)
		}
		fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("REFRESHED", msg))
		return nil
	},
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change your password",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLogin(); err != nil {
			return err
		}

		var change cfrm.PasswordChange
		var confirm string
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Current password").EchoMode(huh.EchoModePassword).
				Validate(requiredInput).Value(&change.OldPassword),
			huh.NewInput().Title("New password").EchoMode(huh.EchoModePassword).
				Validate(requiredInput).Value(&change.NewPassword),
			huh.NewInput().Title("Confirm new password").EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if s != change.NewPassword {
						return errors.New("passwords do not match")
					}
					return nil
				}).Value(&confirm),
		)).WithTheme(customFormTheme())

		if err := form.Run(); err != nil {
			return err
		}

		if err := client.ChangePassword(ctx, change); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("SAVED", "password changed"))
		return nil
	},
}

func credentialsForm(creds *cfrm.Credentials) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Validate(requiredInput).
				Inline(true).
				Value(&creds.Username),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Validate(requiredInput).
				Inline(true).
				Value(&creds.Password),
		),
	).WithTheme(customFormTheme())
}

// Validator for required huh Input fields
func requiredInput(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("field is required")
	}
	return nil
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username (prompted when empty)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (prompted when empty)")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, refreshCmd, passwordCmd)
}
