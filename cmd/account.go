package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dsrosen/cfrm-console/internal/tui"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	prefs     cfrm.UserPreferences
	prefEmail bool
	prefSMS   bool
	prefPush  bool
)

var dashboardCmd = &cobra.Command{
	Use:               "dashboard",
	Aliases:           []string{"dash"},
	Short:             "Show the ticket counters",
	PersistentPreRunE: authedPreRun,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := client.DashboardStats(ctx)
		if err != nil {
			return err
		}

		avg := "n/a"
		if s.AvgResponseTime != nil {
			avg = fmt.Sprintf("%.1f h", *s.AvgResponseTime)
		}

		v := fields(s,
			"Total", strconv.Itoa(s.Total()),
			"Overdue", strconv.Itoa(s.OverdueCount),
			"This week", strconv.Itoa(s.WeeklyTickets),
			"Avg. response", avg,
		)
		for _, group := range []struct {
			label string
			stats []cfrm.NameCount
		}{{"Status", s.StatusStats}, {"Category", s.CategoryStats}, {"Channel", s.ChannelStats}} {
			for _, nc := range group.stats {
				v.rows = append(v.rows, []string{group.label + ": " + nc.Name, strconv.Itoa(nc.Count)})
			}
		}
		return render(cmd.OutOrStdout(), v)
	},
}

var referenceCmd = &cobra.Command{
	Use:               "reference",
	Aliases:           []string{"ref"},
	Short:             "Show categories, priorities, statuses and channels",
	PersistentPreRunE: authedPreRun,
	RunE: func(cmd *cobra.Command, args []string) error {
		rd, err := client.ReferenceData(ctx)
		if err != nil {
			return err
		}

		v := view{value: rd, headers: []string{"KIND", "ID", "NAME", "DETAIL"}}
		for _, c := range rd.Categories {
			detail := ""
			if c.IsSensitive {
				detail = textRed("sensitive")
			}
			v.rows = append(v.rows, []string{"category", c.Id.String(), c.Name, detail})
		}
		for _, p := range rd.Priorities {
			v.rows = append(v.rows, []string{"priority", p.Id.String(), p.Name, fmt.Sprintf("level %d, SLA %dh", p.Level, p.SlaHours)})
		}
		for _, s := range rd.Statuses {
			detail := ""
			if s.IsFinal {
				detail = "final"
			}
			v.rows = append(v.rows, []string{"status", s.Id.String(), s.Name, detail})
		}
		for _, ch := range rd.Channels {
			v.rows = append(v.rows, []string{"channel", ch.Id.String(), ch.Name, string(ch.Type)})
		}
		return render(cmd.OutOrStdout(), v)
	},
}

var usersCmd = &cobra.Command{
	Use:               "users",
	Short:             "List the users tickets can be assigned to",
	PersistentPreRunE: authedPreRun,
	RunE: func(cmd *cobra.Command, args []string) error {
		us, err := client.ListUsers(ctx)
		if err != nil {
			return err
		}

		v := view{value: us, headers: []string{"ID", "USERNAME", "NAME", "ROLE", "ACTIVE", "LAST LOGIN"}}
		for _, u := range us {
			last := "never"
			if u.LastLogin != nil {
				last = humanize.Time(*u.LastLogin)
			}
			v.rows = append(v.rows, []string{
				u.Id.String(), u.Username, u.DisplayName(), u.Role.Name, strconv.FormatBool(u.IsActive), last,
			})
		}
		return render(cmd.OutOrStdout(), v)
	},
}

var prefsCmd = &cobra.Command{
	Use:               "prefs",
	Short:             "Show or change your preferences",
	PersistentPreRunE: authedPreRun,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := client.MyPreferences(ctx)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), prefsFields(p))
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change preferences; unset flags keep their value",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := prefs
		p.Theme = strings.ToLower(p.Theme)
		if p.Theme != "" && !slices.Contains(cfrm.Themes, p.Theme) {
			return fmt.Errorf("unknown theme %q: use one of %v", p.Theme, cfrm.Themes)
		}
		if cmd.Flags().Changed("email") {
			p.EmailNotifications = &prefEmail
		}
		if cmd.Flags().Changed("sms") {
			p.SmsNotifications = &prefSMS
		}
		if cmd.Flags().Changed("push") {
			p.PushNotifications = &prefPush
		}

		saved, err := client.UpdateMyPreferences(ctx, p)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), prefsFields(saved))
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the interactive console",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tui.Run(ctx, tui.Deps{Client: client, Session: sess, Now: time.Now})
	},
}

func prefsFields(p *cfrm.UserPreferences) view {
	onOff := func(b *bool, def bool) string {
		if b == nil {
			b = &def
		}
		if *b {
			return "on"
		}
		return "off"
	}

	return fields(p,
		"Theme", p.Theme,
		"Items per page", strconv.Itoa(p.ItemsPerPage),
		"Default view", p.DefaultView,
		"Email notifications", onOff(p.EmailNotifications, true),
		"SMS notifications", onOff(p.SmsNotifications, false),
		"Push notifications", onOff(p.PushNotifications, true),
	)
}

func init() {
	f := prefsSetCmd.Flags()
	f.StringVar(&prefs.Theme, "theme", "", "light, dark or auto")
	f.IntVar(&prefs.ItemsPerPage, "items-per-page", 0, "tickets per page")
	f.StringVar(&prefs.DefaultView, "view", "", "list or cards")
	f.BoolVar(&prefEmail, "email", true, "email notifications")
	f.BoolVar(&prefSMS, "sms", false, "sms notifications")
	f.BoolVar(&prefPush, "push", true, "push notifications")

	prefsCmd.AddCommand(prefsSetCmd)
	rootCmd.AddCommand(dashboardCmd, referenceCmd, usersCmd, prefsCmd, consoleCmd)
}
