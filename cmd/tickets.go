package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/dsrosen/cfrm-console/internal/api"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	listFilters cfrm.TicketFilters
	listOverdue bool

	newTicket   cfrm.TicketInput
	attachPaths []string

	patchTitle    string
	patchContent  string
	patchStatus   string
	patchPriority string
	patchCategory string
	patchChannel  string
	patchTags     []string

	escalateTo  string
	assumeYes   bool
	respondBody string
	respondNote bool

	feedback  cfrm.FeedbackInput
	recommend bool
)

var ticketsCmd = &cobra.Command{
	Use:               "tickets",
	Aliases:           []string{"t"},
	Short:             "List, inspect and change tickets",
	PersistentPreRunE: authedPreRun,
}

var ticketsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tickets matching the filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := listFilters
		if cmd.Flags().Changed("overdue") {
			f.IsOverdue = &listOverdue
		}

		l, err := client.ListTickets(ctx, f)
		if err != nil {
			return err
		}

		v := view{value: l, headers: []string{"ID", "TITLE", "STATUS", "PRIORITY", "CATEGORY", "CHANNEL", "CREATED"}}
		for _, t := range l.Items() {
			v.rows = append(v.rows, ticketRow(t))
		}
		if err := render(cmd.OutOrStdout(), v); err != nil {
			return err
		}

		if output == "table" {
			fmt.Fprintln(cmd.OutOrStdout(), textFaint(pageSummary(l, f.Page)))
		}
		return nil
	},
}

var ticketsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := client.GetTicket(ctx, args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), ticketFields(t))
	},
}

var ticketsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a new ticket",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := newTicket
		if in.IsAnonymous {
			in.SubmitterName, in.SubmitterPhone, in.SubmitterEmail = "", "", ""
		}

		files, closeAll, err := openAttachments(attachPaths)
		if err != nil {
			return err
		}
		defer closeAll()
		in.Attachments = files

		var t *cfrm.Ticket
		if len(files) > 0 {
			if spinErr := withSpinner("Uploading", func() {
				t, err = client.CreateTicketMultipart(ctx, in, nil)
			}); spinErr != nil {
				return spinErr
			}
		} else {
			t, err = client.CreateTicket(ctx, in)
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.ErrOrStderr(), goodGreenOutput("CREATED", t.Id.String()))
		return render(cmd.OutOrStdout(), ticketFields(t))
	},
}

var ticketsUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change fields of a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch cfrm.TicketPatch
		changed := false
		set := func(flag string, dst **string, v string) {
			if cmd.Flags().Changed(flag) {
				*dst = &v
				changed = true
			}
		}
		set("title", &patch.Title, patchTitle)
		set("content", &patch.Content, patchContent)
		set("status", &patch.Status, patchStatus)
		set("priority", &patch.Priority, patchPriority)
		set("category", &patch.Category, patchCategory)
		set("channel", &patch.Channel, patchChannel)
		if cmd.Flags().Changed("tags") {
			patch.Tags = patchTags
			changed = true
		}

		if !changed {
			return errors.New("nothing to update: pass at least one field flag")
		}

		t, err := client.UpdateTicket(ctx, args[0], patch)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), ticketFields(t))
	},
}

var ticketsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if err := cfrm.ValidateTicketId(id); err != nil {
			return err
		}

		if !assumeYes {
			ok := false
			if err := huh.NewConfirm().
				Title("Delete ticket " + id + "?").
				Value(&ok).
				WithTheme(customFormTheme()).
				Run(); err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), warnYellowOutput("SKIPPED", "ticket kept"))
				return nil
			}
		}

		if err := client.DeleteTicket(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("DELETED", id))
		return nil
	},
}

// ticketAction builds the one-argument workflow commands that return the
// updated ticket.
func ticketAction(use, short string, args cobra.PositionalArgs, do func(args []string) (*cfrm.Ticket, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, a []string) error {
			t, err := do(a)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), ticketFields(t))
		},
	}
}

var (
	ticketsAssignCmd = ticketAction("assign ID USER_ID", "Assign a ticket to a user", cobra.ExactArgs(2),
		func(a []string) (*cfrm.Ticket, error) { return client.AssignTicket(ctx, a[0], a[1]) })

	ticketsCloseCmd = ticketAction("close ID", "Close a ticket", cobra.ExactArgs(1),
		func(a []string) (*cfrm.Ticket, error) { return client.CloseTicket(ctx, a[0]) })

	ticketsReopenCmd = ticketAction("reopen ID", "Reopen a closed ticket", cobra.ExactArgs(1),
		func(a []string) (*cfrm.Ticket, error) { return client.ReopenTicket(ctx, a[0]) })

	ticketsEscalateCmd = ticketAction("escalate ID", "Escalate a ticket", cobra.ExactArgs(1),
		func(a []string) (*cfrm.Ticket, error) { return client.EscalateTicket(ctx, a[0], escalateTo) })
)

var ticketsStatsCmd = &cobra.Command{
	Use:   "stats ID",
	Short: "Show counters for one ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := client.TicketStats(ctx, args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), fields(s,
			"Days open", strconv.Itoa(s.DaysSinceCreation),
			"Overdue", strconv.FormatBool(s.IsOverdue),
			"Responses", strconv.Itoa(s.ResponsesCount),
			"History entries", strconv.Itoa(s.LogsCount),
			"Feedback", strconv.FormatBool(s.HasFeedback),
		))
	},
}

var ticketsResponsesCmd = &cobra.Command{
	Use:   "responses ID",
	Short: "List the responses on a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := client.Responses(ctx, args[0])
		if err != nil {
			return err
		}

		v := view{value: rs, headers: []string{"WHEN", "AUTHOR", "INTERNAL", "STATUS", "CONTENT"}}
		for _, r := range rs {
			v.rows = append(v.rows, []string{
				humanize.Time(r.CreatedAt),
				r.Author.Label(),
				strconv.FormatBool(r.IsInternal),
				r.DeliveryStatus,
				truncate(r.Content, 60),
			})
		}
		return render(cmd.OutOrStdout(), v)
	},
}

var ticketsRespondCmd = &cobra.Command{
	Use:   "respond ID",
	Short: "Add a response to a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := client.CreateResponse(ctx, cfrm.ResponseInput{
			Ticket:     args[0],
			Content:    respondBody,
			IsInternal: respondNote,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("SENT", "response "+r.Id.String()))
		return nil
	},
}

var ticketsLogsCmd = &cobra.Command{
	Use:   "logs ID",
	Short: "Show the history of a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logs, err := client.TicketLogs(ctx, args[0])
		if err != nil {
			return err
		}

		v := view{value: logs, headers: []string{"WHEN", "USER", "ACTION", "CHANGE"}}
		for _, l := range logs {
			action := l.ActionDisplay
			if action == "" {
				action = l.Action
			}
			change := l.Description
			if l.OldValue != "" || l.NewValue != "" {
				change = fmt.Sprintf("%s -> %s", l.OldValue, l.NewValue)
			}
			v.rows = append(v.rows, []string{humanize.Time(l.CreatedAt), l.User.Label(), action, change})
		}
		return render(cmd.OutOrStdout(), v)
	},
}

var ticketsFeedbackCmd = &cobra.Command{
	Use:   "feedback ID",
	Short: "Record the submitter's feedback on a closed ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := feedback
		in.Ticket = args[0]
		if cmd.Flags().Changed("recommend") {
			in.WouldRecommend = &recommend
		}

		fb, err := client.CreateFeedback(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("SAVED", "feedback "+fb.Id.String()))
		return nil
	},
}

var ticketsImportCmd = &cobra.Command{
	Use:   "import FILE.csv",
	Short: "Bulk-create tickets from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if !strings.EqualFold(filepath.Ext(path), ".csv") {
			return fmt.Errorf("%s is not a .csv file", path)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()

		var res *cfrm.ImportResult
		if spinErr := withSpinner("Importing "+filepath.Base(path), func() {
			res, err = client.ImportTickets(ctx, filepath.Base(path), f, nil)
		}); spinErr != nil {
			return spinErr
		}
		if err != nil {
			return err
		}

		if output != "table" {
			return render(cmd.OutOrStdout(), view{value: res})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, goodGreenOutput("IMPORTED", fmt.Sprintf("%d tickets", res.ImportedCount)))
		for _, e := range res.Errors {
			fmt.Fprintln(out, warnYellowOutput("SKIPPED", e))
		}
		return nil
	},
}

var ticketsTemplateCmd = &cobra.Command{
	Use:         "template [FILE]",
	Short:       "Write the CSV import template",
	Annotations: map[string]string{authAnnotation: authNone},
	Args:        cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cfrm.WriteImportTemplate(cmd.OutOrStdout())
		}

		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("creating %s: %w", args[0], err)
		}
		if err := cfrm.WriteImportTemplate(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", args[0], err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("SAVED", args[0]))
		return nil
	},
}

func openAttachments(paths []string) ([]api.FormFile, func(), error) {
	var files []api.FormFile
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("opening attachment: %w", err)
		}
		opened = append(opened, f)
		files = append(files, api.FormFile{Field: "attachments", Name: filepath.Base(p), Reader: f})
	}
	return files, closeAll, nil
}

func ticketRow(t cfrm.Ticket) []string {
	return []string{
		t.Id.String(),
		truncate(t.Title, 40),
		t.StatusLabel(),
		t.PriorityLabel(),
		t.CategoryLabel(),
		t.ChannelLabel(),
		humanize.Time(t.CreatedAt),
	}
}

func ticketFields(t *cfrm.Ticket) view {
	submitter := "anonymous"
	if !t.IsAnonymous {
		submitter = strings.TrimSpace(strings.Join([]string{t.SubmitterName, t.SubmitterPhone, t.SubmitterEmail}, " "))
	}

	overdue := "no"
	if t.IsOverdue {
		overdue = textRed("yes")
	}

	return fields(t,
		"Id", t.Id.String(),
		"Title", t.Title,
		"Status", t.StatusLabel(),
		"Priority", t.PriorityLabel(),
		"Category", t.CategoryLabel(),
		"Channel", t.ChannelLabel(),
		"Assigned to", t.AssignedTo.Label(),
		"Submitter", submitter,
		"Created", humanize.Time(t.CreatedAt),
		"Overdue", overdue,
		"Tags", strings.Join(t.Tags, ", "),
		"Content", truncate(t.Content, 200),
	)
}

func pageSummary(l cfrm.ListResult[cfrm.Ticket], page int) string {
	if _, ok := l.Page(); !ok {
		return fmt.Sprintf("%d tickets", l.Count())
	}

	next := ""
	if l.HasNext() {
		next = fmt.Sprintf(" | next: --page %d", max(page, 1)+1)
	}
	return fmt.Sprintf("page %d | %d tickets%s", max(page, 1), l.Count(), next)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	lf := ticketsListCmd.Flags()
	lf.StringVar(&listFilters.Search, "search", "", "full-text search")
	lf.StringVar(&listFilters.Status, "status", "", "status id")
	lf.StringVar(&listFilters.Category, "category", "", "category id")
	lf.StringVar(&listFilters.Priority, "priority", "", "priority id")
	lf.StringVar(&listFilters.Channel, "channel", "", "channel id")
	lf.StringVar(&listFilters.AssignedTo, "assigned-to", "", "assignee user id")
	lf.BoolVar(&listOverdue, "overdue", false, "only overdue (or, with =false, only on-time) tickets")
	lf.StringVar(&listFilters.DateFrom, "from", "", "created on or after (YYYY-MM-DD)")
	lf.StringVar(&listFilters.DateTo, "to", "", "created on or before (YYYY-MM-DD)")
	lf.StringVar(&listFilters.Ordering, "ordering", "-created_at", "sort field, prefix - for descending")
	lf.IntVar(&listFilters.Page, "page", 0, "page number")
	lf.IntVar(&listFilters.PageSize, "page-size", 0, "items per page")

	cf := ticketsCreateCmd.Flags()
	cf.StringVar(&newTicket.Title, "title", "", "title (required)")
	cf.StringVar(&newTicket.Content, "content", "", "description (required)")
	cf.StringVar(&newTicket.Category, "category", "", "category id (required)")
	cf.StringVar(&newTicket.Priority, "priority", "", "priority id (required)")
	cf.StringVar(&newTicket.Channel, "channel", "", "channel id (required)")
	cf.BoolVar(&newTicket.IsAnonymous, "anonymous", false, "submitted anonymously")
	cf.StringVar(&newTicket.SubmitterName, "name", "", "submitter name")
	cf.StringVar(&newTicket.SubmitterPhone, "phone", "", "submitter phone")
	cf.StringVar(&newTicket.SubmitterEmail, "email", "", "submitter email")
	cf.StringVar(&newTicket.SubmitterLocation, "location", "", "submitter location")
	cf.StringVar(&newTicket.ExternalId, "external-id", "", "id in the source system")
	cf.StringSliceVar(&newTicket.Tags, "tags", nil, "comma-separated tags")
	cf.StringSliceVar(&attachPaths, "attach", nil, "file to attach (repeatable)")

	uf := ticketsUpdateCmd.Flags()
	uf.StringVar(&patchTitle, "title", "", "new title")
	uf.StringVar(&patchContent, "content", "", "new description")
	uf.StringVar(&patchStatus, "status", "", "status id")
	uf.StringVar(&patchPriority, "priority", "", "priority id")
	uf.StringVar(&patchCategory, "category", "", "category id")
	uf.StringVar(&patchChannel, "channel", "", "channel id")
	uf.StringSliceVar(&patchTags, "tags", nil, "replace the tags")

	ticketsDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
	ticketsEscalateCmd.Flags().StringVar(&escalateTo, "to", "", "who the ticket is escalated to")

	ticketsRespondCmd.Flags().StringVarP(&respondBody, "message", "m", "", "response text")
	ticketsRespondCmd.Flags().BoolVar(&respondNote, "internal", false, "internal note, not sent to the submitter")
	cobra.CheckErr(ticketsRespondCmd.MarkFlagRequired("message"))

	ff := ticketsFeedbackCmd.Flags()
	ff.IntVar(&feedback.SatisfactionRating, "rating", 0, "overall satisfaction, 1-5 (required)")
	ff.IntVar(&feedback.ResponseTimeRating, "response-rating", 0, "response time, 1-5")
	ff.IntVar(&feedback.QualityRating, "quality", 0, "quality, 1-5")
	ff.StringVar(&feedback.Comments, "comments", "", "free-text comments")
	ff.BoolVar(&recommend, "recommend", false, "would recommend the service")

	ticketsCmd.AddCommand(
		ticketsListCmd, ticketsGetCmd, ticketsCreateCmd, ticketsUpdateCmd, ticketsDeleteCmd,
		ticketsAssignCmd, ticketsCloseCmd, ticketsReopenCmd, ticketsEscalateCmd, ticketsStatsCmd,
		ticketsResponsesCmd, ticketsRespondCmd, ticketsLogsCmd, ticketsFeedbackCmd,
		ticketsImportCmd, ticketsTemplateCmd,
	)
	rootCmd.AddCommand(ticketsCmd)
}
