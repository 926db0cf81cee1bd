package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/atotto/clipboard"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	reportReq    = cfrm.NewReportRequest(cfrm.ReportPDF, time.Now())
	reportFormat string
	reportSave   bool
	reportCopy   bool
)

var reportsCmd = &cobra.Command{
	Use:               "reports",
	Short:             "Generate and download ticket reports",
	PersistentPreRunE: authedPreRun,
}

var reportsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a PDF or Excel report",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := reportReq
		req.Format = cfrm.ReportFormat(reportFormat)

		var (
			res *cfrm.ReportResult
			err error
		)
		if spinErr := withSpinner("Generating report", func() {
			res, err = client.GenerateReport(ctx, req)
		}); spinErr != nil {
			return spinErr
		}
		if err != nil {
			return err
		}

		u, err := client.ResolveDownloadUrl(res)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if output != "table" {
			if err := render(out, view{value: res}); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(out, goodGreenOutput("READY", res.Message))
			fmt.Fprintln(out, infoOutput("URL", u))
		}

		if reportCopy {
			if err := clipboard.WriteAll(u); err != nil {
				slog.Warn("copying report url", "error", err)
				fmt.Fprintln(cmd.ErrOrStderr(), warnYellowOutput("WARNING", "could not copy to clipboard"))
			} else {
				fmt.Fprintln(cmd.ErrOrStderr(), goodGreenOutput("COPIED", "download url"))
			}
		}

		if reportSave {
			return download(cmd, res.DownloadUrl, path.Base(res.DownloadUrl))
		}
		return nil
	},
}

var reportsDownloadCmd = &cobra.Command{
	Use:   "download URL [FILE]",
	Short: "Save a generated report",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest := path.Base(args[0])
		if len(args) == 2 {
			dest = args[1]
		}
		return download(cmd, args[0], dest)
	},
}

func download(cmd *cobra.Command, src, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}

	n, err := client.DownloadTo(ctx, src, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return err
	}

	fmt.Fprintln(cmd.ErrOrStderr(), goodGreenOutput("SAVED", fmt.Sprintf("%s (%s)", dest, humanize.Bytes(uint64(n)))))
	return nil
}

func init() {
	f := reportsGenerateCmd.Flags()
	f.StringVarP(&reportFormat, "format", "f", string(cfrm.ReportPDF), "pdf or excel")
	f.StringVar(&reportReq.DateFrom, "from", reportReq.DateFrom, "first day (YYYY-MM-DD)")
	f.StringVar(&reportReq.DateTo, "to", reportReq.DateTo, "last day (YYYY-MM-DD)")
	f.StringSliceVar(&reportReq.Categories, "category", reportReq.Categories, "category ids, all when empty")
	f.StringSliceVar(&reportReq.Statuses, "status", reportReq.Statuses, "status ids, all when empty")
	f.StringSliceVar(&reportReq.Priorities, "priority", reportReq.Priorities, "priority ids, all when empty")
	f.StringSliceVar(&reportReq.Channels, "channel", reportReq.Channels, "channel ids, all when empty")
	f.BoolVar(&reportReq.IncludeResponses, "responses", reportReq.IncludeResponses, "include responses")
	f.BoolVar(&reportReq.IncludeLogs, "history", reportReq.IncludeLogs, "include ticket history")
	f.BoolVar(&reportSave, "save", false, "download the report into the current directory")
	f.BoolVar(&reportCopy, "copy", false, "copy the download url to the clipboard")

	reportsCmd.AddCommand(reportsGenerateCmd, reportsDownloadCmd)
	rootCmd.AddCommand(reportsCmd)
}
