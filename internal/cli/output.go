package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/noah-isme/calendar2youtube/internal/models"
)

// writeReport renders a run report in the requested format.
func writeReport(w io.Writer, format string, report *models.RunReport) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return writeReportText(w, report)
}

func writeReportText(w io.Writer, report *models.RunReport) error {
	run := report.Run
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s) %s in %s\n", run.ID, run.Trigger, run.Status, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	if run.DryRun {
		b.WriteString("dry run: nothing was changed\n")
	} else {
		fmt.Fprintf(&b, "ledger: %d created, %d updated, %d deleted, %d failed\n", run.LedgerCreated, run.LedgerUpdated, run.LedgerDeleted, run.LedgerFailed)
	}
	fmt.Fprintf(&b, "broadcast: %s (%s)\n", run.BroadcastAction, run.BroadcastResult)
	if run.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", run.Error)
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	if len(report.LedgerActions) > 0 {
		if _, err := io.WriteString(w, "\nledger actions:\n"); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tORIGINAL ID\tLEDGER ID\tTITLE\tREASON")
		for _, action := range report.LedgerActions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", action.Kind, action.OriginalID, dash(action.LedgerID), action.Title, action.Reason)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if plan := report.Broadcast; plan != nil {
		fmt.Fprintf(w, "\nbroadcast plan: %s\n", plan.Action)
		if plan.Source != nil {
			fmt.Fprintf(w, "  next event: %s %s - %s (%s)\n", plan.Source.Title, plan.Source.Start.Format(time.RFC3339), plan.Source.End.Format(time.RFC3339), plan.Privacy)
		}
		if plan.Destination != nil {
			fmt.Fprintf(w, "  current broadcast: %s %s (%s)\n", plan.Destination.ID, plan.Destination.Title, plan.Destination.Lifecycle)
		}
	}

	if len(report.Warnings) > 0 {
		fmt.Fprintln(w, "\nwarnings:")
		for _, warning := range report.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
	return nil
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
