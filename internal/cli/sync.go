package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/calendar2youtube/internal/models"
	"github.com/noah-isme/calendar2youtube/pkg/storage"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Output string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass",
		Long: `Run one synchronization pass: mirror streaming events into the registration
calendar, then create, recreate or delete the YouTube broadcast so it matches the
next upcoming streaming event.

Exit codes:
  0  the pass succeeded
  1  the pass finished with failures (see warnings)
  2  configuration error or the pass could not start`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), rootOpts, false, cmd.OutOrStdout(), "")
		},
	}
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a sync pass would change without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), rootOpts, true, cmd.OutOrStdout(), opts.Output)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "out", "o", "", "also write the plan to this file")

	return cmd
}

func runOnce(ctx context.Context, opts *RootOptions, dryRun bool, out io.Writer, outFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.validate(); err != nil {
		return err
	}
	if _, err := a.openHistory(ctx); err != nil {
		return err
	}
	svc, err := a.syncService(ctx)
	if err != nil {
		return err
	}

	trigger := models.SyncTriggerCLI
	report, runErr := svc.Run(ctx, trigger, dryRun)
	if report != nil {
		if err := emitReport(out, opts.Format, report, outFile); err != nil {
			a.logger.Warn("failed to write report", zap.Error(err))
		}
	}
	if runErr != nil {
		return WrapExitError(ExitCommandError, "sync run failed", runErr)
	}
	if report.Run.Status == models.SyncStatusPartial {
		return NewExitError(ExitFailure, "sync run finished with failures")
	}
	return nil
}

func emitReport(out io.Writer, format string, report *models.RunReport, outFile string) error {
	var buf bytes.Buffer
	if err := writeReport(&buf, format, report); err != nil {
		return err
	}
	if _, err := out.Write(buf.Bytes()); err != nil {
		return err
	}
	if outFile == "" {
		return nil
	}
	files, err := storage.NewLocalStorage(filepath.Dir(outFile))
	if err != nil {
		return err
	}
	path, err := files.Save(filepath.Base(outFile), buf.Bytes(), 0o644)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nplan written to %s\n", path)
	return nil
}
