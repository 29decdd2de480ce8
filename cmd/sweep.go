// -- cmd/sweep.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JuliusBairaktaris/photosweep/internal/browser"
	"github.com/JuliusBairaktaris/photosweep/internal/config"
	"github.com/JuliusBairaktaris/photosweep/internal/observability"
	"github.com/JuliusBairaktaris/photosweep/internal/reporting"
	"github.com/JuliusBairaktaris/photosweep/internal/sweep"
)

// flagBindings maps sweep command flags to their viper keys so CLI flags
// override config file and environment values with the right precedence.
var flagBindings = map[string]string{
	"url":         "sweep.target_url",
	"stall-limit": "sweep.stall_limit",
	"max-batches": "sweep.max_batches",
	"dry-run":     "sweep.dry_run",
	"verify":      "sweep.verify_removal",
	"headless":    "browser.headless",
	"remote":      "browser.remote_url",
	"profile":     "browser.user_data_dir",
	"exec-path":   "browser.exec_path",
	"output":      "report.output",
	"format":      "report.format",
}

// newSweepCmd creates and configures the `sweep` command.
func newSweepCmd() *cobra.Command {
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Runs the batch deletion loop against the configured photo library page",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for flag, key := range flagBindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Flags are bound by now, so this unmarshal sees the final
			// flag > env > file > default precedence.
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			manager := browser.NewManager(cfg.Browser, logger)
			browserCtx, err := manager.Start(ctx)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer manager.Shutdown()

			if err := manager.Navigate(cfg.Sweep.TargetURL); err != nil {
				return err
			}

			sweeper := sweep.New(cfg.Sweep, sweep.NewCDPExecutor(), logger)
			rep, runErr := sweeper.Run(browserCtx)

			// The report carries the accumulated total even on a halt.
			if cfg.Report.Output != "" {
				if err := writeReport(cfg.Report, rep, logger); err != nil {
					logger.Error("Failed to write report", zap.Error(err))
				}
			}

			printSummary(rep)

			if runErr != nil {
				if errors.Is(runErr, context.Canceled) {
					return fmt.Errorf("sweep aborted by user signal (deleted %d items)", rep.Deleted)
				}
				return runErr
			}
			return nil
		},
	}

	sweepCmd.Flags().StringP("url", "u", "", "Photo library page to sweep. (Overrides config/env)")
	sweepCmd.Flags().Int("stall-limit", 0, "Consecutive no-progress batches tolerated before halting. (Overrides config/env)")
	sweepCmd.Flags().IntP("max-batches", "n", 0, "Stop after this many batches; 0 means unlimited. (Overrides config/env)")
	sweepCmd.Flags().Bool("dry-run", false, "Count what the first batch would select without clicking anything.")
	sweepCmd.Flags().Bool("verify", true, "Re-poll after each deletion and count only observed removals.")
	sweepCmd.Flags().Bool("headless", false, "Run the browser headless (requires an authenticated --profile).")
	sweepCmd.Flags().String("remote", "", "DevTools websocket URL of a running Chrome to attach to.")
	sweepCmd.Flags().String("profile", "", "Chrome user data dir to reuse between runs (keeps you signed in).")
	sweepCmd.Flags().String("exec-path", "", "Path to the Chrome/Chromium binary.")
	sweepCmd.Flags().StringP("output", "o", "", "Report file path ('-' for stdout). If unset, no report is written.")
	sweepCmd.Flags().StringP("format", "f", "json", "Report format ('json' or 'text').")

	return sweepCmd
}

// writeReport serializes the run report to the configured output.
func writeReport(cfg config.ReportConfig, rep *sweep.Report, logger *zap.Logger) error {
	reporter, err := reporting.New(cfg.Format, cfg.Output, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Error("Failed to close reporter", zap.Error(err))
		}
	}()
	return reporter.Write(rep)
}

// printSummary gives the operator a final console line regardless of log
// level or report configuration.
func printSummary(rep *sweep.Report) {
	switch rep.State {
	case sweep.StateDone:
		if rep.Policy == "dry-run" {
			fmt.Printf("\nDry run complete. %d items would be selected in the first batch.\n", rep.Candidates)
			return
		}
		fmt.Printf("\nSweep complete. Deleted %d items across %d batches in %s.\n",
			rep.Deleted, rep.Batches, rep.Duration.Round(100*time.Millisecond))
	case sweep.StateHalted:
		fmt.Printf("\nSweep halted after deleting %d items across %d batches: %s\n", rep.Deleted, rep.Batches, rep.Error)
		fmt.Println("Reload the page and re-run to continue.")
	}
}
