package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docflow/internal/infrastructure/ledger/sqlite"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var (
		concurrency int
		timeout     time.Duration
		retryFailed bool
		jsonOutput  bool
		noLedger    bool
	)

	cmd := &cobra.Command{
		Use:   "upload PATH...",
		Short: "Upload files or directories for processing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("concurrency") {
				concurrency = cfg.Concurrency
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.Timeout()
			}

			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return errors.New("no files found")
			}
			client, err := ctx.client(timeout)
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd)
			opts := sessionOptions{
				concurrency:     concurrency,
				maxFileBytes:    cfg.MaxFileBytes,
				reuploadOnRetry: cfg.ReuploadOnRetry,
				retryFailed:     retryFailed,
				jsonOutput:      jsonOutput,
				metricsFile:     cfg.MetricsFile,
			}

			run := func(ledger *sqlite.Ledger) error {
				session := newUploadSession(cmd, client, ledger, logger, opts)
				admission, err := session.ctrl.Enqueue(files...)
				if err != nil {
					return err
				}
				if skipped := admission.Skipped(); skipped > 0 && !jsonOutput {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d file(s):\n", skipped)
					for _, rej := range admission.Rejected {
						fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", rej.Error())
					}
				}
				if len(admission.IDs) == 0 {
					return errors.New("no valid files to upload")
				}
				snap, runErr := session.run()
				return session.finish(snap, runErr)
			}
			if noLedger {
				return run(nil)
			}
			return ctx.withLedger(run)
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 3, "Maximum simultaneous uploads")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Per-file request timeout (0 disables)")
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "Reprocess files whose server-side processing failed, once")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the final queue state as JSON")
	cmd.Flags().BoolVar(&noLedger, "no-ledger", false, "Do not record uploads in the local history")

	return cmd
}
