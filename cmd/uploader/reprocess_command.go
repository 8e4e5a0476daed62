package main

import (
	"github.com/spf13/cobra"

	"github.com/kirillkom/docflow/internal/infrastructure/ledger/sqlite"
)

func newReprocessCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "reprocess DOCUMENT_ID...",
		Short: "Run processing again for documents already on the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client(cfg.Timeout())
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd)

			return ctx.withLedger(func(ledger *sqlite.Ledger) error {
				session := newUploadSession(cmd, client, ledger, logger, sessionOptions{
					concurrency: cfg.Concurrency,
					jsonOutput:  jsonOutput,
					metricsFile: cfg.MetricsFile,
				})
				for _, id := range args {
					if _, err := session.ctrl.EnqueueDocument(id, id); err != nil {
						return err
					}
				}
				snap, runErr := session.run()
				return session.finish(snap, runErr)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the final queue state as JSON")
	return cmd
}
