package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docflow/internal/infrastructure/ledger/sqlite"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		failedOnly bool
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show previously submitted files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(ledger *sqlite.Ledger) error {
				entries, err := ledger.List(cmd.Context(), failedOnly, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					if entries == nil {
						entries = []sqlite.Entry{}
					}
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No uploads recorded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderHistory(entries))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show failed submissions")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON")
	return cmd
}

func renderHistory(entries []sqlite.Entry) string {
	headers := []string{"Updated", "File", "Status", "Type", "Department", "Document", "Error"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.UpdatedAt.Local().Format("2006-01-02 15:04"),
			filepath.Base(e.Filename),
			e.Status,
			displayLabel(e.DocumentType),
			e.Department,
			e.DocumentID,
			truncate(e.Error, maxErrorWidth),
		})
	}
	return renderTable(headers, rows, nil)
}
