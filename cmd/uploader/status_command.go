package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status DOCUMENT_ID",
		Short: "Show the server-side state of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client(30 * time.Second)
			if err != nil {
				return err
			}
			doc, err := client.Document(cmd.Context(), args[0])
			if err != nil {
				if domain.IsKind(err, domain.ErrDocumentNotFound) {
					return fmt.Errorf("document %s not found", args[0])
				}
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, doc)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDocument(doc))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the document as JSON")
	return cmd
}

func renderDocument(doc *domain.Document) string {
	rows := [][]string{
		{"ID", doc.ID},
		{"File", doc.Filename},
		{"Status", string(doc.Status)},
		{"Size", strconv.FormatInt(doc.Size, 10)},
		{"Type", displayLabel(doc.DocumentType)},
		{"Confidence", strconv.FormatFloat(doc.Confidence, 'f', 2, 64)},
		{"Method", string(doc.ClassificationMethod)},
		{"Department", doc.Department},
		{"Priority", string(doc.Priority)},
		{"Sensitive", yesNo(doc.Sensitive)},
		{"Needs review", yesNo(doc.NeedsReview)},
		{"Summary", doc.Summary},
	}
	if doc.Error != "" {
		rows = append(rows, []string{"Error", doc.Error})
	}
	if !doc.CreatedAt.IsZero() {
		rows = append(rows, []string{"Uploaded", doc.CreatedAt.Local().Format(time.RFC3339)})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
