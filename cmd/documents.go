package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDocumentsCmd() *cobra.Command {
	var remove string

	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "List or delete ingested documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocuments(cmd, remove)
		},
	}

	cmd.Flags().StringVar(&remove, "delete", "", "delete the document with this locator")
	return cmd
}

func runDocuments(cmd *cobra.Command, remove string) error {
	ctx := cmd.Context()

	a, _, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if remove != "" {
		if err := a.Service.Delete(ctx, remove); err != nil {
			return fmt.Errorf("deleting %s: %w", remove, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", remove)
		return nil
	}

	docs, err := a.Service.Documents(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "corpus is empty")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOCATOR\tTYPE\tCHUNKS\tTITLE")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.Locator, d.SourceType, d.ChunkCount, d.Title)
	}
	return w.Flush()
}
