package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askcorpus/askcorpus/internal/rag"
)

func newAskCmd() *cobra.Command {
	var (
		topK      int
		threshold float64
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the ingested corpus",
		Long: `Ask embeds the question, retrieves the closest chunks, and generates
an answer grounded in them. When retrieval confidence is below the fallback
threshold the answer is exactly "I Don't know" with no sources.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), topK, threshold, asJSON)
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "override how many chunks to retrieve")
	cmd.Flags().Float64Var(&threshold, "threshold", -1, "override the fallback threshold for this question")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the answer as JSON")
	return cmd
}

func runAsk(cmd *cobra.Command, question string, topK int, threshold float64, asJSON bool) error {
	ctx := cmd.Context()

	a, _, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var opts []rag.QueryOption
	if topK > 0 {
		opts = append(opts, rag.WithTopK(topK))
	}
	if threshold >= 0 {
		opts = append(opts, rag.WithThreshold(threshold))
	}

	answer, err := a.Service.Query(ctx, question, opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	fmt.Fprintln(out, answer.Answer)
	fmt.Fprintf(out, "\nconfidence: %.2f\n", answer.Confidence)
	if len(answer.Sources) > 0 {
		fmt.Fprintln(out, "sources:")
		for _, s := range answer.Sources {
			if s.Title != "" {
				fmt.Fprintf(out, "  - %s (%s, %.2f)\n", s.Title, s.Locator, s.Similarity)
			} else {
				fmt.Fprintf(out, "  - %s (%.2f)\n", s.Locator, s.Similarity)
			}
		}
	}
	return nil
}
