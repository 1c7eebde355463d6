// Package cmd implements the askcorpus CLI.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/askcorpus/askcorpus/internal/app"
	"github.com/askcorpus/askcorpus/internal/config"
	"github.com/askcorpus/askcorpus/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "askcorpus",
	Short: "Question answering over a support document corpus",
	Long: `askcorpus ingests support documents (PDFs and web pages) into a
vector index and answers questions grounded in that corpus. Questions the
corpus cannot answer confidently get an explicit "I Don't know" instead of
a guess.`,
	SilenceUsage: true,
}

// Execute runs the CLI. SIGINT/SIGTERM cancel the command context, so
// long-running pipelines (crawl, batch ingest) abort instead of finishing
// in the background.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newCrawlCmd())
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newDocumentsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// newLogger builds the CLI logger honoring --verbose.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// setupApp loads configuration and assembles the application. Callers own
// the returned App and must Close it.
func setupApp(ctx context.Context) (*app.App, log.Logger, error) {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, logger, nil
}
