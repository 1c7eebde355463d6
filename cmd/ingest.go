package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/askcorpus/askcorpus/internal/rag"
)

const lockRetryInterval = 500 * time.Millisecond

func newIngestCmd() *cobra.Command {
	var (
		sourceType string
		recursive  bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <path-or-url>...",
		Short: "Ingest PDFs or web pages into the corpus",
		Long: `Ingest extracts, chunks, embeds, and indexes the given sources.
Re-ingesting a source replaces its previous chunks atomically.

Source type is inferred: http(s) URLs are web pages, .pdf files are PDFs.
Use --type to force one. Directories require --recursive and collect PDFs.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args, sourceType, recursive)
		},
	}

	cmd.Flags().StringVar(&sourceType, "type", "", `force source type: "pdf" or "web"`)
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into directories collecting PDFs")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string, sourceType string, recursive bool) error {
	ctx := cmd.Context()

	refs, err := resolveRefs(args, sourceType, recursive)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return fmt.Errorf("no ingestable sources found")
	}

	a, logger, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	unlock, err := acquireIngestLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	logger.Info("ingesting", "sources", len(refs))
	report, err := a.Service.IngestAll(ctx, refs)
	if err != nil {
		return err
	}

	for _, r := range report.Ingested {
		fmt.Fprintf(cmd.OutOrStdout(), "ingested  %s  (%d chunks)\n", r.Locator, r.Chunks)
	}
	for _, f := range report.Failures {
		fmt.Fprintf(cmd.OutOrStdout(), "skipped   %s  (%s)\n", f.Locator, f.Reason)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d ingested, %d skipped\n", len(report.Ingested), len(report.Failures))

	if len(report.Ingested) == 0 {
		return fmt.Errorf("all %d sources failed", len(report.Failures))
	}
	return nil
}

// resolveRefs expands arguments into document references, walking
// directories when recursive is set.
func resolveRefs(args []string, forcedType string, recursive bool) ([]rag.DocumentRef, error) {
	if forcedType != "" && forcedType != "pdf" && forcedType != "web" {
		return nil, fmt.Errorf("unknown --type %q, want pdf or web", forcedType)
	}

	var refs []rag.DocumentRef
	for _, arg := range args {
		if isURL(arg) {
			if forcedType == "pdf" {
				return nil, fmt.Errorf("%s: URLs cannot be ingested as pdf", arg)
			}
			refs = append(refs, rag.DocumentRef{Locator: arg, SourceType: "web"})
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}

		if info.IsDir() {
			if !recursive {
				return nil, fmt.Errorf("%s is a directory, use --recursive", arg)
			}
			dirRefs, err := collectPDFs(arg)
			if err != nil {
				return nil, err
			}
			refs = append(refs, dirRefs...)
			continue
		}

		st := forcedType
		if st == "" {
			if strings.EqualFold(filepath.Ext(arg), ".pdf") {
				st = "pdf"
			} else {
				return nil, fmt.Errorf("%s: cannot infer source type, use --type", arg)
			}
		}
		refs = append(refs, rag.DocumentRef{Locator: arg, SourceType: st})
	}
	return refs, nil
}

func collectPDFs(root string) ([]rag.DocumentRef, error) {
	var refs []rag.DocumentRef
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
			refs = append(refs, rag.DocumentRef{Locator: path, SourceType: "pdf"})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return refs, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// acquireIngestLock serializes ingestion across processes so two runs
// cannot interleave ReplaceDocument calls for the same corpus.
func acquireIngestLock(ctx context.Context) (func(), error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("finding home directory: %w", err)
	}
	lockPath := filepath.Join(home, ".askcorpus", "ingest.lock")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	lock := flock.New(lockPath)
	for {
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquiring ingest lock: %w", err)
		}
		if ok {
			return func() { _ = lock.Unlock() }, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for ingest lock: %w", ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}
}
