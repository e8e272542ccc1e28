package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/loader"
	"github.com/custodia-labs/mira/internal/logger"
)

var (
	ingestWatch      bool
	ingestExtensions []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Index documents into the knowledge base",
	Long: `Chunks, embeds and indexes text documents. Directories are walked
recursively for .txt and .md files; metadata such as region, country or
regulation category is derived from the path.

Unchanged documents are skipped, so re-running ingest is cheap. A failing
document is reported and does not stop the rest of the batch.

With --watch, a single directory is monitored and changed files are
re-indexed until interrupted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep watching the directory for changes")
	ingestCmd.Flags().StringSliceVar(&ingestExtensions, "ext", loader.DefaultExtensions, "file extensions to load")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return notConfigured("ingest")
	}
	if ingestWatch && len(args) != 1 {
		return errors.New("--watch requires exactly one directory")
	}

	ctx := cmd.Context()
	var docs []domain.Document
	for _, path := range args {
		loaded, err := loadPath(ctx, path)
		if err != nil {
			return err
		}
		docs = append(docs, loaded...)
	}

	cmd.Printf("Ingesting %d documents...\n", len(docs))
	report, err := ingestService.Ingest(ctx, docs)
	if report != nil {
		printIngestReport(cmd, report)
	}
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if ingestWatch {
		return watchDirectory(ctx, cmd, args[0])
	}
	return nil
}

// loadPath loads a directory tree or a single file.
func loadPath(ctx context.Context, path string) ([]domain.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if info.IsDir() {
		return loader.New(path, loader.WithExtensions(ingestExtensions...)).Load(ctx)
	}

	doc, err := loader.New(filepath.Dir(path)).Document(path)
	if err != nil {
		return nil, err
	}
	return []domain.Document{doc}, nil
}

func watchDirectory(ctx context.Context, cmd *cobra.Command, dir string) error {
	l := loader.New(dir, loader.WithExtensions(ingestExtensions...))
	defer l.Close()

	changes, err := l.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	cmd.Printf("Watching %s for changes (Ctrl+C to stop)...\n", dir)

	for change := range changes {
		switch change.Type {
		case loader.ChangeUpserted:
			report, err := ingestService.Ingest(ctx, []domain.Document{change.Document})
			if err != nil {
				logger.Error(err, "re-indexing %s", change.Document.ID)
				continue
			}
			if report.Skipped == 0 && report.Accepted == 1 {
				cmd.Printf("Indexed %s (%d chunks)\n", change.Document.ID, report.ChunksWritten)
			}
			for _, e := range report.Errors {
				cmd.Printf("Failed %s: %s: %s\n", e.DocumentID, e.Kind, e.Message)
			}

		case loader.ChangeDeleted:
			report, err := ingestService.Delete(ctx, []string{change.Document.ID})
			if err != nil {
				logger.Error(err, "removing %s", change.Document.ID)
				continue
			}
			if report.Documents > 0 {
				cmd.Printf("Removed %s (%d chunks)\n", change.Document.ID, report.Chunks)
			}
		}
	}

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printIngestReport(cmd *cobra.Command, report *domain.IngestionReport) {
	st := stylesFor(cmd.OutOrStdout())

	cmd.Println(st.Success(fmt.Sprintf("Accepted: %d", report.Accepted)) +
		fmt.Sprintf("  (unchanged: %d)", report.Skipped))
	if report.Rejected > 0 {
		cmd.Println(st.Error(fmt.Sprintf("Rejected: %d", report.Rejected)))
	}
	cmd.Printf("Chunks written: %d, removed: %d\n", report.ChunksWritten, report.ChunksDeleted)

	for _, e := range report.Errors {
		cmd.Printf("  %s %s: %s\n", st.Error(string(e.Kind)), e.DocumentID, e.Message)
	}
}
