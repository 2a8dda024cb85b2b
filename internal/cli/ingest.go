package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/tactimerge/internal/ingest"
	"github.com/ppiankov/tactimerge/internal/pipeline"
)

var ingestUpdate bool

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <file|dir>...",
	Short: "Ingest tagged match reports from JSON or YAML files",
	Long: `Ingest loads match documents and stores them in the corpus:
- Each file holds one document or a list of {document, tags}
- Directories are walked for *.json, *.yaml and *.yml files
- Documents are embedded and stored concurrently
- Re-ingesting identical content is a no-op unless --update is given

Example:
  tactimerge ingest reports/
  tactimerge ingest clasico.yaml --update
  tactimerge ingest reports/ --workers 8 --timeout 30m`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolVar(&ingestUpdate, "update", false, "replace reports that already exist")
	ingestCmd.Flags().Int("workers", 0, "number of concurrent workers (overrides concurrency.ingest_workers)")
	_ = viper.BindPFlag("concurrency.ingest_workers", ingestCmd.Flags().Lookup("workers"))
}

func runIngest(cmd *cobra.Command, args []string) error {
	docs, err := ingest.LoadDocuments(args...)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents found in %v", args)
	}

	return runOneShot(func(ctx context.Context, p *pipeline.Pipeline) error {
		cfg := p.Config()

		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
		fmt.Fprintf(os.Stderr, "  TactiMerge Ingest\n")
		fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "  Documents:  %d\n", len(docs))
		fmt.Fprintf(os.Stderr, "  Workers:    %d\n", cfg.Concurrency.IngestWorkers)
		fmt.Fprintf(os.Stderr, "  Corpus:     %s\n", corpusLocation(cfg.Corpus.Driver, cfg.Corpus.Path, cfg.Corpus.QdrantAddr))
		fmt.Fprintf(os.Stderr, "  Embedder:   %s\n", cfg.Embedding.Provider)
		fmt.Fprintf(os.Stderr, "\n")

		summary := p.IngestBatch(ctx, docs, ingest.Options{Update: ingestUpdate})

		for _, r := range summary.Results {
			switch {
			case r.Err != nil:
				fmt.Fprintf(os.Stderr, "✗ %s [%d]: %v\n", r.Origin, r.Index, r.Err)
			case r.Result.Created:
				fmt.Fprintf(os.Stderr, "✓ %s %s (%s, %s)\n", r.Result.ID, r.Result.Report.Team, r.Result.Report.Era, r.Origin)
			case r.Result.Updated:
				fmt.Fprintf(os.Stderr, "↻ %s %s updated\n", r.Result.ID, r.Result.Report.Team)
			case verbose:
				fmt.Fprintf(os.Stderr, "= %s %s already present\n", r.Result.ID, r.Result.Report.Team)
			}
		}

		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "  Created:   %d\n", summary.Created)
		fmt.Fprintf(os.Stderr, "  Updated:   %d\n", summary.Updated)
		fmt.Fprintf(os.Stderr, "  Existing:  %d\n", summary.Existing)
		fmt.Fprintf(os.Stderr, "  Failed:    %d\n", summary.Failed)
		fmt.Fprintf(os.Stderr, "  Duration:  %v\n", summary.Duration.Round(time.Millisecond))
		fmt.Fprintf(os.Stderr, "\n")

		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d documents failed", summary.Failed, len(docs))
		}
		return nil
	})
}

func corpusLocation(driver, path, addr string) string {
	if driver == "qdrant" {
		return "qdrant " + addr
	}
	return "sqlite " + path
}
