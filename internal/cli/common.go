package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/pipeline"
)

var (
	outFormat string
	outPath   string
)

func init() {
	// Component selection shared by every command
	rootCmd.PersistentFlags().String("corpus", "", "corpus SQLite path (overrides corpus.path)")
	rootCmd.PersistentFlags().String("llm-provider", "", "summarizer backend (stats, openai, anthropic, ollama)")
	rootCmd.PersistentFlags().String("llm-model", "", "summarizer model name")
	rootCmd.PersistentFlags().String("embedding-provider", "", "embedding backend (hashing, openai, ollama)")

	for flag, key := range map[string]string{
		"corpus":             "corpus.path",
		"llm-provider":       "llm.provider",
		"llm-model":          "llm.model",
		"embedding-provider": "embedding.provider",
	} {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}
}

// addOutputFlags registers --format and --out on a query command.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&outFormat, "format", "json", "output format (json, markdown)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write output to a file instead of stdout")
}

// openPipeline resolves configuration, configures logging and builds the
// pipeline. The caller closes it.
func openPipeline(ctx context.Context, logFormat string) (*pipeline.Pipeline, model.Config, *slog.Logger, error) {
	cfg, err := LoadConfig(viper.GetViper())
	if err != nil {
		return nil, cfg, nil, err
	}
	if logFormat == "" {
		logFormat = cfg.Log.Format
	}
	logger := newLogger(cfg.Log.Level, logFormat)

	p, err := pipeline.New(ctx, cfg, logger)
	if err != nil {
		return nil, cfg, logger, err
	}
	return p, cfg, logger, nil
}

// runOneShot runs fn against a pipeline under the global --timeout.
func runOneShot(fn func(ctx context.Context, p *pipeline.Pipeline) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()

	p, _, logger, err := openPipeline(ctx, "text")
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("close corpus", "error", err)
		}
	}()
	return fn(ctx, p)
}

// render writes v in the selected format to --out or stdout.
func render(cmd *cobra.Command, v any) error {
	r, err := pipeline.NewRenderer(outFormat)
	if err != nil {
		return err
	}
	if outPath == "" {
		return r.Render(cmd.OutOrStdout(), v)
	}
	if err := r.RenderFile(v, outPath); err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", outPath)
	}
	return nil
}
