package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/tactimerge/internal/api"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes the corpus over HTTP:

  GET  /          welcome message
  GET  /health    corpus size and active backends
  POST /analyze   era-segmented tactical summary with citations
  POST /predict   win/draw/loss probabilities and expected goals
  POST /compare   venue-split team strengths
  POST /ingest    add one tagged match report
  GET  /metrics   Prometheus metrics

The server shuts down gracefully on SIGINT or SIGTERM.

Example:
  tactimerge serve --addr :8080
  OPENAI_API_KEY=sk-... tactimerge serve --llm-provider openai`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, cfg, logger, err := openPipeline(ctx, "json")
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("close corpus", "error", err)
		}
	}()

	return api.New(p, cfg.Server, logger).Run(ctx)
}
