// Package embed provides the embedding functions shared by ingestion and
// retrieval. A deployment configures exactly one; its ID is persisted by the
// corpus so a different function cannot be pointed at an existing store.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ppiankov/tactimerge/internal/cache"
	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/worker"
)

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	// ID identifies the embedding space, e.g. "openai/text-embedding-3-small/1536".
	ID() string
}

// Options carries the shared infrastructure wrapped around remote embedders.
type Options struct {
	Cache   cache.Cache
	Limiter *worker.Limiter
	Retry   worker.RetryOpts
	Logger  *slog.Logger
}

// New builds the configured embedder. Remote backends are wrapped with rate
// limiting, retries and, when a cache is given, caching.
func New(cfg model.EmbeddingConfig, opts Options) (Embedder, error) {
	var base Embedder
	switch strings.ToLower(cfg.Provider) {
	case "", "hashing":
		base = NewHashing(cfg.Dimensions)
	case "openai":
		e, err := NewOpenAI(cfg)
		if err != nil {
			return nil, err
		}
		base = e
	case "ollama":
		e, err := NewOllama(cfg)
		if err != nil {
			return nil, err
		}
		base = e
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: hashing, openai, ollama)", cfg.Provider)
	}

	if _, local := base.(*Hashing); local {
		return base, nil
	}

	var e Embedder = NewResilient(base, opts.Limiter, opts.Retry, opts.Logger)
	if opts.Cache != nil {
		e = NewCached(e, opts.Cache, 0)
	}
	return e, nil
}

func checkDims(e Embedder, v []float32) error {
	if len(v) != e.Dimensions() {
		return fmt.Errorf("%w: %s returned %d values, configured %d", model.ErrDimensionMismatch, e.ID(), len(v), e.Dimensions())
	}
	return nil
}
