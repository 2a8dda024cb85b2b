// Package retrieve assembles ranked evidence sets from the corpus.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/tactimerge/internal/corpus"
	"github.com/ppiankov/tactimerge/internal/embed"
	"github.com/ppiankov/tactimerge/internal/metrics"
	"github.com/ppiankov/tactimerge/internal/model"
)

// Config bounds evidence sets.
type Config struct {
	DefaultK int
	MaxK     int
}

// Retriever answers evidence queries against one store and one embedder.
type Retriever struct {
	store    corpus.Store
	embedder embed.Embedder
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a retriever. The embedder must be the one ingestion uses.
func New(store corpus.Store, embedder embed.Embedder, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Retriever {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 12
	}
	if cfg.MaxK < cfg.DefaultK {
		cfg.MaxK = cfg.DefaultK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, embedder: embedder, cfg: cfg, metrics: m, logger: logger}
}

// Intent returns the text embedded for q.
func Intent(q model.Query) string {
	if intent := strings.TrimSpace(q.Intent); intent != "" {
		return intent
	}
	return strings.ReplaceAll(q.Team, "-", " ") + " tactical style"
}

// Filters maps a query onto the store's hard pre-filter.
func Filters(q model.Query) corpus.Filters {
	return corpus.Filters{
		Team:        model.NormalizeTeam(q.Team),
		Competition: model.NormalizeTeam(q.Competition),
		FromYear:    q.Eras.From,
		ToYear:      q.Eras.To,
	}
}

// Limit resolves a requested k against the configured default and maximum.
func (r *Retriever) Limit(k int) int {
	if k <= 0 {
		return r.cfg.DefaultK
	}
	if k > r.cfg.MaxK {
		return r.cfg.MaxK
	}
	return k
}

// Retrieve returns at most k reports matching q's filters, most relevant first.
// No matching reports yields an empty set, not an error.
func (r *Retriever) Retrieve(ctx context.Context, q model.Query, k int) (model.EvidenceSet, error) {
	q.Team = model.NormalizeTeam(q.Team)
	set := model.EvidenceSet{Query: q, Items: []model.Evidence{}}
	if q.Team == "" {
		return set, fmt.Errorf("%w: team is required", model.ErrInvalidTag)
	}
	limit := r.Limit(k)
	start := time.Now()

	vector, err := r.embedder.Embed(ctx, Intent(q))
	if err != nil {
		return set, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.store.Query(ctx, vector, Filters(q), limit)
	if err != nil {
		return set, fmt.Errorf("query corpus: %w", err)
	}

	corpus.SortHits(hits)
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if seen[h.Report.ID] || len(set.Items) == limit {
			continue
		}
		seen[h.Report.ID] = true
		set.Items = append(set.Items, model.Evidence{Report: h.Report, Score: h.Score})
	}

	r.metrics.Evidence("retrieve", set.Len())
	r.logger.Debug("evidence retrieved",
		"team", q.Team, "eras", q.Eras.String(), "k", limit, "items", set.Len(), "duration", time.Since(start))
	return set, nil
}
