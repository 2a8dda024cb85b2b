// Package corpus persists match reports together with their embeddings and
// answers filtered nearest-neighbour queries over them.
package corpus

import (
	"context"
	"fmt"
	"sort"

	"github.com/ppiankov/tactimerge/internal/model"
)

// MetricCosine is the only distance metric a store is created with.
const MetricCosine = "cosine"

// Store is the Corpus Store contract. Implementations are safe for concurrent use.
type Store interface {
	// Put writes a new report and its embedding as one durable unit.
	// It fails with ErrDimensionMismatch or ErrDuplicateID.
	Put(ctx context.Context, report model.MatchReport, rec model.EmbeddingRecord) error

	// Upsert writes or replaces a report and its embedding as one durable unit.
	Upsert(ctx context.Context, report model.MatchReport, rec model.EmbeddingRecord) error

	// Get returns a report or ErrNotFound.
	Get(ctx context.Context, id string) (model.MatchReport, error)

	// Query returns up to limit reports nearest to vector among those matching filters.
	Query(ctx context.Context, vector []float32, filters Filters, limit int) ([]Hit, error)

	// Count returns the number of stored reports.
	Count(ctx context.Context) (int, error)

	// Meta describes the embedding space of the store.
	Meta() Meta

	Close() error
}

// Filters restrict candidates before any distance ranking. Empty fields match all.
// A report passes the year bounds when its span of years overlaps them.
type Filters struct {
	Team        string
	Competition string
	FromYear    int
	ToYear      int
}

// Match reports whether r passes the filters.
func (f Filters) Match(r model.MatchReport) bool {
	if f.Team != "" && r.Team != f.Team {
		return false
	}
	if f.Competition != "" && r.Competition != f.Competition {
		return false
	}
	first, last := r.Years()
	if f.FromYear != 0 && last < f.FromYear {
		return false
	}
	return f.ToYear == 0 || first <= f.ToYear
}

// Hit is a scored query result.
type Hit struct {
	Report model.MatchReport
	Score  float64
}

// Meta is the persisted identity of a store's embedding space.
type Meta struct {
	Dimensions int    `json:"dimensions"`
	Metric     string `json:"metric"`
	Embedder   string `json:"embedder"`
}

// Check verifies that want describes the same embedding space as m.
func (m Meta) Check(want Meta) error {
	if m.Dimensions != want.Dimensions || m.Metric != want.Metric || m.Embedder != want.Embedder {
		return fmt.Errorf("%w: store has %s/%d/%s, configured %s/%d/%s", model.ErrIncompatibleCorpus,
			m.Embedder, m.Dimensions, m.Metric, want.Embedder, want.Dimensions, want.Metric)
	}
	return nil
}

// SortHits orders hits by score desc, then more recent era, then lower id.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Report.EraTo != b.Report.EraTo {
			return a.Report.EraTo > b.Report.EraTo
		}
		if a.Report.EraFrom != b.Report.EraFrom {
			return a.Report.EraFrom > b.Report.EraFrom
		}
		return a.Report.ID < b.Report.ID
	})
}

func validate(meta Meta, report model.MatchReport, rec model.EmbeddingRecord) error {
	if report.ID == "" {
		return fmt.Errorf("report id is empty")
	}
	if rec.ReportID != report.ID {
		return fmt.Errorf("embedding indexes %q, report is %q", rec.ReportID, report.ID)
	}
	if len(rec.Vector) != meta.Dimensions {
		return fmt.Errorf("%w: got %d, store has %d", model.ErrDimensionMismatch, len(rec.Vector), meta.Dimensions)
	}
	return nil
}

// Open builds the configured backend for the given embedding space.
func Open(ctx context.Context, cfg model.CorpusConfig, meta Meta) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(ctx, cfg.Path, meta)
	case "qdrant":
		return OpenQdrant(ctx, cfg.QdrantAddr, cfg.Collection, meta)
	}
	return nil, fmt.Errorf("unknown corpus driver %q (supported: sqlite, qdrant)", cfg.Driver)
}
