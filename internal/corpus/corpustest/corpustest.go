// Package corpustest provides temporary corpus stores for tests.
package corpustest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ppiankov/tactimerge/internal/corpus"
	"github.com/ppiankov/tactimerge/internal/embed"
	"github.com/ppiankov/tactimerge/internal/model"
)

// Dimensions of the hashing embedder used by Open.
const Dimensions = 256

// Open creates a SQLite store in a temp dir, paired with the offline
// hashing embedder. The store is closed when the test ends.
func Open(t testing.TB) (*corpus.SQLiteStore, *embed.Hashing) {
	t.Helper()
	emb := embed.NewHashing(Dimensions)
	meta := corpus.Meta{Dimensions: emb.Dimensions(), Metric: corpus.MetricCosine, Embedder: emb.ID()}
	store, err := corpus.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "corpus.db"), meta)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, emb
}

// Add embeds the report's title and narrative and stores it.
func Add(t testing.TB, store corpus.Store, emb embed.Embedder, r model.MatchReport) {
	t.Helper()
	text := r.Narrative
	if r.Title != "" {
		text = r.Title + ". " + r.Narrative
	}
	v, err := emb.Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("embed %s: %v", r.ID, err)
	}
	if err := store.Put(context.Background(), r, model.EmbeddingRecord{ReportID: r.ID, Vector: v}); err != nil {
		t.Fatalf("put %s: %v", r.ID, err)
	}
}

// Report builds a report in the default era containing year.
func Report(id, team string, year int, narrative string, stats model.MatchStats) model.MatchReport {
	era, _ := model.DefaultEras().ForYear(year)
	return model.MatchReport{
		ID:        id,
		Team:      team,
		Era:       era.Label,
		EraFrom:   era.From,
		EraTo:     era.To,
		Year:      year,
		Narrative: narrative,
		Stats:     stats,
	}
}
