// Demo program: builds a throwaway corpus from a handful of reports and walks
// through analysis, prediction and comparison fully offline.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/tactimerge/internal/ingest"
	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/pipeline"
)

var reports = []struct{ team, date, venue, score, body string }{
	{"Barcelona", "2009-05-27", "away", "2-0", "Barcelona dominated possession (64%) in a 4-3-3, pressing high after every loss of the ball."},
	{"Barcelona", "2010-11-29", "home", "5-0", "Short passing and relentless pressing. Barcelona had 67% possession and 19 shots."},
	{"Barcelona", "2011-05-28", "away", "3-1", "Barcelona built patiently from the back and pressed high, 68% possession."},
	{"Inter", "2010-04-20", "home", "3-1", "Inter sat deep in a 4-2-3-1 and broke quickly on the counter."},
	{"Inter", "2010-04-28", "away", "0-1", "Inter defended deep with ten men and 24% possession."},
	{"Inter", "2011-03-15", "home", "2-3", "Inter struggled to create chances against a compact block."},
}

func main() {
	fmt.Println("=== TactiMerge Demo ===")
	fmt.Println()

	dir, err := os.MkdirTemp("", "tactimerge-demo")
	if err != nil {
		fail(err)
	}
	defer os.RemoveAll(dir)

	cfg := model.DefaultConfig()
	cfg.Corpus.Path = filepath.Join(dir, "corpus.db")
	cfg.Cache.Enabled = false

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := pipeline.New(ctx, cfg, nil)
	if err != nil {
		fail(err)
	}
	defer p.Close()

	docs := make([]ingest.Document, 0, len(reports))
	for _, r := range reports {
		docs = append(docs, ingest.Document{
			Document: ingest.RawDocument{Source: "demo", Body: r.body},
			Tags:     ingest.Tags{"team": r.team, "date": r.date, "venue": r.venue, "score": r.score},
			Origin:   "demo",
		})
	}
	summary := p.IngestBatch(ctx, docs, ingest.Options{})
	fmt.Printf("Ingested %d reports (%d failed)\n\n", summary.Created, summary.Failed)

	md, err := pipeline.NewRenderer(pipeline.FormatMarkdown)
	if err != nil {
		fail(err)
	}

	q, err := p.Query("Barcelona", "2008-2012", "", "pressing and possession")
	if err != nil {
		fail(err)
	}
	analysis, err := p.Analyze(ctx, q, 0)
	if err != nil {
		fail(err)
	}
	section("Analysis")
	_ = md.Render(os.Stdout, analysis)

	a, b := model.Query{Team: "Barcelona"}, model.Query{Team: "Inter"}
	prediction, err := p.Predict(ctx, a, b, 0)
	if err != nil {
		fail(err)
	}
	section("Prediction")
	_ = md.Render(os.Stdout, prediction)

	comparison, err := p.Compare(ctx, a, b, 0, "")
	if err != nil {
		fail(err)
	}
	section("Comparison")
	_ = md.Render(os.Stdout, comparison)
}

func section(name string) {
	fmt.Println()
	fmt.Println(name)
	fmt.Println(strings.Repeat("-", 60))
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "demo: %v\n", err)
	os.Exit(1)
}
