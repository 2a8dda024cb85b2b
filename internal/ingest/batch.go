package ingest

import (
	"context"
	"time"

	"github.com/ppiankov/tactimerge/internal/worker"
)

// BatchResult is the outcome of one document of a batch.
type BatchResult struct {
	Index  int
	Origin string
	Result Result
	Err    error
}

// GetError implements worker.Result.
func (r BatchResult) GetError() error { return r.Err }

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	Results  []BatchResult
	Created  int
	Existing int
	Updated  int
	Failed   int
	Duration time.Duration
}

type ingestJob struct {
	ingester *Ingester
	index    int
	doc      Document
	opts     Options
}

func (j ingestJob) Execute(ctx context.Context) worker.Result {
	res, err := j.ingester.Ingest(ctx, j.doc.Document, j.doc.Tags, j.opts)
	return BatchResult{Index: j.index, Origin: j.doc.Origin, Result: res, Err: err}
}

// Batch ingests docs on a bounded worker pool. Results keep input order;
// documents that never ran because ctx ended carry the context error.
func (i *Ingester) Batch(ctx context.Context, docs []Document, workers int, opts Options) BatchSummary {
	start := time.Now()
	results := make([]BatchResult, len(docs))
	done := make([]bool, len(docs))

	pool := worker.NewPool(ctx, workers)
	pool.Start()
	defer pool.Shutdown()

	go func() {
		defer pool.Close()
		for idx, doc := range docs {
			if err := pool.Submit(ingestJob{ingester: i, index: idx, doc: doc, opts: opts}); err != nil {
				return
			}
		}
	}()

	for r := range pool.Results() {
		br := r.(BatchResult)
		results[br.Index] = br
		done[br.Index] = true
	}

	summary := BatchSummary{Results: results}
	for idx := range results {
		if !done[idx] {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			results[idx] = BatchResult{Index: idx, Origin: docs[idx].Origin, Err: err}
		}
		r := results[idx]
		switch {
		case r.Err != nil:
			summary.Failed++
			i.logger.Warn("document failed", "index", idx, "origin", r.Origin, "error", r.Err)
		case r.Result.Updated:
			summary.Updated++
		case r.Result.Created:
			summary.Created++
		default:
			summary.Existing++
		}
	}
	summary.Duration = time.Since(start)
	i.logger.Info("batch ingest finished",
		"documents", len(docs), "created", summary.Created, "existing", summary.Existing,
		"updated", summary.Updated, "failed", summary.Failed, "duration", summary.Duration)
	return summary
}
