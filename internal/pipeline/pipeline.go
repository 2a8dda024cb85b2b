// Package pipeline wires the corpus, embedding, ingestion, retrieval,
// synthesis and prediction components from one configuration. The HTTP API
// and the CLI both go through it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/tactimerge/internal/cache"
	"github.com/ppiankov/tactimerge/internal/corpus"
	"github.com/ppiankov/tactimerge/internal/embed"
	"github.com/ppiankov/tactimerge/internal/ingest"
	"github.com/ppiankov/tactimerge/internal/llm"
	"github.com/ppiankov/tactimerge/internal/metrics"
	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/predict"
	"github.com/ppiankov/tactimerge/internal/retrieve"
	"github.com/ppiankov/tactimerge/internal/synth"
	"github.com/ppiankov/tactimerge/internal/worker"
)

// Pipeline owns every component of a running deployment.
type Pipeline struct {
	cfg       model.Config
	store     corpus.Store
	embedder  embed.Embedder
	ingester  *ingest.Ingester
	retriever *retrieve.Retriever
	synth     *synth.Synthesizer
	engine    *predict.Engine
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds a pipeline. One embedder instance is shared by ingestion and
// retrieval, and its identity is checked against the store.
func New(ctx context.Context, cfg model.Config, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := metrics.New()
	limiter := worker.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)
	adjuster, err := predict.AdjusterFor(cfg.Prediction.Adjuster)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var embedCache cache.Cache
	if cfg.Cache.Enabled {
		embedCache = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
	}
	embedder, err := embed.New(cfg.Embedding, embed.Options{
		Cache:   embedCache,
		Limiter: limiter,
		Retry:   worker.RetryFromConfig(cfg.Retry, cfg.Embedding.Timeout),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	meta := corpus.Meta{Dimensions: embedder.Dimensions(), Metric: corpus.MetricCosine, Embedder: embedder.ID()}
	store, err := corpus.Open(ctx, cfg.Corpus, meta)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}

	summarizer, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		logger.Warn("LLM provider unavailable, falling back to stats summaries", "provider", cfg.LLM.Provider, "error", err)
		summarizer = llm.NewStatsProvider()
	}

	retriever := retrieve.New(store, embedder, retrieve.Config{
		DefaultK: cfg.Retrieval.DefaultK,
		MaxK:     cfg.Retrieval.MaxK,
	}, m, logger)

	p := &Pipeline{
		cfg:       cfg,
		store:     store,
		embedder:  embedder,
		ingester:  ingest.New(store, embedder, cfg.Eras, m, logger),
		retriever: retriever,
		synth: synth.New(summarizer, synth.Config{
			Workers: cfg.Concurrency.SynthWorkers,
			Retry:   worker.RetryFromConfig(cfg.Retry, cfg.LLM.Timeout),
			Limiter: limiter,
		}, m, logger),
		engine:  predict.New(retriever, adjuster, cfg.Prediction, m, logger),
		metrics: m,
		logger:  logger,
	}

	if n, err := store.Count(ctx); err == nil {
		m.CorpusDocuments(n)
	}
	logger.Debug("pipeline ready",
		"corpus", cfg.Corpus.Driver,
		"embedder", embedder.ID(),
		"llm", summarizer.Name())
	return p, nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() model.Config { return p.cfg }

// Metrics returns the pipeline's collectors.
func (p *Pipeline) Metrics() *metrics.Metrics { return p.metrics }

// Close releases the corpus store.
func (p *Pipeline) Close() error { return p.store.Close() }

// Query builds a retrieval query. eraRange is a taxonomy label, "YYYY" or
// "YYYY-YYYY"; empty means all eras.
func (p *Pipeline) Query(team, eraRange, competition, intent string) (model.Query, error) {
	eras, err := model.ParseEraRange(eraRange, p.cfg.Eras)
	if err != nil {
		return model.Query{}, err
	}
	return model.Query{
		Team:        team,
		Eras:        eras,
		Competition: model.NormalizeTeam(competition),
		Intent:      intent,
	}, nil
}

// Analysis is a tactical summary together with the evidence it cites.
type Analysis struct {
	Summary  *model.TacticalSummary
	Evidence model.EvidenceSet
}

// Analyze retrieves evidence for q and summarises it era by era.
func (p *Pipeline) Analyze(ctx context.Context, q model.Query, k int) (*Analysis, error) {
	set, err := p.retriever.Retrieve(ctx, q, k)
	if err != nil {
		return nil, err
	}
	summary, err := p.synth.Summarize(ctx, set.Query, set)
	if err != nil {
		return nil, err
	}
	return &Analysis{Summary: summary, Evidence: set}, nil
}

// Predict estimates a vs b.
func (p *Pipeline) Predict(ctx context.Context, a, b model.Query, k int) (*model.PredictionResult, error) {
	return p.engine.Predict(ctx, a, b, k)
}

// Compare builds the venue-split strengths of a and b.
func (p *Pipeline) Compare(ctx context.Context, a, b model.Query, k int, fill string) (*predict.Comparison, error) {
	return p.engine.Compare(ctx, a, b, k, fill)
}

// Ingest stores one document.
func (p *Pipeline) Ingest(ctx context.Context, doc ingest.RawDocument, tags ingest.Tags, opts ingest.Options) (ingest.Result, error) {
	res, err := p.ingester.Ingest(ctx, doc, tags, opts)
	if err == nil && res.Created {
		p.refreshCount(ctx)
	}
	return res, err
}

// IngestBatch stores docs on the configured number of workers.
func (p *Pipeline) IngestBatch(ctx context.Context, docs []ingest.Document, opts ingest.Options) ingest.BatchSummary {
	summary := p.ingester.Batch(ctx, docs, p.cfg.Concurrency.IngestWorkers, opts)
	if summary.Created > 0 {
		p.refreshCount(ctx)
	}
	return summary
}

func (p *Pipeline) refreshCount(ctx context.Context) {
	n, err := p.store.Count(ctx)
	if err != nil {
		p.logger.Warn("corpus count failed", "error", err)
		return
	}
	p.metrics.CorpusDocuments(n)
}

// CorpusStatus describes the store backing the pipeline.
type CorpusStatus struct {
	Documents  int    `json:"documents"`
	Dimensions int    `json:"dimensions"`
	Metric     string `json:"metric"`
	Embedder   string `json:"embedder"`
}

// Health is the readiness view of the pipeline.
type Health struct {
	Status string       `json:"status"`
	Corpus CorpusStatus `json:"corpus"`
	LLM    string       `json:"llm"`
}

// Health reports corpus size and the active backends.
func (p *Pipeline) Health(ctx context.Context) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := p.store.Count(ctx)
	if err != nil {
		return Health{Status: "degraded", LLM: p.synth.Backend()}, fmt.Errorf("count corpus: %w", err)
	}
	meta := p.store.Meta()
	return Health{
		Status: "ok",
		Corpus: CorpusStatus{
			Documents:  n,
			Dimensions: meta.Dimensions,
			Metric:     meta.Metric,
			Embedder:   meta.Embedder,
		},
		LLM: p.synth.Backend(),
	}, nil
}
