// Package synth builds era-segmented tactical summaries whose every claim
// cites evidence from the retrieved set.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/tactimerge/internal/llm"
	"github.com/ppiankov/tactimerge/internal/metrics"
	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/worker"
)

// Config bounds summarizer calls.
type Config struct {
	Workers int              // Eras summarised concurrently
	Retry   worker.RetryOpts // Per-call timeout and transient retries
	Limiter *worker.Limiter  // Keyed by provider name; nil disables limiting
}

// Synthesizer turns evidence sets into tactical summaries.
type Synthesizer struct {
	summarizer llm.EvidenceSummarizer
	cfg        Config
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a synthesizer around one summarizer backend.
func New(summarizer llm.EvidenceSummarizer, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Synthesizer {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{summarizer: summarizer, cfg: cfg, metrics: m, logger: logger}
}

// Backend names the summarizer in use.
func (s *Synthesizer) Backend() string { return s.summarizer.Name() }

// Summarize groups set by era and summarises each era from its own evidence only.
func (s *Synthesizer) Summarize(ctx context.Context, q model.Query, set model.EvidenceSet) (*model.TacticalSummary, error) {
	if set.Empty() {
		return nil, fmt.Errorf("%w: no evidence for %s", model.ErrInsufficientEvidence, q.Team)
	}

	buckets := set.ByEra()
	grounded := make([]model.EraAttributes, len(buckets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, b := range buckets {
		g.Go(func() error {
			req := llm.EvidenceRequest{Team: q.Team, Era: b.Era, Intent: q.Intent, Evidence: b.Items}
			attrs, err := s.call(gctx, req)
			if err != nil {
				return fmt.Errorf("summarize era %s: %w", b.Era, err)
			}
			grounded[i] = s.ground(attrs, req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &model.TacticalSummary{Team: q.Team, Eras: make(map[string]model.EraAttributes)}
	for i, b := range buckets {
		if len(grounded[i]) > 0 {
			summary.Eras[b.Era] = grounded[i]
		}
	}
	if len(summary.Eras) == 0 {
		return nil, fmt.Errorf("%w: no grounded attributes for %s", model.ErrInsufficientEvidence, q.Team)
	}
	return summary, nil
}

func (s *Synthesizer) call(ctx context.Context, req llm.EvidenceRequest) ([]llm.Attribute, error) {
	backend := s.summarizer.Name()
	start := time.Now()
	attrs, err := worker.Retry(ctx, s.cfg.Retry, "summarize", func(ctx context.Context) ([]llm.Attribute, error) {
		if err := s.cfg.Limiter.Wait(ctx, backend); err != nil {
			return nil, err
		}
		return s.summarizer.SummarizeEvidence(ctx, req)
	})
	s.metrics.BackendCall(backend, err, time.Since(start))
	if err != nil {
		s.logger.Warn("summarizer failed", "backend", backend, "era", req.Era, "error", err)
	}
	return attrs, err
}

// ground keeps only citations from the request's evidence, drops attributes
// left uncited and merges attributes whose names normalise alike.
func (s *Synthesizer) ground(attrs []llm.Attribute, req llm.EvidenceRequest) model.EraAttributes {
	if leaked := llm.Leaked(attrs, req); len(leaked) > 0 {
		s.logger.Warn("CITATION LEAK: summarizer cited reports outside the era's evidence",
			"backend", s.summarizer.Name(), "era", req.Era, "ids", leaked)
	}
	return Ground(attrs, req.Allowed())
}

// Ground applies the grounding discipline against the allowed report ids.
func Ground(attrs []llm.Attribute, allowed map[string]bool) model.EraAttributes {
	out := make(model.EraAttributes)
	for _, a := range attrs {
		name := AttributeName(a.Name)
		value := strings.TrimSpace(a.Value)
		if name == "" || value == "" {
			continue
		}
		ids := citations(a.EvidenceIDs, allowed)
		if len(ids) == 0 {
			continue
		}
		prev, ok := out[name]
		if !ok {
			out[name] = model.Claim{Value: value, EvidenceIDs: ids}
			continue
		}
		if !strings.EqualFold(prev.Value, value) {
			prev.Value += "; " + value
		}
		prev.EvidenceIDs = citations(append(prev.EvidenceIDs, ids...), allowed)
		out[name] = prev
	}
	return out
}

func citations(ids []string, allowed map[string]bool) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if allowed[id] && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// AttributeName normalises an attribute name to snake_case.
func AttributeName(name string) string {
	var b strings.Builder
	underscore := false
	var prev rune
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 && !underscore && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			underscore = false
		case b.Len() > 0 && !underscore:
			b.WriteByte('_')
			underscore = true
		}
		prev = r
	}
	return strings.TrimSuffix(b.String(), "_")
}
