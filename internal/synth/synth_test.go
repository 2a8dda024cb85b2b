package synth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/tactimerge/internal/llm"
	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/worker"
)

// fakeSummarizer answers from a function and records the evidence it was shown.
type fakeSummarizer struct {
	fn    func(ctx context.Context, req llm.EvidenceRequest) ([]llm.Attribute, error)
	mu    sync.Mutex
	seen  map[string][]string
	calls atomic.Int32
}

func (f *fakeSummarizer) Name() string                     { return "fake" }
func (f *fakeSummarizer) IsAvailable(context.Context) bool { return true }
func (f *fakeSummarizer) SummarizeEvidence(ctx context.Context, req llm.EvidenceRequest) ([]llm.Attribute, error) {
	f.calls.Add(1)
	f.mu.Lock()
	if f.seen == nil {
		f.seen = make(map[string][]string)
	}
	for _, e := range req.Evidence {
		f.seen[req.Era] = append(f.seen[req.Era], e.Report.ID)
	}
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func evidence(id, era string, from int) model.Evidence {
	return model.Evidence{Score: 0.5, Report: model.MatchReport{ID: id, Team: "barcelona", Era: era, EraFrom: from, EraTo: from + 4, Year: from}}
}

func twoEraSet() model.EvidenceSet {
	return model.EvidenceSet{Items: []model.Evidence{
		evidence("a1", "2008-2012", 2008),
		evidence("b1", "2015-2018", 2015),
		evidence("a2", "2008-2012", 2008),
	}}
}

var quickRetry = worker.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond}

func TestSummarize_PerEraEvidenceOnly(t *testing.T) {
	fake := &fakeSummarizer{fn: func(_ context.Context, req llm.EvidenceRequest) ([]llm.Attribute, error) {
		ids := make([]string, 0, len(req.Evidence))
		for _, e := range req.Evidence {
			ids = append(ids, e.Report.ID)
		}
		return []llm.Attribute{{Name: "Pressing Intensity", Value: "high in " + req.Era, EvidenceIDs: ids}}, nil
	}}
	s := New(fake, Config{Retry: quickRetry}, nil, nil)

	summary, err := s.Summarize(context.Background(), model.Query{Team: "barcelona"}, twoEraSet())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a1", "a2"}, fake.seen["2008-2012"])
	assert.Equal(t, []string{"b1"}, fake.seen["2015-2018"])

	require.Len(t, summary.Eras, 2)
	claim := summary.Eras["2008-2012"]["pressing_intensity"]
	assert.Equal(t, "high in 2008-2012", claim.Value)
	assert.ElementsMatch(t, []string{"a1", "a2"}, claim.EvidenceIDs)
	assert.Equal(t, []string{"b1"}, summary.Eras["2015-2018"]["pressing_intensity"].EvidenceIDs)
}

func TestSummarize_StripsCitationsOutsideEra(t *testing.T) {
	fake := &fakeSummarizer{fn: func(_ context.Context, req llm.EvidenceRequest) ([]llm.Attribute, error) {
		if req.Era == "2015-2018" {
			// Cites a report from another era and one that does not exist.
			return []llm.Attribute{{Name: "width", Value: "wide", EvidenceIDs: []string{"a1", "zzz"}}}, nil
		}
		return []llm.Attribute{
			{Name: "build_up", Value: "short", EvidenceIDs: []string{"a1", "b1"}},
			{Name: "", Value: "nameless", EvidenceIDs: []string{"a1"}},
			{Name: "uncited", Value: "claim"},
		}, nil
	}}
	s := New(fake, Config{Retry: quickRetry}, nil, nil)

	summary, err := s.Summarize(context.Background(), model.Query{Team: "barcelona"}, twoEraSet())
	require.NoError(t, err)

	require.Len(t, summary.Eras, 1)
	attrs := summary.Eras["2008-2012"]
	require.Len(t, attrs, 1)
	assert.Equal(t, []string{"a1"}, attrs["build_up"].EvidenceIDs)

	set := twoEraSet()
	for _, id := range summary.Citations() {
		assert.True(t, set.Contains(id))
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := New(&fakeSummarizer{}, Config{}, nil, nil)
	_, err := s.Summarize(context.Background(), model.Query{Team: "x"}, model.EvidenceSet{})
	assert.ErrorIs(t, err, model.ErrInsufficientEvidence)
}

func TestSummarize_NothingGrounded(t *testing.T) {
	fake := &fakeSummarizer{fn: func(context.Context, llm.EvidenceRequest) ([]llm.Attribute, error) {
		return []llm.Attribute{{Name: "style", Value: "invented", EvidenceIDs: []string{"elsewhere"}}}, nil
	}}
	s := New(fake, Config{Retry: quickRetry}, nil, nil)
	_, err := s.Summarize(context.Background(), model.Query{Team: "x"}, twoEraSet())
	assert.ErrorIs(t, err, model.ErrInsufficientEvidence)
}

func TestSummarize_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	fake := &fakeSummarizer{fn: func(_ context.Context, req llm.EvidenceRequest) ([]llm.Attribute, error) {
		if attempts.Add(1) == 1 {
			return nil, fmt.Errorf("provider: %w", model.ErrRateLimited)
		}
		return []llm.Attribute{{Name: "shape", Value: "4-3-3", EvidenceIDs: []string{req.Evidence[0].Report.ID}}}, nil
	}}
	s := New(fake, Config{Workers: 1, Retry: quickRetry}, nil, nil)

	set := model.EvidenceSet{Items: []model.Evidence{evidence("a1", "2008-2012", 2008)}}
	summary, err := s.Summarize(context.Background(), model.Query{Team: "x"}, set)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.calls.Load())
	assert.Equal(t, "4-3-3", summary.Eras["2008-2012"]["shape"].Value)
}

func TestSummarize_DoesNotRetryPermanentFailures(t *testing.T) {
	fake := &fakeSummarizer{fn: func(context.Context, llm.EvidenceRequest) ([]llm.Attribute, error) {
		return nil, fmt.Errorf("bad request")
	}}
	s := New(fake, Config{Workers: 1, Retry: quickRetry}, nil, nil)

	set := model.EvidenceSet{Items: []model.Evidence{evidence("a1", "2008-2012", 2008)}}
	_, err := s.Summarize(context.Background(), model.Query{Team: "x"}, set)
	require.Error(t, err)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestSummarize_Timeout(t *testing.T) {
	fake := &fakeSummarizer{fn: func(ctx context.Context, _ llm.EvidenceRequest) ([]llm.Attribute, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	retry := worker.RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, AttemptTimeout: 20 * time.Millisecond}
	s := New(fake, Config{Retry: retry}, nil, nil)

	start := time.Now()
	_, err := s.Summarize(context.Background(), model.Query{Team: "x"}, twoEraSet())
	assert.ErrorIs(t, err, model.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSummarize_CallerCancellation(t *testing.T) {
	fake := &fakeSummarizer{fn: func(ctx context.Context, _ llm.EvidenceRequest) ([]llm.Attribute, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	s := New(fake, Config{Retry: quickRetry}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := s.Summarize(ctx, model.Query{Team: "x"}, twoEraSet())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, model.ErrTimeout)
}

func TestSummarize_WithStatsProvider(t *testing.T) {
	set := twoEraSet()
	set.Items[0].Report.Narrative = "They pressed high all game."
	set.Items[0].Report.Stats.Possession = model.Float(64)
	set.Items[1].Report.Narrative = "Sat deep in a low block."

	s := New(llm.NewStatsProvider(), Config{}, nil, nil)
	summary, err := s.Summarize(context.Background(), model.Query{Team: "barcelona"}, set)
	require.NoError(t, err)

	assert.Equal(t, []string{"a1"}, summary.Eras["2008-2012"]["pressing_intensity"].EvidenceIDs)
	assert.Contains(t, summary.Eras["2008-2012"]["possession_style"].Value, "possession-dominant")
	assert.Equal(t, []string{"b1"}, summary.Eras["2015-2018"]["defensive_block"].EvidenceIDs)
}

func TestGround_MergesNormalisedNames(t *testing.T) {
	allowed := map[string]bool{"r1": true, "r2": true}
	out := Ground([]llm.Attribute{
		{Name: "Pressing Intensity", Value: "high", EvidenceIDs: []string{"r1"}},
		{Name: "pressingIntensity", Value: "High", EvidenceIDs: []string{"r2", "r1"}},
		{Name: "pressing-intensity", Value: "aggressive", EvidenceIDs: []string{"r2"}},
	}, allowed)

	require.Len(t, out, 1)
	claim := out["pressing_intensity"]
	assert.Equal(t, "high; aggressive", claim.Value)
	assert.Equal(t, []string{"r1", "r2"}, claim.EvidenceIDs)
}

func TestAttributeName(t *testing.T) {
	tests := map[string]string{
		"Pressing Intensity":  "pressing_intensity",
		"pressingIntensity":   "pressing_intensity",
		"  build-up  play ":   "build_up_play",
		"formation_tendency":  "formation_tendency",
		"!!":                  "",
		"Set-Pieces (attack)": "set_pieces_attack",
	}
	for in, want := range tests {
		assert.Equal(t, want, AttributeName(in), in)
	}
}
