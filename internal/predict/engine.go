// Package predict estimates match outcomes from retrieved evidence: a
// statistical baseline, a bounded qualitative adjustment and a Poisson
// scoreline model.
package predict

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/tactimerge/internal/metrics"
	"github.com/ppiankov/tactimerge/internal/model"
)

// Retriever supplies evidence for one team.
type Retriever interface {
	Retrieve(ctx context.Context, q model.Query, k int) (model.EvidenceSet, error)
}

// Engine computes predictions and team comparisons.
type Engine struct {
	retriever Retriever
	adjuster  Adjuster
	cfg       model.PredictionConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates an engine. A nil adjuster means TrendAdjuster.
func New(retriever Retriever, adjuster Adjuster, cfg model.PredictionConfig, m *metrics.Metrics, logger *slog.Logger) *Engine {
	def := model.DefaultConfig().Prediction
	if cfg.MaxGoals <= 0 {
		cfg.MaxGoals = def.MaxGoals
	}
	if cfg.AdjustmentCap < 0 || cfg.AdjustmentCap >= 1 {
		cfg.AdjustmentCap = def.AdjustmentCap
	}
	if cfg.PriorGoals <= 0 {
		cfg.PriorGoals = def.PriorGoals
	}
	if cfg.PriorWeight < 0 {
		cfg.PriorWeight = def.PriorWeight
	}
	if cfg.FillMethod == "" {
		cfg.FillMethod = def.FillMethod
	}
	if adjuster == nil {
		adjuster = TrendAdjuster{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{retriever: retriever, adjuster: adjuster, cfg: cfg, metrics: m, logger: logger}
}

// Predict estimates the fixture a vs b from a's point of view, with a as the
// host: a's home figures face b's away figures where reports carry a venue.
func (e *Engine) Predict(ctx context.Context, a, b model.Query, k int) (*model.PredictionResult, error) {
	start := time.Now()

	setA, setB, err := e.evidence(ctx, a, b, k)
	if err != nil {
		return nil, err
	}

	ratesA := VenueRates(setA, model.VenueHome, e.cfg.PriorGoals, e.cfg.PriorWeight)
	ratesB := VenueRates(setB, model.VenueAway, e.cfg.PriorGoals, e.cfg.PriorWeight)
	lambdaA, lambdaB, league := ExpectedGoals(ratesA, ratesB)

	adjA := e.adjust(ctx, setA, ratesA)
	adjB := e.adjust(ctx, setB, ratesB)
	xgA := math.Max(0, lambdaA*adjA)
	xgB := math.Max(0, lambdaB*adjB)

	probs, score := Outcome(xgA, xgB, e.cfg.MaxGoals)

	spread := yearSpread(setA, setB)
	n := setA.Len() + setB.Len()
	conf := Confidence(n, spread)
	e.metrics.Evidence("predict", n)

	e.logger.Debug("prediction computed",
		"team_a", setA.Query.Team,
		"team_b", setB.Query.Team,
		"league_avg", league,
		"baseline_a", lambdaA,
		"baseline_b", lambdaB,
		"adjust_a", adjA,
		"adjust_b", adjB,
		"duration", time.Since(start))

	return &model.PredictionResult{
		TeamA:              setA.Query.Team,
		TeamB:              setB.Query.Team,
		Probabilities:      probs,
		XG:                 model.Pair{TeamA: xgA, TeamB: xgB},
		Confidence:         conf,
		ConfidenceLevel:    Level(conf),
		BaselineXG:         model.Pair{TeamA: lambdaA, TeamB: lambdaB},
		Adjustment:         model.Pair{TeamA: adjA, TeamB: adjB},
		MostLikelyScore:    score,
		EvidenceCount:      model.Counts{TeamA: setA.Len(), TeamB: setB.Len()},
		RecencySpreadYears: spread,
	}, nil
}

// evidence validates the fixture and retrieves both sides concurrently.
func (e *Engine) evidence(ctx context.Context, a, b model.Query, k int) (model.EvidenceSet, model.EvidenceSet, error) {
	var setA, setB model.EvidenceSet

	a.Team = model.NormalizeTeam(a.Team)
	b.Team = model.NormalizeTeam(b.Team)
	if a.Team == "" || b.Team == "" {
		return setA, setB, fmt.Errorf("%w: both teams are required", model.ErrInvalidFixture)
	}
	if a.Team == b.Team {
		return setA, setB, fmt.Errorf("%w: %s cannot play itself", model.ErrInvalidFixture, a.Team)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		setA, err = e.retriever.Retrieve(gctx, a, k)
		return err
	})
	g.Go(func() error {
		var err error
		setB, err = e.retriever.Retrieve(gctx, b, k)
		return err
	})
	if err := g.Wait(); err != nil {
		return setA, setB, err
	}

	for _, s := range []model.EvidenceSet{setA, setB} {
		if s.Empty() {
			return setA, setB, fmt.Errorf("%w: no reports for %s", model.ErrInsufficientEvidence, s.Query.Team)
		}
	}
	return setA, setB, nil
}

func (e *Engine) adjust(ctx context.Context, set model.EvidenceSet, rates Rates) float64 {
	factor, err := e.adjuster.Adjust(ctx, set, rates)
	if err != nil {
		e.logger.Warn("adjustment skipped", "team", set.Query.Team, "error", err)
		return 1
	}
	return clamp(factor, e.cfg.AdjustmentCap)
}

// yearSpread is the number of years covered by both sets together.
func yearSpread(sets ...model.EvidenceSet) int {
	oldest, newest, seen := 0, 0, false
	for _, s := range sets {
		if s.Empty() {
			continue
		}
		lo, hi := s.YearSpan()
		if !seen || lo < oldest {
			oldest = lo
		}
		if !seen || hi > newest {
			newest = hi
		}
		seen = true
	}
	return newest - oldest
}
