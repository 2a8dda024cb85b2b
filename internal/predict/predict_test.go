package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/tactimerge/internal/corpus/corpustest"
	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/retrieve"
)

type fakeRetriever struct {
	sets  map[string][]model.Evidence
	err   error
	calls atomic.Int32
}

func (f *fakeRetriever) Retrieve(_ context.Context, q model.Query, _ int) (model.EvidenceSet, error) {
	f.calls.Add(1)
	set := model.EvidenceSet{Query: q, Items: []model.Evidence{}}
	if f.err != nil {
		return set, f.err
	}
	set.Items = append(set.Items, f.sets[q.Team]...)
	return set, nil
}

type fixedAdjuster float64

func (a fixedAdjuster) Adjust(context.Context, model.EvidenceSet, Rates) (float64, error) {
	return float64(a), nil
}

func evidence(id string, year int, venue model.Venue, scored, conceded *int) model.Evidence {
	r := corpustest.Report(id, "", year, "", model.MatchStats{GoalsFor: scored, GoalsAgainst: conceded})
	r.Venue = venue
	return model.Evidence{Report: r, Score: 1}
}

func defaults() model.PredictionConfig { return model.DefaultConfig().Prediction }

func TestPredict_StrongerSideFavoured(t *testing.T) {
	store, emb := corpustest.Open(t)
	for i, year := range []int{2018, 2018, 2019, 2019, 2020} {
		corpustest.Add(t, store, emb, corpustest.Report(fmt.Sprintf("x%d", i), "teamx", year,
			fmt.Sprintf("TeamX kept its usual shape in match %d", i), model.MatchStats{XG: model.Float(1.5)}))
	}
	for i, year := range []int{2018, 2019, 2020} {
		corpustest.Add(t, store, emb, corpustest.Report(fmt.Sprintf("y%d", i), "teamy", year,
			fmt.Sprintf("TeamY kept its usual shape in match %d", i), model.MatchStats{XG: model.Float(1.0)}))
	}
	r := retrieve.New(store, emb, retrieve.Config{DefaultK: 10, MaxK: 50}, nil, nil)
	eng := New(r, nil, defaults(), nil, nil)

	eras := model.EraRange{From: 2018, To: 2020}
	res, err := eng.Predict(context.Background(), model.Query{Team: "TeamX", Eras: eras}, model.Query{Team: "TeamY", Eras: eras}, 0)
	require.NoError(t, err)

	assert.Greater(t, res.XG.TeamA, res.XG.TeamB)
	assert.Greater(t, res.Probabilities.Win, res.Probabilities.Loss)
	assert.InDelta(t, 1.0, res.Probabilities.Sum(), 1e-6)
	assert.Equal(t, model.Counts{TeamA: 5, TeamB: 3}, res.EvidenceCount)
	assert.Equal(t, 2, res.RecencySpreadYears)
	assert.Equal(t, "teamx", res.TeamA)
	assert.NotEmpty(t, res.MostLikelyScore)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestPredict_SameTeamRejectedBeforeRetrieval(t *testing.T) {
	f := &fakeRetriever{}
	eng := New(f, nil, defaults(), nil, nil)

	_, err := eng.Predict(context.Background(), model.Query{Team: "Manchester United"}, model.Query{Team: "manchester-united"}, 5)
	assert.ErrorIs(t, err, model.ErrInvalidFixture)

	_, err = eng.Predict(context.Background(), model.Query{Team: ""}, model.Query{Team: "arsenal"}, 5)
	assert.ErrorIs(t, err, model.ErrInvalidFixture)
	assert.Zero(t, f.calls.Load())
}

func TestPredict_InsufficientEvidence(t *testing.T) {
	f := &fakeRetriever{sets: map[string][]model.Evidence{
		"arsenal": {evidence("a1", 2019, "", model.Int(2), model.Int(1))},
	}}
	eng := New(f, nil, defaults(), nil, nil)

	_, err := eng.Predict(context.Background(), model.Query{Team: "arsenal"}, model.Query{Team: "unknown-fc"}, 5)
	assert.ErrorIs(t, err, model.ErrInsufficientEvidence)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestPredict_RetrievalErrorPropagates(t *testing.T) {
	f := &fakeRetriever{err: fmt.Errorf("embed query: %w", model.ErrUnavailable)}
	eng := New(f, nil, defaults(), nil, nil)

	_, err := eng.Predict(context.Background(), model.Query{Team: "a"}, model.Query{Team: "b"}, 5)
	assert.ErrorIs(t, err, model.ErrUnavailable)
}

func TestPredict_AdjustmentIsClamped(t *testing.T) {
	sets := map[string][]model.Evidence{
		"a": {evidence("a1", 2019, "", model.Int(2), model.Int(1))},
		"b": {evidence("b1", 2019, "", model.Int(1), model.Int(1))},
	}
	for _, tc := range []struct {
		name   string
		factor float64
		want   float64
	}{
		{"above cap", 5, 1.15},
		{"below cap", -3, 0.85},
		{"within cap", 1.05, 1.05},
		{"nan", math.NaN(), 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			eng := New(&fakeRetriever{sets: sets}, fixedAdjuster(tc.factor), defaults(), nil, nil)
			res, err := eng.Predict(context.Background(), model.Query{Team: "a"}, model.Query{Team: "b"}, 5)
			require.NoError(t, err)

			assert.InDelta(t, tc.want, res.Adjustment.TeamA, 1e-9)
			assert.InDelta(t, res.BaselineXG.TeamA*tc.want, res.XG.TeamA, 1e-9)
			assert.GreaterOrEqual(t, res.XG.TeamB, 0.0)
			assert.InDelta(t, 1.0, res.Probabilities.Sum(), 1e-6)
		})
	}
}

func TestTeamRates_Shrinkage(t *testing.T) {
	set := model.EvidenceSet{Items: []model.Evidence{
		evidence("1", 2019, "", model.Int(3), nil),
		evidence("2", 2019, "", model.Int(1), nil),
	}}
	r := TeamRates(set, 1.35, 1)

	assert.InDelta(t, (4+1.35)/3, r.Attack, 1e-9)
	assert.InDelta(t, 1.35, r.Defence, 1e-9)
	assert.Equal(t, 2, r.AttackSamples)
	assert.Zero(t, r.DefenceSamples)
}

func TestVenueRates(t *testing.T) {
	set := model.EvidenceSet{Items: []model.Evidence{
		evidence("h1", 2019, model.VenueHome, model.Int(4), model.Int(0)),
		evidence("a1", 2019, model.VenueAway, model.Int(0), model.Int(3)),
		evidence("n1", 2019, "", model.Int(2), model.Int(1)),
	}}

	home := VenueRates(set, model.VenueHome, 1.35, 1)
	assert.InDelta(t, (4+2+1.35)/3, home.Attack, 1e-9)
	assert.InDelta(t, (0+1+1.35)/3, home.Defence, 1e-9)
	assert.Equal(t, 2, home.AttackSamples)

	away := VenueRates(set, model.VenueAway, 1.35, 1)
	assert.InDelta(t, (0+2+1.35)/3, away.Attack, 1e-9)
	assert.InDelta(t, (3+1+1.35)/3, away.Defence, 1e-9)

	// No away figures at all: fall back to every report.
	homeOnly := model.EvidenceSet{Items: set.Items[:1]}
	assert.Equal(t, TeamRates(homeOnly, 1.35, 1), VenueRates(homeOnly, model.VenueAway, 1.35, 1))
}

func TestPredict_HostUsesHomeFigures(t *testing.T) {
	sets := map[string][]model.Evidence{
		"a": {
			evidence("a-home", 2019, model.VenueHome, model.Int(3), model.Int(0)),
			evidence("a-away", 2019, model.VenueAway, model.Int(0), model.Int(3)),
		},
		"b": {
			evidence("b-home", 2019, model.VenueHome, model.Int(3), model.Int(0)),
			evidence("b-away", 2019, model.VenueAway, model.Int(0), model.Int(3)),
		},
	}
	eng := New(&fakeRetriever{sets: sets}, fixedAdjuster(1), defaults(), nil, nil)

	aHosts, err := eng.Predict(context.Background(), model.Query{Team: "a"}, model.Query{Team: "b"}, 5)
	require.NoError(t, err)
	bHosts, err := eng.Predict(context.Background(), model.Query{Team: "b"}, model.Query{Team: "a"}, 5)
	require.NoError(t, err)

	assert.Greater(t, aHosts.Probabilities.Win, aHosts.Probabilities.Loss)
	assert.Greater(t, bHosts.Probabilities.Win, bHosts.Probabilities.Loss)
	assert.InDelta(t, aHosts.Probabilities.Win, bHosts.Probabilities.Win, 1e-9)
}

func TestPredict_ExtremeRatesStillSumToOne(t *testing.T) {
	var a, b []model.Evidence
	for i := 0; i < 40; i++ {
		a = append(a, evidence(fmt.Sprintf("a%d", i), 2019, "", model.Int(30), model.Int(0)))
		b = append(b, evidence(fmt.Sprintf("b%d", i), 2019, "", model.Int(0), model.Int(30)))
	}
	eng := New(&fakeRetriever{sets: map[string][]model.Evidence{"a": a, "b": b}}, fixedAdjuster(1), defaults(), nil, nil)

	res, err := eng.Predict(context.Background(), model.Query{Team: "a"}, model.Query{Team: "b"}, 50)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Probabilities.Sum(), 1e-6)
	assert.Greater(t, res.Probabilities.Win, 0.99)
}

func TestExpectedGoals(t *testing.T) {
	a := Rates{Attack: 2, Defence: 1}
	b := Rates{Attack: 1, Defence: 2}
	la, lb, league := ExpectedGoals(a, b)

	assert.InDelta(t, 1.5, league, 1e-9)
	assert.InDelta(t, 2*2/1.5, la, 1e-9)
	assert.InDelta(t, 1*1/1.5, lb, 1e-9)

	la, lb, league = ExpectedGoals(Rates{}, Rates{})
	assert.Zero(t, la+lb+league)
}

func TestOutcome(t *testing.T) {
	for _, tc := range []struct{ a, b float64 }{
		{0, 0}, {1.4, 1.1}, {0.2, 3.5}, {6, 6}, {9, 0},
	} {
		p, score := Outcome(tc.a, tc.b, 10)
		assert.InDelta(t, 1.0, p.Sum(), 1e-6, "%v", tc)
		assert.GreaterOrEqual(t, p.Win, 0.0)
		assert.GreaterOrEqual(t, p.Draw, 0.0)
		assert.GreaterOrEqual(t, p.Loss, 0.0)
		assert.NotEmpty(t, score)
	}

	p, score := Outcome(0, 0, 10)
	assert.Equal(t, 1.0, p.Draw)
	assert.Equal(t, "0-0", score)

	p, _ = Outcome(2, 2, 10)
	assert.InDelta(t, p.Win, p.Loss, 1e-12)

	_, score = Outcome(2.6, 0.3, 10)
	assert.Equal(t, "2-0", score)
}

func TestOutcome_ExtremeRates(t *testing.T) {
	for _, tc := range []struct{ a, b float64 }{
		{4999, 0.0011}, {0.0011, 4999}, {800, 800}, {1e6, 2},
	} {
		p, score := Outcome(tc.a, tc.b, 10)
		assert.InDelta(t, 1.0, p.Sum(), 1e-6, "%v", tc)
		assert.False(t, math.IsNaN(p.Win+p.Draw+p.Loss), "%v", tc)
		assert.NotEmpty(t, score)
	}

	p, score := Outcome(4999, 0.0011, 10)
	assert.InDelta(t, 1.0, p.Win, 1e-6)
	assert.Equal(t, "10-0", score)
}

func TestPoissonLogPMF(t *testing.T) {
	p := PoissonLogPMF(1.5, 3)
	require.Len(t, p, 4)
	assert.InDelta(t, math.Exp(-1.5), math.Exp(p[0]), 1e-12)
	assert.InDelta(t, math.Exp(-1.5)*1.5*1.5/2, math.Exp(p[2]), 1e-12)

	zero := PoissonLogPMF(0, 3)
	assert.Equal(t, 0.0, zero[0])
	assert.True(t, math.IsInf(zero[3], -1))
}

func TestConfidence(t *testing.T) {
	prev := 0.0
	for n := 1; n <= 40; n++ {
		c := Confidence(n, 3)
		assert.Greater(t, c, prev, "n=%d", n)
		assert.Less(t, c, 1.0)
		prev = c
	}
	for spread := 1; spread <= 30; spread++ {
		assert.Less(t, Confidence(10, spread), Confidence(10, spread-1), "spread=%d", spread)
	}
	assert.Zero(t, Confidence(0, 0))
}

func TestLevel(t *testing.T) {
	assert.Equal(t, model.ConfidenceLow, Level(0.39))
	assert.Equal(t, model.ConfidenceMedium, Level(0.4))
	assert.Equal(t, model.ConfidenceMedium, Level(0.69))
	assert.Equal(t, model.ConfidenceHigh, Level(0.7))
}

func TestTrendAdjuster(t *testing.T) {
	ctx := context.Background()
	narrative := func(id string, year int, text string) model.Evidence {
		return model.Evidence{Report: corpustest.Report(id, "a", year, text, model.MatchStats{})}
	}

	attacking := model.EvidenceSet{Items: []model.Evidence{
		narrative("1", 2019, "They pressed high and dominated the ball, relentless all night."),
	}}
	f, err := TrendAdjuster{}.Adjust(ctx, attacking, Rates{Attack: 1.35})
	require.NoError(t, err)
	assert.InDelta(t, 1.1, f, 1e-9)

	defensive := model.EvidenceSet{Items: []model.Evidence{
		narrative("1", 2019, "They sat deep in a low block and looked toothless."),
	}}
	f, err = TrendAdjuster{}.Adjust(ctx, defensive, Rates{Attack: 1.35})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, f, 1e-9)

	improving := model.EvidenceSet{Items: []model.Evidence{
		evidence("old", 2010, "", model.Int(1), nil),
		evidence("new", 2022, "", model.Int(3), nil),
	}}
	f, err = TrendAdjuster{}.Adjust(ctx, improving, Rates{Attack: 2})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, f, 1e-9)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = TrendAdjuster{}.Adjust(cancelled, improving, Rates{Attack: 2})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAdjusterFor(t *testing.T) {
	for name, want := range map[string]Adjuster{"": TrendAdjuster{}, "trend": TrendAdjuster{}, "none": NoAdjustment{}} {
		got, err := AdjusterFor(name)
		require.NoError(t, err, name)
		assert.IsType(t, want, got, name)
	}
	_, err := AdjusterFor("vibes")
	assert.Error(t, err)
}

func TestPredict_NoAdjustmentKeepsBaseline(t *testing.T) {
	sets := map[string][]model.Evidence{
		"a": {evidence("a1", 2019, "", model.Int(2), model.Int(1))},
		"b": {evidence("b1", 2022, "", model.Int(1), model.Int(1))},
	}
	eng := New(&fakeRetriever{sets: sets}, NoAdjustment{}, defaults(), nil, nil)

	res, err := eng.Predict(context.Background(), model.Query{Team: "a"}, model.Query{Team: "b"}, 5)
	require.NoError(t, err)
	assert.Equal(t, model.Pair{TeamA: 1, TeamB: 1}, res.Adjustment)
	assert.Equal(t, res.BaselineXG, res.XG)
}

func TestCompare(t *testing.T) {
	f := &fakeRetriever{sets: map[string][]model.Evidence{
		"a": {
			evidence("a1", 2019, model.VenueHome, model.Int(3), model.Int(1)),
			evidence("a2", 2019, model.VenueAway, model.Int(1), model.Int(2)),
		},
		"b": {
			evidence("b1", 2019, model.VenueHome, model.Int(2), model.Int(0)),
		},
	}}
	eng := New(f, nil, defaults(), nil, nil)

	c, err := eng.Compare(context.Background(), model.Query{Team: "a"}, model.Query{Team: "b"}, 5, FillZero)
	require.NoError(t, err)
	require.Len(t, c.Stats, 2)

	a, b := c.Stats[0], c.Stats[1]
	assert.Equal(t, Strength{Team: "a", AtkHome: 3, DefHome: 1, AtkAway: 1, DefAway: 2, Matches: 2}, Strength{
		Team: a.Team, AtkHome: a.AtkHome, DefHome: a.DefHome, AtkAway: a.AtkAway, DefAway: a.DefAway, Matches: a.Matches,
	})
	assert.Equal(t, 2, b.FilledMetrics)
	assert.Zero(t, b.AtkAway)
	assert.Zero(t, b.DefAway)

	// (3+1+1+2 + 2+0+0+0) / 8
	assert.InDelta(t, 1.125, c.LeagueAvg, 1e-9)
	assert.InDelta(t, 3/1.125, a.AtkHomeRatio, 1e-9)
	assert.Equal(t, 0.0, c.ExpectedXGAvsB)
	assert.InDelta(t, round(2*2/1.125, 2), c.ExpectedXGBvsA, 1e-9)
}

func TestCompare_FillStrategies(t *testing.T) {
	f := &fakeRetriever{sets: map[string][]model.Evidence{
		"a": {evidence("a1", 2019, model.VenueHome, model.Int(4), model.Int(2))},
		"b": {evidence("b1", 2019, model.VenueAway, model.Int(0), model.Int(0))},
	}}
	eng := New(f, nil, defaults(), nil, nil)
	ctx := context.Background()

	c, err := eng.Compare(ctx, model.Query{Team: "a"}, model.Query{Team: "b"}, 5, FillLeagueMean)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, c.Stats[0].AtkAway, 1e-9) // mean of 4, 2, 0, 0
	assert.Equal(t, FillLeagueMean, c.Fill)

	// Medians come from attacking figures only: a conceded 2 but scored 4.
	c, err = eng.Compare(ctx, model.Query{Team: "a"}, model.Query{Team: "b"}, 5, FillTeamMedian)
	require.NoError(t, err)
	assert.InDelta(t, 4, c.Stats[0].AtkAway, 1e-9)
	assert.InDelta(t, 4, c.Stats[0].DefAway, 1e-9)
	assert.InDelta(t, 0, c.Stats[1].AtkHome, 1e-9)

	c, err = eng.Compare(ctx, model.Query{Team: "a"}, model.Query{Team: "b"}, 5, "")
	require.NoError(t, err)
	assert.Equal(t, FillLeagueMean, c.Fill)

	_, err = eng.Compare(ctx, model.Query{Team: "a"}, model.Query{Team: "b"}, 5, "mode")
	assert.ErrorIs(t, err, model.ErrInvalidTag)

	_, err = eng.Compare(ctx, model.Query{Team: "a"}, model.Query{Team: "A"}, 5, "")
	assert.ErrorIs(t, err, model.ErrInvalidFixture)
}
