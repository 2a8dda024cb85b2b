package predict

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ppiankov/tactimerge/internal/model"
)

// Fill strategies for a venue split with no data.
const (
	FillLeagueMean = "league_mean"
	FillTeamMedian = "team_median"
	FillZero       = "zero"
)

// Strength is one team's venue-split scoring profile.
type Strength struct {
	Team          string  `json:"team"`
	AtkHome       float64 `json:"atk_home"`
	DefHome       float64 `json:"def_home"`
	AtkAway       float64 `json:"atk_away"`
	DefAway       float64 `json:"def_away"`
	AtkHomeRatio  float64 `json:"atk_home_ratio"`
	DefHomeRatio  float64 `json:"def_home_ratio"`
	AtkAwayRatio  float64 `json:"atk_away_ratio"`
	DefAwayRatio  float64 `json:"def_away_ratio"`
	Matches       int     `json:"matches"`
	FilledMetrics int     `json:"filled_metrics"`
}

// Comparison is the head-to-head strengths view of two teams.
type Comparison struct {
	LeagueAvg      float64    `json:"league_avg"`
	Fill           string     `json:"fill"`
	Stats          []Strength `json:"stats"`
	ExpectedXGAvsB float64    `json:"expected_xg_a_vs_b"` // a at home
	ExpectedXGBvsA float64    `json:"expected_xg_b_vs_a"` // b at home
}

// Compare builds venue-split strengths for a and b and the expected goals of
// each side when hosting the other. An empty fill uses the configured method.
// Reports without a venue count toward both splits.
func (e *Engine) Compare(ctx context.Context, a, b model.Query, k int, fill string) (*Comparison, error) {
	if fill == "" {
		fill = e.cfg.FillMethod
	}
	switch fill {
	case FillLeagueMean, FillTeamMedian, FillZero:
	default:
		return nil, fmt.Errorf("%w: unknown fill method %q", model.ErrInvalidTag, fill)
	}

	setA, setB, err := e.evidence(ctx, a, b, k)
	if err != nil {
		return nil, err
	}

	pooled := append(teamValues(setA), teamValues(setB)...)
	leagueMean := e.cfg.PriorGoals
	if len(pooled) > 0 {
		leagueMean = mean(pooled)
	}

	sa := strength(setA, fill, leagueMean)
	sb := strength(setB, fill, leagueMean)

	league := (sa.AtkHome + sa.DefHome + sa.AtkAway + sa.DefAway +
		sb.AtkHome + sb.DefHome + sb.AtkAway + sb.DefAway) / 8
	for _, s := range []*Strength{&sa, &sb} {
		s.AtkHomeRatio = ratio(s.AtkHome, league)
		s.DefHomeRatio = ratio(s.DefHome, league)
		s.AtkAwayRatio = ratio(s.AtkAway, league)
		s.DefAwayRatio = ratio(s.DefAway, league)
	}

	c := &Comparison{
		LeagueAvg: round(league, 3),
		Fill:      fill,
		Stats:     []Strength{sa, sb},
	}
	if league > 0 {
		c.ExpectedXGAvsB = round(sa.AtkHome*sb.DefAway/league, 2)
		c.ExpectedXGBvsA = round(sb.AtkHome*sa.DefAway/league, 2)
	}
	e.metrics.Evidence("compare", setA.Len()+setB.Len())
	return c, nil
}

type split struct {
	atkHome, defHome, atkAway, defAway []float64
}

func strength(set model.EvidenceSet, fill string, leagueMean float64) Strength {
	var sp split
	for _, ev := range set.Items {
		st := ev.Report.Stats
		home := ev.Report.Venue != model.VenueAway
		away := ev.Report.Venue != model.VenueHome
		if v, ok := st.Scored(); ok {
			if home {
				sp.atkHome = append(sp.atkHome, v)
			}
			if away {
				sp.atkAway = append(sp.atkAway, v)
			}
		}
		if v, ok := st.Conceded(); ok {
			if home {
				sp.defHome = append(sp.defHome, v)
			}
			if away {
				sp.defAway = append(sp.defAway, v)
			}
		}
	}

	filler := func() float64 {
		switch fill {
		case FillZero:
			return 0
		case FillTeamMedian:
			if vals := scoredValues(set); len(vals) > 0 {
				return median(vals)
			}
		}
		return leagueMean
	}

	s := Strength{Team: set.Query.Team, Matches: set.Len()}
	metric := func(vals []float64) float64 {
		if len(vals) == 0 {
			s.FilledMetrics++
			return filler()
		}
		return mean(vals)
	}
	s.AtkHome = metric(sp.atkHome)
	s.DefHome = metric(sp.defHome)
	s.AtkAway = metric(sp.atkAway)
	s.DefAway = metric(sp.defAway)
	return s
}

// teamValues collects every scored and conceded figure of a set.
func teamValues(set model.EvidenceSet) []float64 {
	var vals []float64
	for _, ev := range set.Items {
		if v, ok := ev.Report.Stats.Scored(); ok {
			vals = append(vals, v)
		}
		if v, ok := ev.Report.Stats.Conceded(); ok {
			vals = append(vals, v)
		}
	}
	return vals
}

// scoredValues collects the attacking figures of a set.
func scoredValues(set model.EvidenceSet) []float64 {
	var vals []float64
	for _, ev := range set.Items {
		if v, ok := ev.Report.Stats.Scored(); ok {
			vals = append(vals, v)
		}
	}
	return vals
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func ratio(v, league float64) float64 {
	if league == 0 {
		return 0
	}
	return v / league
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
