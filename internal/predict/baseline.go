package predict

import (
	"fmt"
	"math"

	"github.com/ppiankov/tactimerge/internal/model"
)

// Rates are a team's shrunk per-match attack and defence rates.
type Rates struct {
	Attack         float64 `json:"attack"`  // Goals (or xG) scored per match
	Defence        float64 `json:"defence"` // Goals (or xG) conceded per match
	AttackSamples  int     `json:"attack_samples"`
	DefenceSamples int     `json:"defence_samples"`
}

// TeamRates estimates rates from structured stats only, shrinking each mean
// toward prior by weight pseudo-matches: (sum + weight*prior) / (n + weight).
func TeamRates(set model.EvidenceSet, prior, weight float64) Rates {
	var r Rates
	var scored, conceded float64
	for _, e := range set.Items {
		if v, ok := e.Report.Stats.Scored(); ok {
			scored += v
			r.AttackSamples++
		}
		if v, ok := e.Report.Stats.Conceded(); ok {
			conceded += v
			r.DefenceSamples++
		}
	}
	r.Attack = shrink(scored, r.AttackSamples, prior, weight)
	r.Defence = shrink(conceded, r.DefenceSamples, prior, weight)
	return r
}

// VenueRates estimates rates from the reports played at venue. Reports
// without a venue count for either side. When the venue split has no figures
// for attack or defence, that rate comes from all of the team's reports.
func VenueRates(set model.EvidenceSet, venue model.Venue, prior, weight float64) Rates {
	split := model.EvidenceSet{Query: set.Query}
	for _, e := range set.Items {
		if e.Report.Venue == venue || e.Report.Venue == model.VenueUnknown {
			split.Items = append(split.Items, e)
		}
	}

	r := TeamRates(split, prior, weight)
	if r.AttackSamples > 0 && r.DefenceSamples > 0 {
		return r
	}
	all := TeamRates(set, prior, weight)
	if r.AttackSamples == 0 {
		r.Attack, r.AttackSamples = all.Attack, all.AttackSamples
	}
	if r.DefenceSamples == 0 {
		r.Defence, r.DefenceSamples = all.Defence, all.DefenceSamples
	}
	return r
}

func shrink(sum float64, n int, prior, weight float64) float64 {
	if float64(n)+weight == 0 {
		return prior
	}
	return (sum + weight*prior) / (float64(n) + weight)
}

// ExpectedGoals applies the multiplicative strength model to both sides.
// The league average is the mean of the four rates.
func ExpectedGoals(a, b Rates) (lambdaA, lambdaB, league float64) {
	league = (a.Attack + a.Defence + b.Attack + b.Defence) / 4
	if league <= 0 {
		return 0, 0, 0
	}
	return a.Attack * b.Defence / league, b.Attack * a.Defence / league, league
}

// PoissonLogPMF returns ln P(X=k) for k in 0..n. Working in log space keeps
// the grid usable for rates where e^-lambda underflows.
func PoissonLogPMF(lambda float64, n int) []float64 {
	p := make([]float64, n+1)
	if lambda <= 0 {
		for k := 1; k <= n; k++ {
			p[k] = math.Inf(-1)
		}
		return p
	}
	logLambda := math.Log(lambda)
	for k := 0; k <= n; k++ {
		lg, _ := math.Lgamma(float64(k + 1))
		p[k] = float64(k)*logLambda - lambda - lg
	}
	return p
}

// Outcome maps two expected-goal figures to win/draw/loss for side A using
// independent Poisson scorelines over 0..maxGoals, renormalised over the grid.
// It also returns the most likely scoreline.
func Outcome(xgA, xgB float64, maxGoals int) (model.Probabilities, string) {
	la := PoissonLogPMF(xgA, maxGoals)
	lb := PoissonLogPMF(xgB, maxGoals)

	bestI, bestJ, best := 0, 0, math.Inf(-1)
	for i, x := range la {
		for j, y := range lb {
			if x+y > best {
				bestI, bestJ, best = i, j, x+y
			}
		}
	}

	// Cells are scaled by the most likely one before exponentiating.
	var p model.Probabilities
	for i, x := range la {
		for j, y := range lb {
			joint := math.Exp(x + y - best)
			switch {
			case i > j:
				p.Win += joint
			case i == j:
				p.Draw += joint
			default:
				p.Loss += joint
			}
		}
	}

	total := p.Sum()
	p.Win /= total
	p.Draw /= total
	p.Loss /= total
	return p, fmt.Sprintf("%d-%d", bestI, bestJ)
}

// Confidence grows with the combined evidence count n and shrinks with the
// span of years the evidence covers.
func Confidence(n, spreadYears int) float64 {
	if n <= 0 {
		return 0
	}
	if spreadYears < 0 {
		spreadYears = 0
	}
	return (1 - math.Exp(-float64(n)/8)) / (1 + float64(spreadYears)/10)
}

// Level buckets a confidence value.
func Level(c float64) model.ConfidenceLevel {
	switch {
	case c >= 0.7:
		return model.ConfidenceHigh
	case c >= 0.4:
		return model.ConfidenceMedium
	}
	return model.ConfidenceLow
}
