package predict

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/tactimerge/internal/model"
)

// Adjuster reads qualitative signal from a team's evidence and proposes a
// multiplicative factor on its expected goals. The engine clamps the factor,
// so an adjuster can refine but never dominate the statistical baseline.
type Adjuster interface {
	Adjust(ctx context.Context, set model.EvidenceSet, rates Rates) (float64, error)
}

// NoAdjustment leaves the baseline untouched.
type NoAdjustment struct{}

// Adjust implements Adjuster.
func (NoAdjustment) Adjust(context.Context, model.EvidenceSet, Rates) (float64, error) {
	return 1, nil
}

// AdjusterFor returns the adjuster named in configuration.
func AdjusterFor(name string) (Adjuster, error) {
	switch name {
	case "", "trend":
		return TrendAdjuster{}, nil
	case "none":
		return NoAdjustment{}, nil
	}
	return nil, fmt.Errorf("unknown adjuster %q", name)
}

// TrendAdjuster combines the scoring trend of the most recent era against the
// team's overall rate with the balance of attacking and defensive vocabulary
// in the reports.
type TrendAdjuster struct {
	CueWeight float64 // Factor swing at a fully one-sided vocabulary
}

var (
	attackingCues = []string{"pressed high", "pressing", "dominated", "relentless", "clinical",
		"created chances", "attacking", "overran", "free-scoring", "on the front foot"}
	defensiveCues = []string{"deep block", "low block", "sat deep", "defended deep", "struggled",
		"few chances", "toothless", "park the bus", "outplayed", "on the back foot"}
)

// Adjust implements Adjuster.
func (t TrendAdjuster) Adjust(ctx context.Context, set model.EvidenceSet, rates Rates) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 1, err
	}
	weight := t.CueWeight
	if weight == 0 {
		weight = 0.1
	}
	return recentTrend(set, rates) * (1 + weight*cueBalance(set)), nil
}

// recentTrend compares the latest era's scoring with the overall rate. A
// single-era set carries no trend.
func recentTrend(set model.EvidenceSet, rates Rates) float64 {
	buckets := set.ByEra()
	if len(buckets) < 2 || rates.Attack <= 0 {
		return 1
	}
	latest := buckets[len(buckets)-1]
	var sum float64
	var n int
	for _, e := range latest.Items {
		if v, ok := e.Report.Stats.Scored(); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return (sum / float64(n)) / rates.Attack
}

// cueBalance is (attacking - defensive) / (attacking + defensive) over all
// narratives, in [-1, 1].
func cueBalance(set model.EvidenceSet) float64 {
	var att, def int
	for _, e := range set.Items {
		text := strings.ToLower(e.Report.Narrative)
		att += countCues(text, attackingCues)
		def += countCues(text, defensiveCues)
	}
	if att+def == 0 {
		return 0
	}
	return float64(att-def) / float64(att+def)
}

func countCues(text string, cues []string) int {
	n := 0
	for _, c := range cues {
		n += strings.Count(text, c)
	}
	return n
}

// clamp keeps factor within 1±limit.
func clamp(factor, limit float64) float64 {
	lo, hi := 1-limit, 1+limit
	switch {
	case factor != factor: // NaN
		return 1
	case factor < lo:
		return lo
	case factor > hi:
		return hi
	}
	return factor
}
