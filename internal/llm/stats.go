package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/tactimerge/internal/model"
)

// StatsProvider derives attributes from structured stats and narrative
// vocabulary without calling a model. Output is deterministic.
type StatsProvider struct{}

// NewStatsProvider creates the offline summarizer.
func NewStatsProvider() *StatsProvider { return &StatsProvider{} }

// Name returns the provider name
func (p *StatsProvider) Name() string { return "stats" }

// IsAvailable always succeeds
func (p *StatsProvider) IsAvailable(ctx context.Context) bool { return true }

// cue is a narrative pattern that, when reported, supports an attribute.
type cue struct {
	name     string
	value    string
	keywords []string
}

var cues = []cue{
	{"pressing_intensity", "presses high and aggressively", []string{"high press", "pressing", "gegenpress", "pressed high", "counter-press", "counterpress"}},
	{"build_up", "patient short-passing build-up", []string{"short passing", "tiki-taka", "tiki taka", "build-up", "build up", "patient possession", "keep the ball"}},
	{"transitions", "dangerous on the counter-attack", []string{"counter-attack", "counter attack", "counterattack", "on the break", "transition"}},
	{"defensive_block", "defends in a deep, compact block", []string{"deep block", "low block", "compact", "park the bus", "sat deep", "defended deep"}},
	{"directness", "direct, long-ball approach", []string{"long ball", "direct play", "route one", "long balls", "played direct"}},
	{"width", "attacks through wide areas", []string{"wing play", "overlapping", "wide areas", "crosses", "full-backs pushed", "width"}},
	{"set_pieces", "threat from set pieces", []string{"set piece", "set-piece", "corner", "free kick", "free-kick"}},
}

// SummarizeEvidence implements EvidenceSummarizer.
func (p *StatsProvider) SummarizeEvidence(ctx context.Context, req EvidenceRequest) ([]Attribute, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var attrs []Attribute
	for _, f := range []func([]model.Evidence) (Attribute, bool){
		possessionStyle, attackingVolume, scoringRate, defensiveRecord, formationTendency,
	} {
		if a, ok := f(req.Evidence); ok {
			attrs = append(attrs, a)
		}
	}
	attrs = append(attrs, narrativeCues(req.Evidence)...)
	return attrs, nil
}

func possessionStyle(ev []model.Evidence) (Attribute, bool) {
	mean, ids := meanOf(ev, func(s model.MatchStats) (float64, bool) {
		if s.Possession == nil {
			return 0, false
		}
		return *s.Possession, true
	})
	if len(ids) == 0 {
		return Attribute{}, false
	}
	var style string
	switch {
	case mean >= 55:
		style = "possession-dominant"
	case mean >= 45:
		style = "balanced possession"
	default:
		style = "cedes possession"
	}
	return Attribute{Name: "possession_style", Value: fmt.Sprintf("%s (avg %.0f%%)", style, mean), EvidenceIDs: ids}, true
}

func attackingVolume(ev []model.Evidence) (Attribute, bool) {
	mean, ids := meanOf(ev, func(s model.MatchStats) (float64, bool) {
		if s.Shots == nil {
			return 0, false
		}
		return float64(*s.Shots), true
	})
	if len(ids) == 0 {
		return Attribute{}, false
	}
	var level string
	switch {
	case mean >= 15:
		level = "high shot volume"
	case mean >= 10:
		level = "moderate shot volume"
	default:
		level = "low shot volume"
	}
	return Attribute{Name: "attacking_volume", Value: fmt.Sprintf("%s (avg %.1f shots)", level, mean), EvidenceIDs: ids}, true
}

func scoringRate(ev []model.Evidence) (Attribute, bool) {
	mean, ids := meanOf(ev, model.MatchStats.Scored)
	if len(ids) == 0 {
		return Attribute{}, false
	}
	return Attribute{Name: "scoring_rate", Value: fmt.Sprintf("%.2f goals per match", mean), EvidenceIDs: ids}, true
}

func defensiveRecord(ev []model.Evidence) (Attribute, bool) {
	mean, ids := meanOf(ev, model.MatchStats.Conceded)
	if len(ids) == 0 {
		return Attribute{}, false
	}
	var level string
	switch {
	case mean < 0.8:
		level = "very solid"
	case mean < 1.4:
		level = "solid"
	default:
		level = "leaky"
	}
	return Attribute{Name: "defensive_record", Value: fmt.Sprintf("%s (%.2f conceded per match)", level, mean), EvidenceIDs: ids}, true
}

func formationTendency(ev []model.Evidence) (Attribute, bool) {
	counts := make(map[string]int)
	for _, e := range ev {
		if f := e.Report.Stats.Formation; f != "" {
			counts[f]++
		}
	}
	if len(counts) == 0 {
		return Attribute{}, false
	}
	formations := make([]string, 0, len(counts))
	for f := range counts {
		formations = append(formations, f)
	}
	sort.Slice(formations, func(i, j int) bool {
		if counts[formations[i]] != counts[formations[j]] {
			return counts[formations[i]] > counts[formations[j]]
		}
		return formations[i] < formations[j]
	})
	top := formations[0]
	var ids []string
	for _, e := range ev {
		if e.Report.Stats.Formation == top {
			ids = append(ids, e.Report.ID)
		}
	}
	value := top
	if len(formations) > 1 {
		value = fmt.Sprintf("%s (also %s)", top, strings.Join(formations[1:], ", "))
	}
	return Attribute{Name: "formation_tendency", Value: value, EvidenceIDs: ids}, true
}

func narrativeCues(ev []model.Evidence) []Attribute {
	var attrs []Attribute
	for _, c := range cues {
		var ids []string
		for _, e := range ev {
			text := strings.ToLower(e.Report.Narrative)
			for _, kw := range c.keywords {
				if strings.Contains(text, kw) {
					ids = append(ids, e.Report.ID)
					break
				}
			}
		}
		if len(ids) > 0 {
			attrs = append(attrs, Attribute{
				Name:        c.name,
				Value:       fmt.Sprintf("%s (%d of %d reports)", c.value, len(ids), len(ev)),
				EvidenceIDs: ids,
			})
		}
	}
	return attrs
}

func meanOf(ev []model.Evidence, get func(model.MatchStats) (float64, bool)) (float64, []string) {
	var sum float64
	var ids []string
	for _, e := range ev {
		if v, ok := get(e.Report.Stats); ok {
			sum += v
			ids = append(ids, e.Report.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return sum / float64(len(ids)), ids
}
