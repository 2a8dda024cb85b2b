package model

// Probabilities is the win/draw/loss triple from team A's point of view.
type Probabilities struct {
	Win  float64 `json:"win"`
	Draw float64 `json:"draw"`
	Loss float64 `json:"loss"`
}

// Sum returns win+draw+loss.
func (p Probabilities) Sum() float64 { return p.Win + p.Draw + p.Loss }

// Pair holds one value per side of a fixture.
type Pair struct {
	TeamA float64 `json:"teamA"`
	TeamB float64 `json:"teamB"`
}

// Counts holds one count per side of a fixture.
type Counts struct {
	TeamA int `json:"teamA"`
	TeamB int `json:"teamB"`
}

// ConfidenceLevel buckets the numeric confidence.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// PredictionResult is computed fresh per request and never cached.
type PredictionResult struct {
	TeamA              string          `json:"team_a"`
	TeamB              string          `json:"team_b"`
	Probabilities      Probabilities   `json:"probabilities"`
	XG                 Pair            `json:"xg"`
	Confidence         float64         `json:"confidence"`
	ConfidenceLevel    ConfidenceLevel `json:"confidence_level"`
	BaselineXG         Pair            `json:"baseline_xg"` // Before qualitative adjustment
	Adjustment         Pair            `json:"adjustment"`  // Multiplicative factors applied
	MostLikelyScore    string          `json:"most_likely_score"`
	EvidenceCount      Counts          `json:"evidence_count"`
	RecencySpreadYears int             `json:"recency_spread_years"`
}
