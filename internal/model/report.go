package model

import "time"

// MatchReport is an immutable, tagged match document stored in the corpus.
type MatchReport struct {
	ID          string     `json:"id"`                    // Content-derived identifier
	Team        string     `json:"team"`                  // Normalised team slug
	Opponent    string     `json:"opponent,omitempty"`    // Normalised opponent slug (optional)
	Competition string     `json:"competition,omitempty"` // Normalised competition slug
	Era         string     `json:"era"`                   // Era taxonomy label
	EraFrom     int        `json:"era_from"`              // First year of the era bucket
	EraTo       int        `json:"era_to"`                // Year the era bucket ends (exclusive)
	Year        int        `json:"year"`                  // Season year used for range filters
	YearTo      int        `json:"year_to,omitempty"`     // Last season of an undated report's era; zero means Year
	PlayedOn    *time.Time `json:"played_on,omitempty"`   // Match date when known
	Venue       Venue      `json:"venue,omitempty"`       // home / away
	Source      string     `json:"source,omitempty"`      // Publisher or feed name
	SourceID    string     `json:"source_id,omitempty"`   // Identifier at the source
	Title       string     `json:"title,omitempty"`
	Narrative   string     `json:"narrative"` // Normalised free text
	Stats       MatchStats `json:"stats"`
	IngestedAt  time.Time  `json:"ingested_at"`
}

// Years returns the inclusive span of season years the report stands for.
func (r MatchReport) Years() (first, last int) {
	if r.YearTo > r.Year {
		return r.Year, r.YearTo
	}
	return r.Year, r.Year
}

// Venue marks whether the team played at home or away.
type Venue string

const (
	VenueUnknown Venue = ""
	VenueHome    Venue = "home"
	VenueAway    Venue = "away"
)

// MatchStats holds the structured numbers of a report. Nil means unknown.
type MatchStats struct {
	Possession    *float64 `json:"possession,omitempty"` // Percent, 0-100
	Shots         *int     `json:"shots,omitempty"`
	ShotsOnTarget *int     `json:"shots_on_target,omitempty"`
	XG            *float64 `json:"xg,omitempty"`
	XGAgainst     *float64 `json:"xg_against,omitempty"`
	GoalsFor      *int     `json:"goals_for,omitempty"`
	GoalsAgainst  *int     `json:"goals_against,omitempty"`
	Formation     string   `json:"formation,omitempty"` // e.g. "4-3-3"
}

// Scored reports whether the stats carry any attacking output figure.
func (s MatchStats) Scored() (float64, bool) {
	if s.GoalsFor != nil {
		return float64(*s.GoalsFor), true
	}
	if s.XG != nil {
		return *s.XG, true
	}
	return 0, false
}

// Conceded reports the defensive figure: goals against, falling back to xG against.
func (s MatchStats) Conceded() (float64, bool) {
	if s.GoalsAgainst != nil {
		return float64(*s.GoalsAgainst), true
	}
	if s.XGAgainst != nil {
		return *s.XGAgainst, true
	}
	return 0, false
}

// EmbeddingRecord is the vector owned 1:1 by a MatchReport.
type EmbeddingRecord struct {
	ReportID string    `json:"report_id"`
	Vector   []float32 `json:"vector"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
