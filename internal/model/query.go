package model

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Query describes what evidence a request needs.
type Query struct {
	Team        string   `json:"team"`
	Eras        EraRange `json:"eras,omitempty"`
	Competition string   `json:"competition,omitempty"`
	Intent      string   `json:"intent,omitempty"` // Free text, e.g. "pressing in build-up"
}

// EraRange is an inclusive season-year range. Zero bounds are open.
type EraRange struct {
	From int `json:"from,omitempty"`
	To   int `json:"to,omitempty"`
}

// IsZero reports whether the range is unbounded on both ends.
func (r EraRange) IsZero() bool { return r.From == 0 && r.To == 0 }

// Contains reports whether year falls within the range.
func (r EraRange) Contains(year int) bool {
	if r.From != 0 && year < r.From {
		return false
	}
	if r.To != 0 && year > r.To {
		return false
	}
	return true
}

func (r EraRange) String() string {
	switch {
	case r.IsZero():
		return "all"
	case r.From == r.To:
		return strconv.Itoa(r.From)
	case r.From == 0:
		return fmt.Sprintf("..%d", r.To)
	case r.To == 0:
		return fmt.Sprintf("%d..", r.From)
	}
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// ParseEraRange accepts a taxonomy label, "YYYY" or "YYYY-YYYY". Empty input is an open range.
func ParseEraRange(s string, eras EraTaxonomy) (EraRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return EraRange{}, nil
	}
	if r, ok := eras.Range(s); ok {
		return r, nil
	}
	parts := strings.Split(normalizeDashes(s), "-")
	switch len(parts) {
	case 1:
		y, err := parseYear(parts[0])
		if err != nil {
			return EraRange{}, fmt.Errorf("%w: era range %q", ErrInvalidTag, s)
		}
		return EraRange{From: y, To: y}, nil
	case 2:
		from, err1 := parseYear(parts[0])
		to, err2 := parseYear(parts[1])
		if err1 != nil || err2 != nil || from > to {
			return EraRange{}, fmt.Errorf("%w: era range %q", ErrInvalidTag, s)
		}
		return EraRange{From: from, To: to}, nil
	}
	return EraRange{}, fmt.Errorf("%w: era range %q", ErrInvalidTag, s)
}

func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || y < 1800 || y > 2200 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return y, nil
}

// NormalizeTeam turns a team or competition name into a stable slug.
func NormalizeTeam(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func normalizeDashes(s string) string {
	return strings.NewReplacer("–", "-", "—", "-", "/", "-", " ", "").Replace(s)
}
