package model

import (
	"fmt"
	"sort"
	"strings"
)

// Era is one bucket of the fixed era taxonomy. From is inclusive, To exclusive.
type Era struct {
	Label string `json:"label" yaml:"label" mapstructure:"label"`
	From  int    `json:"from" yaml:"from" mapstructure:"from"`
	To    int    `json:"to" yaml:"to" mapstructure:"to"`
}

// Contains reports whether year belongs to the era.
func (e Era) Contains(year int) bool { return year >= e.From && year < e.To }

// EraTaxonomy is the ordered list of eras shared by ingestion and retrieval.
type EraTaxonomy []Era

// DefaultEras returns the built-in taxonomy.
func DefaultEras() EraTaxonomy {
	bounds := []int{1992, 1996, 2000, 2004, 2008, 2012, 2015, 2018, 2020, 2023, 2027}
	eras := make(EraTaxonomy, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		eras = append(eras, Era{
			Label: fmt.Sprintf("%d-%d", bounds[i], bounds[i+1]),
			From:  bounds[i],
			To:    bounds[i+1],
		})
	}
	return eras
}

// Validate checks that eras are well-formed, sorted and non-overlapping.
func (t EraTaxonomy) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("era taxonomy is empty")
	}
	sorted := sort.SliceIsSorted(t, func(i, j int) bool { return t[i].From < t[j].From })
	if !sorted {
		return fmt.Errorf("eras must be ordered by start year")
	}
	seen := make(map[string]bool)
	for i, e := range t {
		if e.Label == "" || e.From >= e.To {
			return fmt.Errorf("invalid era %q (%d-%d)", e.Label, e.From, e.To)
		}
		key := canonicalLabel(e.Label)
		if seen[key] {
			return fmt.Errorf("duplicate era label %q", e.Label)
		}
		seen[key] = true
		if i > 0 && e.From < t[i-1].To {
			return fmt.Errorf("era %q overlaps %q", e.Label, t[i-1].Label)
		}
	}
	return nil
}

// Lookup finds an era by label, tolerating case and dash variants.
func (t EraTaxonomy) Lookup(label string) (Era, bool) {
	key := canonicalLabel(label)
	for _, e := range t {
		if canonicalLabel(e.Label) == key {
			return e, true
		}
	}
	return Era{}, false
}

// ForYear returns the era containing year.
func (t EraTaxonomy) ForYear(year int) (Era, bool) {
	for _, e := range t {
		if e.Contains(year) {
			return e, true
		}
	}
	return Era{}, false
}

// Range returns the inclusive season-year range covered by the labelled era.
func (t EraTaxonomy) Range(label string) (EraRange, bool) {
	e, ok := t.Lookup(label)
	if !ok {
		return EraRange{}, false
	}
	return EraRange{From: e.From, To: e.To - 1}, true
}

func canonicalLabel(label string) string {
	return strings.ToLower(normalizeDashes(strings.TrimSpace(label)))
}
