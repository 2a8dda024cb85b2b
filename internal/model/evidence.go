package model

import "sort"

// Evidence is one retrieved report and its relevance score.
type Evidence struct {
	Report MatchReport `json:"report"`
	Score  float64     `json:"score"` // Cosine similarity, comparable within one set only
}

// EvidenceSet is the ranked, deduplicated, size-bounded output of a retrieval.
type EvidenceSet struct {
	Query Query      `json:"query"`
	Items []Evidence `json:"items"`
}

// Len returns the number of evidence items.
func (s EvidenceSet) Len() int { return len(s.Items) }

// Empty reports whether the set has no evidence.
func (s EvidenceSet) Empty() bool { return len(s.Items) == 0 }

// IDs returns report ids in rank order.
func (s EvidenceSet) IDs() []string {
	ids := make([]string, len(s.Items))
	for i, e := range s.Items {
		ids[i] = e.Report.ID
	}
	return ids
}

// Contains reports whether id is a member of the set.
func (s EvidenceSet) Contains(id string) bool {
	for _, e := range s.Items {
		if e.Report.ID == id {
			return true
		}
	}
	return false
}

// EraBucket is the evidence subset of a single era.
type EraBucket struct {
	Era   string
	From  int
	Items []Evidence
}

// ByEra groups the set into era buckets ordered oldest first, keeping rank order inside each bucket.
func (s EvidenceSet) ByEra() []EraBucket {
	index := make(map[string]int)
	var buckets []EraBucket
	for _, e := range s.Items {
		i, ok := index[e.Report.Era]
		if !ok {
			i = len(buckets)
			index[e.Report.Era] = i
			buckets = append(buckets, EraBucket{Era: e.Report.Era, From: e.Report.EraFrom})
		}
		buckets[i].Items = append(buckets[i].Items, e)
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		if buckets[i].From != buckets[j].From {
			return buckets[i].From < buckets[j].From
		}
		return buckets[i].Era < buckets[j].Era
	})
	return buckets
}

// YearSpan returns the oldest and newest season year in the set.
func (s EvidenceSet) YearSpan() (oldest, newest int) {
	for i, e := range s.Items {
		if i == 0 || e.Report.Year < oldest {
			oldest = e.Report.Year
		}
		if i == 0 || e.Report.Year > newest {
			newest = e.Report.Year
		}
	}
	return oldest, newest
}
