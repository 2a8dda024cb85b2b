package model

// Claim is one grounded tactical attribute.
type Claim struct {
	Value       string   `json:"value"`
	EvidenceIDs []string `json:"evidence_ids"` // Never empty
}

// EraAttributes maps attribute names to claims for one era.
type EraAttributes map[string]Claim

// TacticalSummary is the era-segmented playstyle summary of a team.
type TacticalSummary struct {
	Team string                   `json:"team"`
	Eras map[string]EraAttributes `json:"eras"`
}

// Citations returns every evidence id cited by the summary.
func (s TacticalSummary) Citations() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, attrs := range s.Eras {
		for _, c := range attrs {
			for _, id := range c.EvidenceIDs {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}
	return ids
}
