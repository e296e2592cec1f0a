package models

// PIIEntity is one detected sensitive fragment. Start/End are UTF-8
// code-point positions into the original text; after overlap resolution
// all emitted entities have disjoint spans.
type PIIEntity struct {
	Type      string  `json:"type"`
	Start     int     `json:"start"`
	End       int     `json:"end"`
	Score     float64 `json:"score"`
	Validated bool    `json:"validated"`
}

// Len returns the span length in code points.
func (e PIIEntity) Len() int { return e.End - e.Start }

// Overlaps reports whether two spans intersect.
func (e PIIEntity) Overlaps(o PIIEntity) bool {
	return e.Start < o.End && o.Start < e.End
}

// PIISummary is the aggregate stored in the event record: entity types and
// counts only, never literal values.
type PIISummary struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// SummarizePII folds an entity list into its storable summary.
func SummarizePII(entities []PIIEntity) PIISummary {
	s := PIISummary{Counts: map[string]int{}}
	for _, e := range entities {
		s.Counts[e.Type]++
		s.Total++
	}
	return s
}
