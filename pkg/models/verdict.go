package models

// FinalStatus is the terminal decision for a request.
type FinalStatus string

// Terminal statuses.
const (
	StatusAllowed   FinalStatus = "ALLOWED"
	StatusSanitized FinalStatus = "SANITIZED"
	StatusBlocked   FinalStatus = "BLOCKED"
)

// DecisionSource records which arbiter rule produced the verdict.
type DecisionSource string

// Decision sources.
const (
	SourceArbiter          DecisionSource = "arbiter"
	SourceCriticalOverride DecisionSource = "critical_override"
	SourceUnanimousLow     DecisionSource = "unanimous_low"
	SourceDegradationFloor DecisionSource = "degradation_floor"
)

// ArbiterVerdict is the fused decision over the three branch results.
// PII detection may later upgrade ALLOWED to SANITIZED; it never changes
// BLOCKED.
type ArbiterVerdict struct {
	FinalStatus   FinalStatus      `json:"final_status"`
	CombinedScore int              `json:"combined_score"` // 0..100
	BoostsApplied []string         `json:"boosts_applied"`
	BranchScores  map[BranchID]int `json:"branch_scores"`
	Source        DecisionSource   `json:"decision_source"`
}

// Action returns the lowercase wire action for the verdict.
func (v ArbiterVerdict) Action() string {
	switch v.FinalStatus {
	case StatusBlocked:
		return "block"
	case StatusSanitized:
		return "sanitize"
	default:
		return "allow"
	}
}
