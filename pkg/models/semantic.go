package models

// Classification is the outcome of the two-phase semantic comparison.
type Classification string

// Two-phase classification outcomes.
const (
	ClassSafe    Classification = "SAFE"
	ClassAttack  Classification = "ATTACK"
	ClassUnknown Classification = "UNKNOWN"
)

// CorpusSide tags which pattern corpus a semantic match came from.
type CorpusSide string

// Corpus sides returned by the vector store.
const (
	SideAttack CorpusSide = "ATTACK"
	SideSafe   CorpusSide = "SAFE"
)

// SemanticMatch is one row returned by the vector store similarity search.
type SemanticMatch struct {
	PatternID   string     `json:"pattern_id"`
	Side        CorpusSide `json:"table_type"`
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory"`
	Snippet     string     `json:"pattern_snippet,omitempty"`
	Similarity  float64    `json:"similarity"` // 1 - cosineDistance, 0..1
}

// TwoPhaseOutcome is the full diagnostic result of the dual-corpus
// comparison. It rides inside BranchResult{B}.Features.
type TwoPhaseOutcome struct {
	Classification          Classification  `json:"classification"`
	RuleID                  string          `json:"rule_id"` // ladder rule that fired, "" for default
	AttackMaxSim            float64         `json:"attack_max_sim"`
	SafeMaxSim              float64         `json:"safe_max_sim"`
	Delta                   float64         `json:"delta"`
	AdjustedDelta           float64         `json:"adjusted_delta"`
	SafeIsInstructionType   bool            `json:"safe_is_instruction_type"`
	SafeIsSecurityEducation bool            `json:"safe_is_security_education"`
	AttackMatches           []SemanticMatch `json:"attack_matches"` // 0..3
	SafeMatches             []SemanticMatch `json:"safe_matches"`   // 0..3
	Confidence              float64         `json:"confidence"`
	SingleSideFallback      bool            `json:"single_side_fallback,omitempty"`
}
