package models

// BranchID identifies one of the three detection branches.
type BranchID string

// Detection branch identifiers.
const (
	BranchHeuristics BranchID = "A"
	BranchSemantic   BranchID = "B"
	BranchSafetyNLP  BranchID = "C"
)

// ThreatLevel is the coarse threat bucket derived from a branch score.
type ThreatLevel string

// Threat levels, derived from score: <40 LOW, 40..69 MEDIUM, >=70 HIGH.
const (
	ThreatLow    ThreatLevel = "LOW"
	ThreatMedium ThreatLevel = "MEDIUM"
	ThreatHigh   ThreatLevel = "HIGH"
)

// Stable critical-signal keys. The arbiter reads only these keys and never
// looks inside the Features blob.
const (
	SignalPatternHitHigh = "pattern_hit_high" // Branch A
	SignalHighSimilarity = "high_similarity"  // Branch B
	SignalModelHighRisk  = "model_high_risk"  // Branch C
)

// BranchResult is the uniform output contract of every detection branch.
// A branch that fails or times out still produces one with Degraded=true,
// Score=0 and ThreatLevel=LOW.
type BranchResult struct {
	BranchID        BranchID        `json:"branch_id"`
	Score           int             `json:"score"` // 0..100
	ThreatLevel     ThreatLevel     `json:"threat_level"`
	Confidence      float64         `json:"confidence"` // 0..1
	CriticalSignals map[string]bool `json:"critical_signals"`
	Features        map[string]any  `json:"features,omitempty"` // diagnostics only
	TimingMs        int             `json:"timing_ms"`
	Degraded        bool            `json:"degraded"`
}

// ThreatLevelForScore maps a 0..100 score to its threat bucket.
func ThreatLevelForScore(score int) ThreatLevel {
	switch {
	case score >= 70:
		return ThreatHigh
	case score >= 40:
		return ThreatMedium
	default:
		return ThreatLow
	}
}

// NewBranchResult builds a consistent BranchResult: the threat level is
// always derived from the score, never set independently.
func NewBranchResult(id BranchID, score int, confidence float64) BranchResult {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return BranchResult{
		BranchID:        id,
		Score:           score,
		ThreatLevel:     ThreatLevelForScore(score),
		Confidence:      confidence,
		CriticalSignals: map[string]bool{},
	}
}

// DegradedResult builds the result reported for a branch that failed or was
// cancelled. timingMs records the time the branch consumed before failing.
func DegradedResult(id BranchID, timingMs int) BranchResult {
	r := NewBranchResult(id, 0, 0)
	r.Degraded = true
	r.TimingMs = timingMs
	return r
}
