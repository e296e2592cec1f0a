// Package arbiter fuses the three branch results into one verdict: a
// weighted score, an ordered registry of priority boosts, and a conservative
// floor when most of the pipeline is degraded.
package arbiter

import (
	"log/slog"
	"math"

	"github.com/sentra-sec/sentra/pkg/config"
	"github.com/sentra-sec/sentra/pkg/models"
)

// highScoreMin is the per-branch score that counts as a high signal for the
// branch_score_high condition.
const highScoreMin = 70

// allLowMax is the per-branch ceiling for the all_low condition.
const allLowMax = 30

// Arbiter applies one configuration snapshot. Requests in flight keep the
// snapshot they started with.
type Arbiter struct {
	cfg    config.ArbiterConfig
	logger *slog.Logger
}

// New creates an arbiter over a validated configuration.
func New(cfg config.ArbiterConfig, logger *slog.Logger) *Arbiter {
	return &Arbiter{cfg: cfg, logger: logger.With("component", "arbiter")}
}

// Decide fuses the three branch results. The returned verdict is either
// BLOCKED or ALLOWED; the orchestrator upgrades ALLOWED to SANITIZED when
// the PII detector finds validated entities. Deterministic for fixed inputs
// and config.
func (a *Arbiter) Decide(results map[models.BranchID]models.BranchResult) models.ArbiterVerdict {
	verdict := models.ArbiterVerdict{
		BoostsApplied: []string{},
		BranchScores:  map[models.BranchID]int{},
	}
	for id, r := range results {
		verdict.BranchScores[id] = r.Score
	}

	if degradedCount(results) >= 2 {
		return a.decideConservative(results, verdict)
	}

	weighted := a.weightedScore(results)
	combined := weighted
	raisedByBoost := false
	clampedLow := false

	for _, name := range a.cfg.BoostOrder {
		rule, ok := a.cfg.Boosts[name]
		if !ok || !rule.Enabled || !a.conditionHolds(rule.Condition, results) {
			continue
		}
		switch rule.Effect {
		case config.BoostEffectAdd:
			combined += rule.Value
		case config.BoostEffectRaiseMin:
			if combined < rule.Value {
				combined = rule.Value
				raisedByBoost = true
			}
		case config.BoostEffectClampMax:
			if combined > rule.Value {
				combined = rule.Value
				clampedLow = true
			}
		}
		if combined > 100 {
			combined = 100
		}
		if combined < 0 {
			combined = 0
		}
		verdict.BoostsApplied = append(verdict.BoostsApplied, name)
	}

	verdict.CombinedScore = combined
	switch {
	case combined >= a.cfg.BlockScore:
		verdict.FinalStatus = models.StatusBlocked
		if weighted < a.cfg.BlockScore && raisedByBoost {
			verdict.Source = models.SourceCriticalOverride
		} else {
			verdict.Source = models.SourceArbiter
		}
	case clampedLow:
		verdict.FinalStatus = models.StatusAllowed
		verdict.Source = models.SourceUnanimousLow
	default:
		verdict.FinalStatus = models.StatusAllowed
		verdict.Source = models.SourceArbiter
	}

	a.logger.Debug("verdict computed",
		"status", string(verdict.FinalStatus),
		"combined_score", verdict.CombinedScore,
		"weighted", weighted,
		"boosts", verdict.BoostsApplied,
		"source", string(verdict.Source))
	return verdict
}

// decideConservative handles the ≥2-degraded floor: boosts do not run, and a
// SANITIZED outcome is off the table without a working signal source.
func (a *Arbiter) decideConservative(results map[models.BranchID]models.BranchResult, verdict models.ArbiterVerdict) models.ArbiterVerdict {
	verdict.Source = models.SourceDegradationFloor
	verdict.FinalStatus = models.StatusAllowed
	for _, r := range results {
		if !r.Degraded && r.Score >= a.cfg.BlockScore {
			verdict.FinalStatus = models.StatusBlocked
			if r.Score > verdict.CombinedScore {
				verdict.CombinedScore = r.Score
			}
		}
	}
	return verdict
}

func (a *Arbiter) weightedScore(results map[models.BranchID]models.BranchResult) int {
	w := a.cfg.Weights
	sum := w.A*float64(results[models.BranchHeuristics].Score) +
		w.B*float64(results[models.BranchSemantic].Score) +
		w.C*float64(results[models.BranchSafetyNLP].Score)
	return int(math.Round(sum))
}

func degradedCount(results map[models.BranchID]models.BranchResult) int {
	n := 0
	for _, r := range results {
		if r.Degraded {
			n++
		}
	}
	return n
}

// conditionHolds resolves a boost condition name against the branch results.
// Positive-evidence conditions require the reporting branch to reach
// confidence_min: an uncertain branch keeps its weighted-sum contribution but
// cannot trigger an override on its own. all_low argues in the other
// direction and is not gated. Unknown names were rejected at config
// validation; they evaluate false here.
func (ar *Arbiter) conditionHolds(condition string, results map[models.BranchID]models.BranchResult) bool {
	a := results[models.BranchHeuristics]
	b := results[models.BranchSemantic]
	c := results[models.BranchSafetyNLP]
	confident := func(r models.BranchResult) bool {
		return !r.Degraded && r.Confidence >= ar.cfg.ConfidenceMin
	}

	switch condition {
	case config.CondBranchScoreHigh:
		for _, r := range results {
			if confident(r) && r.Score >= highScoreMin {
				return true
			}
		}
		return false
	case config.CondHighSimilarity:
		return confident(b) && b.CriticalSignals[models.SignalHighSimilarity]
	case config.CondModelHighRisk:
		return confident(c) && c.CriticalSignals[models.SignalModelHighRisk]
	case config.CondPatternHitHigh:
		return confident(a) && a.CriticalSignals[models.SignalPatternHitHigh]
	case config.CondAllLow:
		for _, r := range results {
			if r.Score > allLowMax {
				return false
			}
			for _, fired := range r.CriticalSignals {
				if fired {
					return false
				}
			}
		}
		return true
	default:
		return false
	}
}
