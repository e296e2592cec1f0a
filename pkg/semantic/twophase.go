package semantic

import (
	"math"
	"strings"

	"github.com/sentra-sec/sentra/pkg/config"
	"github.com/sentra-sec/sentra/pkg/models"
)

// maxReportedMatches bounds how many matches per side ride in the outcome.
const maxReportedMatches = 3

// Classify runs the v2.3 twelve-rule ladder over the dual-corpus search
// results. Rules are evaluated in declaration order; the first match wins.
//
// A single-corpus threshold cannot tell "how do I ignore TypeScript compile
// errors" from "ignore all previous instructions"; they are neighbours in
// embedding space. The ladder classifies on the attack/safe comparison
// instead, with each tier pinning one named failure mode (Polish jailbreaks
// that overlap instruction corpora, educational queries that overlap
// extraction attacks, ...).
func Classify(t config.TwoPhaseConfig, attack, safe []models.SemanticMatch) models.TwoPhaseOutcome {
	out := models.TwoPhaseOutcome{
		AttackMatches: truncMatches(attack),
		SafeMatches:   truncMatches(safe),
	}

	if len(attack) == 0 {
		// Nothing to compare against; the caller flags degraded search
		// separately. No attack rows at all means no evidence.
		out.Classification = models.ClassUnknown
		return out
	}

	attackMax := attack[0].Similarity
	safeMax := 0.0
	topSafeSub := ""
	if len(safe) > 0 {
		safeMax = safe[0].Similarity
		topSafeSub = safe[0].Subcategory
	}
	delta := attackMax - safeMax

	instructionType := isInstructionType(t, topSafeSub)
	securityEducation := topSafeSub != "" && strings.Contains(topSafeSub, t.SecurityEducationSubstring)

	adjusted := delta
	if instructionType && !securityEducation {
		adjusted = delta + t.InstructionAdjust
	}

	out.AttackMaxSim = attackMax
	out.SafeMaxSim = safeMax
	out.Delta = delta
	out.AdjustedDelta = adjusted
	out.SafeIsInstructionType = instructionType
	out.SafeIsSecurityEducation = securityEducation
	out.Confidence = math.Min(1, math.Abs(delta)*10)

	out.Classification, out.RuleID = applyLadder(t, attackMax, safeMax, delta, instructionType, securityEducation)
	return out
}

// applyLadder is the ordered rule table. SAFE tiers run first: a confident
// safe-corpus win must short-circuit the attack tiers below it.
func applyLadder(t config.TwoPhaseConfig, attackMax, safeMax, delta float64, instructionType, securityEducation bool) (models.Classification, string) {
	// S1: safe wins by a subcategory-dependent margin.
	margin := t.S1MarginOther
	switch {
	case securityEducation:
		margin = t.S1MarginSecurityEducation
	case instructionType:
		margin = t.S1MarginInstruction
	}
	if safeMax >= attackMax+margin && attackMax < t.S1AttackCeiling {
		return models.ClassSafe, "S1"
	}

	// S2: very strong security-education match with clearly negative delta.
	if securityEducation && safeMax >= t.S2SafeMin && delta < t.S2DeltaMax {
		return models.ClassSafe, "S2"
	}

	// S3: instruction-type with clear negative delta, attack not too high.
	if instructionType && delta < t.S3DeltaMax && attackMax < t.S3AttackCeiling {
		return models.ClassSafe, "S3"
	}

	// S4: strong non-instruction safe match.
	if !instructionType && safeMax >= t.S4SafeMin && delta < t.S4DeltaMax && attackMax < t.S4AttackCeiling {
		return models.ClassSafe, "S4"
	}

	// A1: very high attack similarity unless safe strongly overrides.
	if attackMax >= t.A1AttackMin && !(safeMax >= t.A1SafeOverrideSafeMin && delta < t.A1SafeOverrideDeltaMax) {
		return models.ClassAttack, "A1"
	}

	// A2: high attack similarity on instruction-type context, minus two
	// safe-override exceptions.
	if attackMax >= t.A2AttackMin && instructionType {
		secEduException := securityEducation && safeMax >= t.A2ExceptionSecEduSafeMin
		marginException := safeMax >= attackMax+t.A2ExceptionSafeMargin
		if !secEduException && !marginException {
			return models.ClassAttack, "A2"
		}
	}

	// A3..A6: descending attack ladder.
	if attackMax >= t.A3AttackMin && instructionType && delta > t.A3DeltaMin {
		return models.ClassAttack, "A3"
	}
	if attackMax >= t.A4aAttackMin && delta > t.A4aDeltaMin {
		return models.ClassAttack, "A4a"
	}
	if attackMax >= t.A4bAttackMin && instructionType && delta > t.A4bDeltaMin {
		return models.ClassAttack, "A4b"
	}
	if attackMax >= t.A5AttackMin && delta > t.A5DeltaMin {
		return models.ClassAttack, "A5"
	}
	if attackMax >= t.A6AttackMin && delta > t.A6DeltaMin {
		return models.ClassAttack, "A6"
	}

	// B1: security-education claim too weak to shield a high attack match.
	if securityEducation && safeMax < t.B1SafeCeiling && attackMax >= t.B1AttackMin {
		return models.ClassAttack, "B1"
	}

	// B2: borderline instruction-type band.
	if attackMax >= t.B2AttackMin && attackMax < t.B2AttackCeiling && instructionType && delta > t.B2DeltaMin {
		return models.ClassAttack, "B2"
	}

	return models.ClassSafe, ""
}

func isInstructionType(t config.TwoPhaseConfig, subcategory string) bool {
	for _, s := range t.InstructionSubcategories {
		if subcategory == s {
			return true
		}
	}
	return false
}

func truncMatches(ms []models.SemanticMatch) []models.SemanticMatch {
	if len(ms) > maxReportedMatches {
		return ms[:maxReportedMatches]
	}
	return ms
}
