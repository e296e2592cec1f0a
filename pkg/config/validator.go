package config

import (
	"fmt"
	"math"
)

// Validator validates a Config comprehensively with clear error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast, stops at the
// first error). Boot failures here are fatal; reload failures keep the
// previous snapshot.
func (v *Validator) ValidateAll() error {
	if err := v.validateArbiter(); err != nil {
		return fmt.Errorf("arbiter validation failed: %w", err)
	}
	if err := v.validateBranches(); err != nil {
		return fmt.Errorf("branch validation failed: %w", err)
	}
	if err := v.validateTwoPhase(); err != nil {
		return fmt.Errorf("semantic threshold validation failed: %w", err)
	}
	if err := v.validatePII(); err != nil {
		return fmt.Errorf("pii validation failed: %w", err)
	}
	if err := v.validateStores(); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateArbiter() error {
	a := v.cfg.Arbiter

	sum := a.Weights.A + a.Weights.B + a.Weights.C
	if math.Abs(sum-1.0) > 1e-9 {
		return NewValidationError("arbiter", "weights", fmt.Errorf("%w: must sum to 1.0, got %v", ErrInvalidValue, sum))
	}
	if a.Weights.A < 0 || a.Weights.B < 0 || a.Weights.C < 0 {
		return NewValidationError("arbiter", "weights", fmt.Errorf("%w: weights must be >= 0", ErrInvalidValue))
	}
	if a.BlockScore < 1 || a.BlockScore > 100 {
		return NewValidationError("arbiter", "block_score", fmt.Errorf("%w: must be in 1..100, got %d", ErrInvalidValue, a.BlockScore))
	}
	if a.ConfidenceMin < 0 || a.ConfidenceMin > 1 {
		return NewValidationError("arbiter", "confidence_min", fmt.Errorf("%w: must be in 0..1, got %v", ErrInvalidValue, a.ConfidenceMin))
	}

	validConditions := map[string]bool{
		CondBranchScoreHigh: true,
		CondHighSimilarity:  true,
		CondModelHighRisk:   true,
		CondPatternHitHigh:  true,
		CondAllLow:          true,
	}
	validEffects := map[string]bool{
		BoostEffectAdd:      true,
		BoostEffectRaiseMin: true,
		BoostEffectClampMax: true,
	}
	for _, name := range a.BoostOrder {
		rule, ok := a.Boosts[name]
		if !ok {
			return NewValidationError("arbiter", "boost_order", fmt.Errorf("%w: boost '%s' not defined", ErrInvalidValue, name))
		}
		if !validConditions[rule.Condition] {
			return NewValidationError("arbiter", name, fmt.Errorf("%w: unknown boost condition '%s'", ErrInvalidValue, rule.Condition))
		}
		if !validEffects[rule.Effect] {
			return NewValidationError("arbiter", name, fmt.Errorf("%w: unknown boost effect '%s'", ErrInvalidValue, rule.Effect))
		}
		if rule.Value < 0 || rule.Value > 100 {
			return NewValidationError("arbiter", name, fmt.Errorf("%w: boost value must be in 0..100, got %d", ErrInvalidValue, rule.Value))
		}
	}
	return nil
}

func (v *Validator) validateBranches() error {
	b := v.cfg.Branches
	if b.Heuristics.BudgetMs <= 0 || b.Semantic.BudgetMs <= 0 || b.Safety.BudgetMs <= 0 {
		return NewValidationError("branches", "budget_ms", fmt.Errorf("%w: budgets must be positive", ErrInvalidValue))
	}
	if b.JoinGraceMs < 0 {
		return NewValidationError("branches", "join_grace_ms", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	if b.Heuristics.CataloguePath == "" {
		return NewValidationError("branches", "catalogue_path", ErrMissingRequiredField)
	}
	if v.cfg.Server.RequestBudgetMs <= 0 {
		return NewValidationError("server", "request_budget_ms", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if v.cfg.Server.MaxConcurrent <= 0 {
		return NewValidationError("server", "max_concurrent", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

// validateTwoPhase rejects impossible ladder configurations: inverted
// bands and thresholds outside [−1, 1] similarity space.
func (v *Validator) validateTwoPhase() error {
	t := v.cfg.Branches.Semantic.Thresholds

	sims := map[string]float64{
		"s1_attack_ceiling": t.S1AttackCeiling,
		"s2_safe_min":       t.S2SafeMin,
		"s3_attack_ceiling": t.S3AttackCeiling,
		"s4_safe_min":       t.S4SafeMin,
		"a1_attack_min":     t.A1AttackMin,
		"a2_attack_min":     t.A2AttackMin,
		"a3_attack_min":     t.A3AttackMin,
		"a4a_attack_min":    t.A4aAttackMin,
		"a4b_attack_min":    t.A4bAttackMin,
		"a5_attack_min":     t.A5AttackMin,
		"a6_attack_min":     t.A6AttackMin,
		"b1_attack_min":     t.B1AttackMin,
		"b2_attack_min":     t.B2AttackMin,
		"high_similarity":   t.HighSimilarity,
	}
	for field, val := range sims {
		if val < 0 || val > 1 {
			return NewValidationError("semantic", field, fmt.Errorf("%w: similarity threshold must be in 0..1, got %v", ErrInvalidValue, val))
		}
	}
	// The attack ladder must be descending: a rule lower in the ladder may
	// not demand a higher similarity than the rule above it.
	if t.A1AttackMin < t.A2AttackMin || t.A2AttackMin < t.A3AttackMin ||
		t.A3AttackMin < t.A4bAttackMin || t.A4bAttackMin < t.A6AttackMin {
		return NewValidationError("semantic", "attack_ladder", fmt.Errorf("%w: attack thresholds must be non-increasing down the ladder", ErrInvalidValue))
	}
	if t.B2AttackCeiling <= t.B2AttackMin {
		return NewValidationError("semantic", "b2", fmt.Errorf("%w: b2_attack_ceiling must exceed b2_attack_min", ErrInvalidValue))
	}
	if len(t.InstructionSubcategories) == 0 {
		return NewValidationError("semantic", "instruction_subcategories", ErrMissingRequiredField)
	}
	if v.cfg.Branches.Semantic.VectorStore.TopK <= 0 {
		return NewValidationError("semantic", "top_k", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validatePII() error {
	p := v.cfg.PII
	if p.ContextBoost < 0 || p.ContextBoost > 1 {
		return NewValidationError("pii", "context_boost", fmt.Errorf("%w: must be in 0..1", ErrInvalidValue))
	}
	if p.ContextWindow < 0 {
		return NewValidationError("pii", "context_window", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	if len(p.Tokens) == 0 {
		return NewValidationError("pii", "tokens", ErrMissingRequiredField)
	}
	return nil
}

// validateStores checks connection settings whose absence must fail boot,
// most importantly passwords that are only ever supplied via environment.
func (v *Validator) validateStores() error {
	vs := v.cfg.Branches.Semantic.VectorStore
	if vs.Host == "" {
		return NewValidationError("vector_store", "host", ErrMissingRequiredField)
	}
	if vs.Password == "" {
		return NewValidationError("vector_store", "password", fmt.Errorf("%w: set VECTORSTORE_PASSWORD", ErrMissingRequiredField))
	}
	db := v.cfg.Database
	if db.Host == "" {
		return NewValidationError("database", "host", ErrMissingRequiredField)
	}
	if db.Password == "" {
		return NewValidationError("database", "password", fmt.Errorf("%w: set DB_PASSWORD", ErrMissingRequiredField))
	}
	return nil
}
