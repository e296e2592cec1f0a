package semantic

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentra-sec/sentra/pkg/config"
	"github.com/sentra-sec/sentra/pkg/models"
)

// Searcher is the vector store surface Branch B needs.
type Searcher interface {
	QueryBoth(ctx context.Context, embedding []float32) (attack, safe []models.SemanticMatch, err error)
	QueryAttackOnly(ctx context.Context, embedding []float32) ([]models.SemanticMatch, error)
}

// ThresholdSource returns the active ladder thresholds. Reading through a
// func keeps a reloaded config snapshot visible without restarting the branch.
type ThresholdSource func() config.TwoPhaseConfig

// FixedThresholds wraps a static threshold set into a ThresholdSource.
func FixedThresholds(t config.TwoPhaseConfig) ThresholdSource {
	return func() config.TwoPhaseConfig { return t }
}

// Branch is detection branch B. It embeds the normalized text, searches both
// pattern corpora and classifies the result with the two-phase rule ladder.
type Branch struct {
	embedder   Embedder
	store      Searcher
	thresholds ThresholdSource
	logger     *slog.Logger
}

// NewBranch wires the semantic branch.
func NewBranch(embedder Embedder, store Searcher, thresholds ThresholdSource, logger *slog.Logger) *Branch {
	return &Branch{
		embedder:   embedder,
		store:      store,
		thresholds: thresholds,
		logger:     logger.With("branch", string(models.BranchSemantic)),
	}
}

// Analyze runs the full embed, search, classify sequence. Failures of the
// embedder or of both search paths degrade the branch rather than erroring:
// the arbiter decides what a missing branch means.
func (b *Branch) Analyze(ctx context.Context, in models.NormalizedInput) (models.BranchResult, error) {
	start := time.Now()

	embedding, err := b.embedder.Embed(ctx, QueryPrefix+in.Normalized)
	if err != nil {
		b.logger.WarnContext(ctx, "embedding failed, branch degraded", "error", err)
		return models.DegradedResult(models.BranchSemantic, elapsedMs(start)), nil
	}

	fallback := false
	attack, safe, err := b.store.QueryBoth(ctx, embedding)
	if err != nil {
		b.logger.WarnContext(ctx, "dual-corpus query failed, retrying attack side only", "error", err)
		attack, err = b.store.QueryAttackOnly(ctx, embedding)
		if err != nil {
			b.logger.WarnContext(ctx, "vector search failed, branch degraded", "error", err)
			return models.DegradedResult(models.BranchSemantic, elapsedMs(start)), nil
		}
		fallback = true
		safe = nil
	}

	thresholds := b.thresholds()
	outcome := Classify(thresholds, attack, safe)
	outcome.SingleSideFallback = fallback

	score := 0
	if outcome.Classification == models.ClassAttack {
		score = int(outcome.AttackMaxSim*100 + 0.5)
	}

	res := models.NewBranchResult(models.BranchSemantic, score, outcome.Confidence)
	res.TimingMs = elapsedMs(start)
	res.CriticalSignals[models.SignalHighSimilarity] = outcome.AttackMaxSim >= thresholds.HighSimilarity
	res.Features = map[string]any{
		"two_phase": outcome,
	}
	return res, nil
}

func elapsedMs(start time.Time) int {
	return int(time.Since(start).Milliseconds())
}
