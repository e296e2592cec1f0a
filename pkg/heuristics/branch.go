package heuristics

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sentra-sec/sentra/pkg/models"
)

// Branch is the heuristics detection branch. The catalogue pointer is
// swapped atomically on reload; the scan itself is CPU-bound and never
// blocks.
type Branch struct {
	catalogue atomic.Pointer[Catalogue]
	path      string
}

// NewBranch loads the catalogue from path. A load failure at boot is fatal
// to the caller.
func NewBranch(path string) (*Branch, error) {
	cat, err := LoadCatalogue(path)
	if err != nil {
		return nil, err
	}
	b := &Branch{path: path}
	b.catalogue.Store(cat)
	return b, nil
}

// NewBranchFromCatalogue builds a branch around an already-compiled
// catalogue (tests, embedded defaults).
func NewBranchFromCatalogue(cat *Catalogue) *Branch {
	b := &Branch{}
	b.catalogue.Store(cat)
	return b
}

// Reload recompiles the catalogue from disk and swaps it in. On failure the
// previous catalogue stays active.
func (b *Branch) Reload() error {
	if b.path == "" {
		return nil
	}
	cat, err := LoadCatalogue(b.path)
	if err != nil {
		slog.Error("Catalogue reload rejected, keeping previous automaton", "path", b.path, "error", err)
		return err
	}
	b.catalogue.Store(cat)
	slog.Info("Catalogue reloaded", "path", b.path)
	return nil
}

// Analyze scans the normalized input and scores it. The context is accepted
// for contract symmetry with the other branches; the scan is a single
// CPU-bound pass with no suspension points.
func (b *Branch) Analyze(_ context.Context, in models.NormalizedInput) (models.BranchResult, error) {
	start := time.Now()

	cat := b.catalogue.Load()
	if cat == nil {
		return models.DegradedResult(models.BranchHeuristics, int(time.Since(start).Milliseconds())), nil
	}

	haystack := strings.ToLower(in.Normalized)

	// One automaton pass yields per-category accumulated keyword weight.
	scores := make(map[string]int, len(cat.categories))
	hits := make(map[string]int, len(cat.categories))
	for _, m := range cat.automaton.FindAll(haystack) {
		ref := cat.refs[m.Pattern()]
		scores[ref.category] += ref.weight
		hits[ref.category]++
	}

	// Second pass: per-category regex families.
	for name, cc := range cat.categories {
		for _, cr := range cc.regexes {
			if cr.re.MatchString(in.Normalized) {
				scores[name] += cr.weight
				hits[name]++
			}
		}
	}

	// Category score = min(cap, sum). Branch score is the weighted max over
	// categories, not the sum: stacking hits across categories must not
	// escalate beyond the strongest single signal.
	var (
		best         float64
		bestCategory string
		critical     bool
	)
	for name, raw := range scores {
		cc := cat.categories[name]
		capped := raw
		if capped > cc.cap {
			capped = cc.cap
		}
		if cc.criticalThreshold > 0 && capped >= cc.criticalThreshold {
			critical = true
		}
		weighted := float64(capped) * cc.weight
		if weighted > best {
			best = weighted
			bestCategory = name
		}
	}

	score := int(best + 0.5)

	// Benign-context damping.
	whitelisted := 0
	for _, phrase := range cat.whitelist.Phrases {
		if strings.Contains(haystack, strings.ToLower(phrase)) {
			whitelisted++
		}
	}
	score -= whitelisted * cat.whitelist.Penalty
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	confidence := 0.5
	if hits[bestCategory] > 0 {
		// More corroborating hits in the winning category mean higher
		// confidence, saturating at 0.95.
		confidence = 0.5 + 0.15*float64(hits[bestCategory])
		if confidence > 0.95 {
			confidence = 0.95
		}
	}

	result := models.NewBranchResult(models.BranchHeuristics, score, confidence)
	result.CriticalSignals[models.SignalPatternHitHigh] = critical
	result.Features = map[string]any{
		"category_scores": scores,
		"top_category":    bestCategory,
		"whitelist_hits":  whitelisted,
	}
	result.TimingMs = int(time.Since(start).Milliseconds())
	return result, nil
}
