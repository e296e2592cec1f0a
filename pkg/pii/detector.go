// Package pii detects and redacts personally identifiable information in
// prompts selected for sanitization. Regex patterns cover structured
// identifiers with checksum validation; the NLP sidecar covers named
// entities, with a regex-only fallback when it is unreachable.
package pii

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sentra-sec/sentra/pkg/config"
	"github.com/sentra-sec/sentra/pkg/models"
)

// Detector is the full detection pipeline. A nil recognizer runs regex-only
// without counting as degraded.
type Detector struct {
	ner    EntityRecognizer
	cfg    config.PIIConfig
	logger *slog.Logger
}

// NewDetector wires the detector.
func NewDetector(ner EntityRecognizer, cfg config.PIIConfig, logger *slog.Logger) *Detector {
	return &Detector{ner: ner, cfg: cfg, logger: logger.With("component", "pii")}
}

// Detect returns the non-overlapping validated entities found in text, in
// span order. degraded reports that the NLP sidecar was unreachable and only
// regex detection ran; it never degrades the overall verdict.
func (d *Detector) Detect(ctx context.Context, text string) (entities []models.PIIEntity, degraded bool) {
	candidates := detectPatterns(text)

	if d.ner != nil {
		nerCtx := ctx
		if d.cfg.NERTimeoutMs > 0 {
			var cancel context.CancelFunc
			nerCtx, cancel = context.WithTimeout(ctx, time.Duration(d.cfg.NERTimeoutMs)*time.Millisecond)
			defer cancel()
		}
		named, err := d.ner.Recognize(nerCtx, text)
		if err != nil {
			d.logger.WarnContext(ctx, "ner unavailable, regex-only detection", "error", err)
			degraded = true
		} else {
			candidates = append(candidates, named...)
		}
	}

	runes := []rune(text)
	kept := candidates[:0]
	for _, c := range candidates {
		c.Score = d.applyContextBoost(runes, c)
		if c.Score >= d.cfg.MinScore {
			kept = append(kept, c)
		}
	}

	entities = resolveOverlaps(kept)
	sort.Slice(entities, func(i, j int) bool { return entities[i].Start < entities[j].Start })
	return entities, degraded
}

// applyContextBoost raises the score when a label keyword for the entity
// type occurs within the configured window around the span.
func (d *Detector) applyContextBoost(runes []rune, e models.PIIEntity) float64 {
	keywords := contextKeywords[e.Type]
	if len(keywords) == 0 {
		return e.Score
	}
	lo := e.Start - d.cfg.ContextWindow
	if lo < 0 {
		lo = 0
	}
	hi := e.End + d.cfg.ContextWindow
	if hi > len(runes) {
		hi = len(runes)
	}
	window := strings.ToLower(string(runes[lo:hi]))
	for _, kw := range keywords {
		if strings.Contains(window, kw) {
			boosted := e.Score + d.cfg.ContextBoost
			if boosted > 1 {
				boosted = 1
			}
			return boosted
		}
	}
	return e.Score
}

// resolveOverlaps greedily accepts candidates ordered by score desc, span
// length desc, start asc; overlapped losers are dropped.
func resolveOverlaps(candidates []models.PIIEntity) []models.PIIEntity {
	sorted := make([]models.PIIEntity, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Len() != b.Len() {
			return a.Len() > b.Len()
		}
		return a.Start < b.Start
	})

	var accepted []models.PIIEntity
	for _, c := range sorted {
		clash := false
		for _, a := range accepted {
			if c.Overlaps(a) {
				clash = true
				break
			}
		}
		if !clash {
			accepted = append(accepted, c)
		}
	}
	return accepted
}

// Redact replaces each entity span with its configured token, right to left
// so earlier spans stay valid. Entities must be non-overlapping; they may be
// in any order.
func Redact(text string, entities []models.PIIEntity, tokens map[string]string) string {
	if len(entities) == 0 {
		return text
	}
	ordered := make([]models.PIIEntity, len(entities))
	copy(ordered, entities)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	runes := []rune(text)
	for _, e := range ordered {
		if e.Start < 0 || e.End > len(runes) || e.Start >= e.End {
			continue
		}
		token, ok := tokens[e.Type]
		if !ok {
			token = "[" + e.Type + "]"
		}
		runes = append(runes[:e.Start], append([]rune(token), runes[e.End:]...)...)
	}
	return string(runes)
}
