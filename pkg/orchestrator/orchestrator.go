// Package orchestrator runs the full analysis pipeline for one request:
// normalization, the concurrent three-branch fan-out, arbitration, the
// redaction stage and the analytical event emission.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentra-sec/sentra/pkg/arbiter"
	"github.com/sentra-sec/sentra/pkg/config"
	"github.com/sentra-sec/sentra/pkg/events"
	"github.com/sentra-sec/sentra/pkg/models"
	"github.com/sentra-sec/sentra/pkg/normalizer"
	"github.com/sentra-sec/sentra/pkg/pii"
)

// Stable wire reason strings. Clients key automation off these values, so
// they never change meaning between releases.
const (
	ReasonNoAction           = "no_action_specified"
	ReasonArbiterBlock       = "arbiter_block"
	ReasonArbiterSanitize    = "arbiter_sanitize"
	ReasonServiceUnavailable = "service_unavailable"
	ReasonExtractionFailed   = "extraction_failed"
	ReasonFilteringDisabled  = "filtering_disabled"
)

const actionAllow = "allow"

// DetectionBranch is the uniform contract of the three detection branches.
// Analyze must honor ctx cancellation; the orchestrator enforces per-branch
// budgets through the context deadline.
type DetectionBranch interface {
	Analyze(ctx context.Context, in models.NormalizedInput) (models.BranchResult, error)
}

// Outcome is the result of one full pipeline run, ready to be shaped into
// the wire response.
type Outcome struct {
	Action    string
	Reason    string
	Sanitized string // redacted prompt, set only for the sanitize action
	RequestID string
	Degraded  bool
	TimingMs  int
	Verdict   models.ArbiterVerdict
	Entities  []models.PIIEntity
}

// Orchestrator owns the per-request pipeline. It is safe for concurrent use;
// each request reads one immutable config snapshot for its whole lifetime.
type Orchestrator struct {
	config     *config.Store
	normalizer *normalizer.Normalizer
	branches   map[models.BranchID]DetectionBranch
	pii        *pii.Detector
	sink       *events.Sink
	cache      *verdictCache
	sem        chan struct{}
	logger     *slog.Logger
	version    string
}

// New wires the pipeline. The sink may be nil when event persistence is not
// configured. The admission semaphore and cache are sized from the boot
// snapshot and do not resize on reload.
func New(store *config.Store, branches map[models.BranchID]DetectionBranch, detector *pii.Detector, sink *events.Sink, logger *slog.Logger, version string) *Orchestrator {
	cfg := store.Snapshot()
	maxConcurrent := cfg.Server.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 64
	}
	var cache *verdictCache
	if cfg.Cache.Enabled {
		cache = newVerdictCache(cfg.Cache)
	}
	return &Orchestrator{
		config:     store,
		normalizer: normalizer.New(),
		branches:   branches,
		pii:        detector,
		sink:       sink,
		cache:      cache,
		sem:        make(chan struct{}, maxConcurrent),
		logger:     logger.With("component", "orchestrator"),
		version:    version,
	}
}

// Analyze runs one envelope through the pipeline and always returns a usable
// outcome: when the detection stack is unavailable the request fails open
// with the allow action rather than surfacing an internal error.
func (o *Orchestrator) Analyze(ctx context.Context, env models.InputEnvelope) Outcome {
	start := time.Now()
	cfg := o.config.Snapshot()

	requestID := env.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	// Kill switch short-circuits before admission: the prompt passes
	// unanalyzed and no event is recorded.
	if cfg.Server.FilteringDisabled {
		o.logger.Debug("filtering disabled, passing prompt through", "request_id", requestID)
		return Outcome{
			Action:    actionAllow,
			Reason:    ReasonFilteringDisabled,
			RequestID: requestID,
			TimingMs:  elapsedMs(start),
		}
	}

	budget := time.Duration(cfg.Server.RequestBudgetMs) * time.Millisecond
	if budget <= 0 {
		budget = 100 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		return o.failOpen(requestID, start, "admission wait exceeded request budget")
	}

	in := o.normalizer.Normalize(env.Text, env.Lang)

	var (
		verdict  models.ArbiterVerdict
		results  map[models.BranchID]models.BranchResult
		cacheKey string
		cached   bool
	)
	if o.cache != nil && cfg.Cache.Enabled {
		cacheKey = normalizedKey(in.Normalized)
		verdict, cached = o.cache.get(cacheKey)
	}
	if !cached {
		results = o.fanOut(ctx, cfg, in)
		verdict = arbiter.New(cfg.Arbiter, o.logger).Decide(results)
		if allDegraded(results) {
			o.emit(requestID, env.ClientID, in, results, verdict, nil, false, start)
			return o.failOpen(requestID, start, "all detection branches degraded")
		}
		// Verdicts computed with a degraded branch are not representative of
		// the prompt; only fully-signalled runs are worth memoizing.
		if o.cache != nil && cfg.Cache.Enabled && !anyDegraded(results) {
			o.cache.put(cacheKey, verdict)
		}
	}

	// Redaction runs on the raw text so reported spans line up with what the
	// client sent. A blocked request is never redacted, and a degradation-floor
	// verdict is never upgraded: with most branches down there is no working
	// signal source to justify a sanitize.
	var (
		entities    []models.PIIEntity
		piiDegraded bool
		sanitized   string
	)
	if verdict.FinalStatus != models.StatusBlocked && verdict.Source != models.SourceDegradationFloor {
		entities, piiDegraded = o.pii.Detect(ctx, env.Text)
		if anyValidated(entities) {
			if verdict.FinalStatus == models.StatusAllowed {
				verdict.FinalStatus = models.StatusSanitized
			}
			sanitized = pii.Redact(env.Text, entities, cfg.PII.Tokens)
		}
	}

	reason := ReasonNoAction
	switch verdict.FinalStatus {
	case models.StatusBlocked:
		reason = ReasonArbiterBlock
	case models.StatusSanitized:
		reason = ReasonArbiterSanitize
	}

	o.emit(requestID, env.ClientID, in, results, verdict, entities, cached, start)

	return Outcome{
		Action:    verdict.Action(),
		Reason:    reason,
		Sanitized: sanitized,
		RequestID: requestID,
		Degraded:  anyDegraded(results) || piiDegraded,
		TimingMs:  elapsedMs(start),
		Verdict:   verdict,
		Entities:  entities,
	}
}

// fanOut runs the three branches concurrently, each under its own budget,
// and joins within max(budgets) plus the configured grace. A branch that
// misses the join barrier is reported as degraded; its goroutine finishes in
// the background and its late result is discarded.
func (o *Orchestrator) fanOut(ctx context.Context, cfg *config.Config, in models.NormalizedInput) map[models.BranchID]models.BranchResult {
	ids := []models.BranchID{models.BranchHeuristics, models.BranchSemantic, models.BranchSafetyNLP}

	type pending struct {
		id   models.BranchID
		done chan models.BranchResult
	}
	runs := make([]pending, 0, len(ids))
	var maxBudget time.Duration
	for _, id := range ids {
		budget := branchBudget(cfg, id)
		if budget > maxBudget {
			maxBudget = budget
		}
		p := pending{id: id, done: make(chan models.BranchResult, 1)}
		runs = append(runs, p)

		branch, ok := o.branches[id]
		if !ok {
			p.done <- models.DegradedResult(id, 0)
			continue
		}
		go o.runBranch(ctx, branch, id, budget, in, p.done)
	}

	grace := time.Duration(cfg.Branches.JoinGraceMs) * time.Millisecond
	if grace <= 0 {
		grace = 5 * time.Millisecond
	}
	timer := time.NewTimer(maxBudget + grace)
	defer timer.Stop()

	results := make(map[models.BranchID]models.BranchResult, len(runs))
	expired := false
	for _, run := range runs {
		if !expired {
			select {
			case res := <-run.done:
				results[run.id] = res
				continue
			case <-timer.C:
				expired = true
			}
		}
		select {
		case res := <-run.done:
			results[run.id] = res
		default:
			o.logger.Warn("branch missed join barrier", "branch", string(run.id))
			results[run.id] = models.DegradedResult(run.id, int((maxBudget + grace).Milliseconds()))
		}
	}
	return results
}

func (o *Orchestrator) runBranch(ctx context.Context, b DetectionBranch, id models.BranchID, budget time.Duration, in models.NormalizedInput, done chan<- models.BranchResult) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("detection branch panicked", "branch", string(id), "panic", r)
			done <- models.DegradedResult(id, elapsedMs(started))
		}
	}()

	bctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	res, err := b.Analyze(bctx, in)
	if err != nil {
		o.logger.Warn("detection branch failed", "branch", string(id), "error", err)
		done <- models.DegradedResult(id, elapsedMs(started))
		return
	}
	res.BranchID = id
	res.TimingMs = elapsedMs(started)
	done <- res
}

// failOpen is the availability escape hatch: the prompt passes through
// unfiltered and the event is loud enough to page on. The error id ties the
// client-visible response to the server log line.
func (o *Orchestrator) failOpen(requestID string, start time.Time, cause string) Outcome {
	errorID := uuid.NewString()
	o.logger.Error("analysis unavailable, failing open",
		"request_id", requestID, "error_id", errorID, "cause", cause)
	return Outcome{
		Action:    actionAllow,
		Reason:    ReasonServiceUnavailable,
		RequestID: requestID,
		Degraded:  true,
		TimingMs:  elapsedMs(start),
	}
}

func (o *Orchestrator) emit(requestID, clientID string, in models.NormalizedInput, results map[models.BranchID]models.BranchResult, verdict models.ArbiterVerdict, entities []models.PIIEntity, fromCache bool, start time.Time) {
	if o.sink == nil {
		return
	}
	rec := models.NewEventRecord(requestID, clientID, in, orderedResults(results), verdict, entities, o.version)
	rec.FromCache = fromCache
	rec.TimingMs = elapsedMs(start)
	if !o.sink.Enqueue(rec) {
		o.logger.Warn("event record not queued", "request_id", requestID)
	}
}

func branchBudget(cfg *config.Config, id models.BranchID) time.Duration {
	var ms int
	switch id {
	case models.BranchHeuristics:
		ms = cfg.Branches.Heuristics.BudgetMs
	case models.BranchSemantic:
		ms = cfg.Branches.Semantic.BudgetMs
	default:
		ms = cfg.Branches.Safety.BudgetMs
	}
	if ms <= 0 {
		ms = 50
	}
	return time.Duration(ms) * time.Millisecond
}

// orderedResults flattens the result map into the stable A, B, C order the
// event schema expects.
func orderedResults(results map[models.BranchID]models.BranchResult) []models.BranchResult {
	if len(results) == 0 {
		return nil
	}
	ordered := make([]models.BranchResult, 0, len(results))
	for _, id := range []models.BranchID{models.BranchHeuristics, models.BranchSemantic, models.BranchSafetyNLP} {
		if r, ok := results[id]; ok {
			ordered = append(ordered, r)
		}
	}
	return ordered
}

func anyDegraded(results map[models.BranchID]models.BranchResult) bool {
	for _, r := range results {
		if r.Degraded {
			return true
		}
	}
	return false
}

func anyValidated(entities []models.PIIEntity) bool {
	for _, e := range entities {
		if e.Validated {
			return true
		}
	}
	return false
}

func allDegraded(results map[models.BranchID]models.BranchResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Degraded {
			return false
		}
	}
	return true
}

func normalizedKey(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func elapsedMs(start time.Time) int {
	return int(time.Since(start).Milliseconds())
}
