// Package safetynlp implements Branch C: a local encoder classifier scoring
// the input on a continuous 0..1 risk scale.
package safetynlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sentra-sec/sentra/pkg/config"
	"github.com/sentra-sec/sentra/pkg/models"
)

// Classifier scores one text for safety risk.
type Classifier interface {
	Classify(ctx context.Context, text string) (Risk, error)
}

// Risk is one classifier response.
type Risk struct {
	Risk       float64 `json:"risk"`       // 0..1
	Confidence float64 `json:"confidence"` // 0..1
	Label      string  `json:"label,omitempty"`
}

// HTTPClassifier calls the local inference sidecar.
type HTTPClassifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClassifier creates the sidecar client. Deadlines come from the
// caller's context.
func NewHTTPClassifier(endpoint string) *HTTPClassifier {
	return &HTTPClassifier{
		endpoint: endpoint,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        8,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

// Classify POSTs the text and returns the model's risk assessment.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Risk, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return Risk{}, fmt.Errorf("failed to marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/classify", bytes.NewReader(body))
	if err != nil {
		return Risk{}, fmt.Errorf("failed to build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Risk{}, fmt.Errorf("safety classifier unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Risk{}, fmt.Errorf("safety classifier returned %d: %s", resp.StatusCode, msg)
	}

	var out Risk
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Risk{}, fmt.Errorf("failed to decode classify response: %w", err)
	}
	if out.Risk < 0 || out.Risk > 1 {
		return Risk{}, fmt.Errorf("safety classifier returned out-of-range risk %v", out.Risk)
	}
	return out, nil
}

// RiskThreshold returns the active model_high_risk cutoff. Reading through a
// func keeps a reloaded config snapshot visible without restarting the branch.
type RiskThreshold func() float64

// FixedRiskThreshold wraps a static cutoff into a RiskThreshold.
func FixedRiskThreshold(min float64) RiskThreshold {
	return func() float64 { return min }
}

// Branch is detection branch C.
type Branch struct {
	classifier  Classifier
	highRiskMin RiskThreshold
	logger      *slog.Logger
}

// NewBranch wires the safety branch. highRiskMin is the risk threshold for
// the model_high_risk critical signal.
func NewBranch(classifier Classifier, highRiskMin RiskThreshold, logger *slog.Logger) *Branch {
	return &Branch{
		classifier:  classifier,
		highRiskMin: highRiskMin,
		logger:      logger.With("branch", string(models.BranchSafetyNLP)),
	}
}

// NewBranchFromStore wires the branch with its HTTP classifier. The sidecar
// endpoint is fixed at boot; the risk cutoff follows the active snapshot.
func NewBranchFromStore(store *config.Store, logger *slog.Logger) *Branch {
	classifier := NewHTTPClassifier(store.Snapshot().Branches.Safety.Endpoint)
	return NewBranch(classifier, func() float64 {
		return store.Snapshot().Branches.Safety.HighRiskMin
	}, logger)
}

// Analyze classifies the normalized text. Classifier failures degrade the
// branch rather than erroring.
func (b *Branch) Analyze(ctx context.Context, in models.NormalizedInput) (models.BranchResult, error) {
	start := time.Now()

	risk, err := b.classifier.Classify(ctx, in.Normalized)
	if err != nil {
		b.logger.WarnContext(ctx, "classification failed, branch degraded", "error", err)
		return models.DegradedResult(models.BranchSafetyNLP, int(time.Since(start).Milliseconds())), nil
	}

	score := int(risk.Risk*100 + 0.5)
	res := models.NewBranchResult(models.BranchSafetyNLP, score, risk.Confidence)
	res.TimingMs = int(time.Since(start).Milliseconds())
	res.CriticalSignals[models.SignalModelHighRisk] = risk.Risk >= b.highRiskMin()
	res.Features = map[string]any{
		"risk":  risk.Risk,
		"label": risk.Label,
	}
	return res, nil
}
