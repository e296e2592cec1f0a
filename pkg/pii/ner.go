package pii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sentra-sec/sentra/pkg/models"
)

// EntityRecognizer finds named entities (PERSON, LOCATION, ORGANIZATION) in
// text. Spans are code-point positions.
type EntityRecognizer interface {
	Recognize(ctx context.Context, text string) ([]models.PIIEntity, error)
}

// HTTPRecognizer calls the NLP sidecar.
type HTTPRecognizer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRecognizer creates the sidecar client.
func NewHTTPRecognizer(endpoint string) *HTTPRecognizer {
	return &HTTPRecognizer{
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

type nerRequest struct {
	Text string `json:"text"`
}

type nerEntity struct {
	Type  string  `json:"type"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
}

type nerResponse struct {
	Entities []nerEntity `json:"entities"`
}

// Recognize POSTs the text and returns the sidecar's entities. Malformed
// spans are skipped rather than failing the whole call.
func (r *HTTPRecognizer) Recognize(ctx context.Context, text string) ([]models.PIIEntity, error) {
	body, err := json.Marshal(nerRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ner request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/ner", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build ner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("ner service returned %d: %s", resp.StatusCode, msg)
	}

	var out nerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode ner response: %w", err)
	}

	textLen := len([]rune(text))
	entities := make([]models.PIIEntity, 0, len(out.Entities))
	for _, e := range out.Entities {
		if e.Start < 0 || e.End <= e.Start || e.End > textLen {
			continue
		}
		entities = append(entities, models.PIIEntity{
			Type:      e.Type,
			Start:     e.Start,
			End:       e.End,
			Score:     e.Score,
			Validated: true,
		})
	}
	return entities, nil
}
