// Package semantic implements Branch B: a dual-corpus HNSW similarity
// search classified by the two-phase rule ladder.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// Prefixes required by the multilingual E5 encoder protocol. Queries and
// corpus passages are embedded in different subspaces; mixing them up
// silently destroys similarity quality.
const (
	QueryPrefix   = "query: "
	PassagePrefix = "passage: "
)

// EmbeddingDim is the encoder output dimensionality.
const EmbeddingDim = 384

// approxCharsPerToken sizes the client-side right-truncation guard. The
// sidecar tokenizes authoritatively; this only bounds the payload.
const approxCharsPerToken = 4

// Embedder produces L2-normalized sentence embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HTTPEmbedder calls the local embedding sidecar.
type HTTPEmbedder struct {
	endpoint  string
	maxTokens int
	client    *http.Client
}

// NewHTTPEmbedder creates an embedder client. The HTTP client keeps
// connections alive; the per-call deadline comes from the caller's context.
func NewHTTPEmbedder(endpoint string, maxTokens int) *HTTPEmbedder {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &HTTPEmbedder{
		endpoint:  endpoint,
		maxTokens: maxTokens,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        8,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding for one text. The text must already carry its
// query/passage prefix. Inputs beyond the token budget are truncated from
// the right.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	runes := []rune(text)
	if limit := e.maxTokens * approxCharsPerToken; len(runes) > limit {
		runes = runes[:limit]
		text = string(runes)
	}

	body, err := json.Marshal(embedRequest{Inputs: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("embedder returned %d: %s", resp.StatusCode, msg)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(out.Embeddings) != 1 || len(out.Embeddings[0]) != EmbeddingDim {
		return nil, fmt.Errorf("embedder returned unexpected shape: %d vectors", len(out.Embeddings))
	}

	return normalizeL2(out.Embeddings[0]), nil
}

// normalizeL2 scales v to unit length. The sidecar already emits unit
// vectors, but the cosine math downstream assumes it.
func normalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
