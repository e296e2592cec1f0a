package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// storedTextLimit bounds how much of the normalized input is persisted.
// The full length and hash are retained regardless.
const storedTextLimit = 500

// EventRecord is the write-once analytical row emitted per request.
// FromCache marks verdicts served from the memo cache: those rows carry no
// branch results, so analysts must not read them as full pipeline runs.
type EventRecord struct {
	Timestamp       time.Time      `json:"timestamp"`
	RequestID       string         `json:"request_id"`
	ClientID        string         `json:"client_id"`
	InputLength     int            `json:"input_length"`
	InputSHA256     string         `json:"input_sha256"`
	NormalizedText  string         `json:"normalized_text"`
	Lang            string         `json:"lang"`
	BranchResults   []BranchResult `json:"branch_results"` // exactly A, B, C
	Verdict         ArbiterVerdict `json:"verdict"`
	PII             PIISummary     `json:"pii"`
	FromCache       bool           `json:"from_cache"`
	PipelineVersion string         `json:"pipeline_version"`
	TimingMs        int            `json:"timing_ms"`
}

// NewEventRecord assembles the record, truncating stored text while keeping
// the full-length hash.
func NewEventRecord(requestID, clientID string, in NormalizedInput, branches []BranchResult, verdict ArbiterVerdict, pii []PIIEntity, pipelineVersion string) EventRecord {
	sum := sha256.Sum256([]byte(in.Raw))
	return EventRecord{
		Timestamp:       time.Now().UTC(),
		RequestID:       requestID,
		ClientID:        clientID,
		InputLength:     len([]rune(in.Raw)),
		InputSHA256:     hex.EncodeToString(sum[:]),
		NormalizedText:  truncateRunes(in.Normalized, storedTextLimit),
		Lang:            in.Lang,
		BranchResults:   branches,
		Verdict:         verdict,
		PII:             SummarizePII(pii),
		PipelineVersion: pipelineVersion,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
