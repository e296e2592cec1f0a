package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sentra-sec/sentra/pkg/models"
)

// Store appends event records to the analytical store.
type Store interface {
	Insert(ctx context.Context, rec models.EventRecord) error
}

// PostgresStore writes one analysis_events row per record. Branch results,
// verdict and PII summary are stored as JSONB so analysts can query them
// without schema churn.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps the event-store pool (database.Client.DB()).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert appends one record. The stored text is already truncated by the
// record constructor; the literal PII values never reach this row.
func (s *PostgresStore) Insert(ctx context.Context, rec models.EventRecord) error {
	branches, err := json.Marshal(rec.BranchResults)
	if err != nil {
		return fmt.Errorf("failed to marshal branch results: %w", err)
	}
	verdict, err := json.Marshal(rec.Verdict)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}
	pii, err := json.Marshal(rec.PII)
	if err != nil {
		return fmt.Errorf("failed to marshal pii summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_events
		(created_at, request_id, client_id, raw_sha256, raw_length, normalized_text, lang,
		 branch_results, verdict, pii_summary, from_cache, pipeline_version, timing_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.Timestamp, rec.RequestID, rec.ClientID, rec.InputSHA256, rec.InputLength,
		rec.NormalizedText, rec.Lang, branches, verdict, pii, rec.FromCache, rec.PipelineVersion, rec.TimingMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}
