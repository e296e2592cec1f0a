package database

import (
	"context"
	"fmt"
)

// CreateSearchIndexes creates the full-text GIN index analysts use to search
// stored prompts. Kept out of the numbered migrations so the expression can
// change without a schema version bump.
func CreateSearchIndexes(ctx context.Context, c *Client) error {
	_, err := c.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_analysis_events_normalized_gin
		ON analysis_events USING gin(to_tsvector('simple', normalized_text))`)
	if err != nil {
		return fmt.Errorf("failed to create normalized_text GIN index: %w", err)
	}
	return nil
}
