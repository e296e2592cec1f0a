// Package database provides the event-store client helper for integration
// tests.
package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentra-sec/sentra/pkg/database"
	"github.com/sentra-sec/sentra/test/util"
)

// NewTestClient creates a migrated event-store client on a per-test schema.
// In CI (CI_DATABASE_URL set) it connects to the external PostgreSQL service
// container; locally it spins up a testcontainer. Cleanup is automatic.
func NewTestClient(t *testing.T) *database.Client {
	db := util.SetupTestDatabase(t)

	client := database.NewClientFromDB(db)
	require.NoError(t, database.CreateSearchIndexes(context.Background(), client))
	return client
}
