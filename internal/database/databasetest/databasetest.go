// Package databasetest opens throwaway migrated databases for tests.
package databasetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/credit-ledger-go/internal/database"
)

// New returns a migrated SQLite database in t.TempDir, closed on cleanup.
func New(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Connect("sqlite://" + filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}
