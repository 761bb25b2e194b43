// Package testutil provides database setup and fixture builders for tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fiberline/switchyard/internal/infrastructure/sqlite"
)

// NewTestDB creates a migrated SQLite database in a per-test temp directory.
// The database is closed automatically when the test finishes.
func NewTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "switchyard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
