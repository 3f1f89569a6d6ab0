package device

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/bluerial/internal/infrastructure/config"
	"github.com/nerrad567/bluerial/internal/infrastructure/database"
	"github.com/nerrad567/bluerial/migrations"
)

// setupTestDB opens a migrated SQLite database in a temp dir.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "bluerial.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err, "opening test database")
	t.Cleanup(func() {
		db.Close()
	})

	require.NoError(t, db.Migrate(context.Background(), migrations.FS), "migrating test database")
	return db.DB
}

// testDevice creates a known device for testing.
func testDevice(addr uint64, stableID, name string) *KnownDevice {
	return &KnownDevice{
		Address:  addr,
		StableID: stableID,
		Name:     name,
	}
}
