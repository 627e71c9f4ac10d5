package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/database"
	_ "github.com/nerrad567/beacon-notify-core/migrations"
)

const testSecret = "test-secret-key-for-jwt-signing-0123456789"

// testDB opens a temp-file SQLite database with the full schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

func createUser(t *testing.T, repo *SQLiteUserRepository, username string, active bool) *User {
	t.Helper()

	u := &User{Username: username, DisplayName: username, IsActive: active}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return u
}
