package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
)

// useMigrations swaps MigrationsFS for the duration of a test.
func useMigrations(t *testing.T, files fstest.MapFS) {
	t.Helper()

	origFS, origDir := MigrationsFS, MigrationsDir
	MigrationsFS, MigrationsDir = files, "."
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
}

func sqlFile(s string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(s)}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()

	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20261001_100000_widgets.up.sql":   sqlFile("CREATE TABLE widgets (id TEXT PRIMARY KEY);"),
		"20261001_100000_widgets.down.sql": sqlFile("DROP TABLE widgets;"),
		"20261002_090000_gadgets.up.sql":   sqlFile("CREATE TABLE gadgets (id TEXT PRIMARY KEY);"),
		"README.md":                        sqlFile("ignored"),
	})

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "widgets") || !tableExists(t, db, "gadgets") {
		t.Fatal("expected widgets and gadgets tables")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2/0", len(applied), len(pending))
	}

	// Idempotent
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20261001_100000_widgets.up.sql":   sqlFile("CREATE TABLE widgets (id TEXT PRIMARY KEY);"),
		"20261001_100000_widgets.down.sql": sqlFile("DROP TABLE widgets;"),
	})

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "widgets") {
		t.Error("widgets should have been dropped")
	}

	_, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %v, want one entry", pending)
	}

	// Nothing left to roll back
	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestMigrateDownWithoutScript(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20261001_100000_widgets.up.sql": sqlFile("CREATE TABLE widgets (id TEXT PRIMARY KEY);"),
	})

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); !errors.Is(err, ErrNoDownMigration) {
		t.Errorf("MigrateDown() error = %v, want ErrNoDownMigration", err)
	}
}

func TestMigrateFailureRollsBack(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20261001_100000_good.up.sql": sqlFile("CREATE TABLE good (id TEXT);"),
		"20261002_100000_bad.up.sql":  sqlFile("CREATE TABLE half (id TEXT); THIS IS NOT SQL;"),
	})

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() should fail on invalid SQL")
	}
	if !tableExists(t, db, "good") {
		t.Error("first migration should stay applied")
	}
	if tableExists(t, db, "half") {
		t.Error("failed migration should be rolled back")
	}
}

func TestMigrateNoFilesystem(t *testing.T) {
	origFS := MigrationsFS
	MigrationsFS = nil
	t.Cleanup(func() { MigrationsFS = origFS })

	db := openTestDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate() with no migrations error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantDesc    string
		wantErr     bool
	}{
		{"20261016_120000_initial_schema.up.sql", "20261016_120000", "initial_schema", false},
		{"20261016_120000_initial_schema.down.sql", "20261016_120000", "initial_schema", false},
		{"20261016_add_index.up.sql", "", "", true},
		{"initial.up.sql", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, desc, err := parseMigrationFilename(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if version != tt.wantVersion || desc != tt.wantDesc {
				t.Errorf("got (%q, %q), want (%q, %q)", version, desc, tt.wantVersion, tt.wantDesc)
			}
		})
	}
}
