package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/database"
	_ "github.com/nerrad567/beacon-notify-core/migrations"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
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

func TestCreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	ack := &Entry{
		Action:     ActionAcknowledge,
		EntityType: EntityNotification,
		EntityID:   "ntf-1",
		UserID:     "7",
		Source:     SourceWebSocket,
		CreatedAt:  time.Now().Add(-time.Minute),
	}
	if err := repo.Create(ctx, ack); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ack.ID == "" {
		t.Error("Create() did not assign an ID")
	}

	reject := &Entry{
		Action:     ActionAuthReject,
		EntityType: EntityConnection,
		Source:     SourceWebSocket,
		Details:    map[string]any{"reason": "token expired"},
	}
	if err := repo.Create(ctx, reject); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	all, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(all))
	}
	if all[0].ID != reject.ID {
		t.Errorf("newest entry = %s, want %s", all[0].ID, reject.ID)
	}
	if got := all[0].Details["reason"]; got != "token expired" {
		t.Errorf("details reason = %v", got)
	}
	if all[0].UserID != "" {
		t.Errorf("rejection user_id = %q, want empty", all[0].UserID)
	}

	byUser, err := repo.List(ctx, Filter{UserID: "7", Action: ActionAcknowledge})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(byUser) != 1 || byUser[0].EntityID != "ntf-1" {
		t.Errorf("filtered List() = %+v", byUser)
	}
}

func TestListLimit(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := repo.Create(ctx, &Entry{Action: ActionAuthReject, EntityType: EntityConnection, Source: SourceWebSocket}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := repo.List(ctx, Filter{Limit: 3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("List() returned %d entries, want 3", len(got))
	}
}
