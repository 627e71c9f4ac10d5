package beacon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Gateway is the persistence contract used by the realtime event router.
type Gateway interface {
	// GetBeacon returns the beacon or ErrBeaconNotFound.
	GetBeacon(ctx context.Context, id string) (*Beacon, error)

	// CreateProximityEvent stores ev, assigning ID and Timestamp when empty.
	CreateProximityEvent(ctx context.Context, ev *ProximityEvent) error

	// GetNotification returns the notification owned by userID, or
	// ErrNotificationNotFound if it does not exist or belongs to someone else.
	GetNotification(ctx context.Context, userID, id string) (*Notification, error)

	// MarkNotificationRead sets is_read. Marking an already-read
	// notification succeeds and leaves read_at untouched.
	MarkNotificationRead(ctx context.Context, userID, id string) error

	// CreateNotification stores n, assigning ID and CreatedAt when empty.
	CreateNotification(ctx context.Context, n *Notification) error
}

// SQLiteRepository implements Gateway on SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateBeacon registers a beacon. The ID is generated if empty.
func (r *SQLiteRepository) CreateBeacon(ctx context.Context, b *Beacon) error {
	if b.ID == "" {
		b.ID = "bcn-" + uuid.NewString()[:8]
	}
	if b.UUID == "" {
		b.UUID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	b.CreatedAt, b.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO beacons (id, uuid, name, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.UUID, b.Name, boolToInt(b.IsActive), now.Unix(), now.Unix(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrBeaconExists
		}
		return fmt.Errorf("creating beacon: %w", err)
	}
	return nil
}

// GetBeacon returns the beacon with id.
func (r *SQLiteRepository) GetBeacon(ctx context.Context, id string) (*Beacon, error) {
	var (
		b                    Beacon
		isActive             int
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, uuid, name, is_active, created_at, updated_at FROM beacons WHERE id = ?`, id,
	).Scan(&b.ID, &b.UUID, &b.Name, &isActive, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBeaconNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting beacon %s: %w", id, err)
	}

	b.IsActive = isActive != 0
	b.CreatedAt = time.Unix(createdAt, 0).UTC()
	b.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &b, nil
}

// CreateProximityEvent stores ev.
func (r *SQLiteRepository) CreateProximityEvent(ctx context.Context, ev *ProximityEvent) error {
	if ev.ID == "" {
		ev.ID = "prx-" + uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	ev.Timestamp = ev.Timestamp.Truncate(time.Millisecond)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO proximity_events (id, beacon_id, user_id, distance, motion_detected, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.BeaconID, ev.UserID, ev.Distance, boolToInt(ev.MotionDetected), ev.Timestamp.UnixMilli(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return ErrBeaconNotFound
		}
		return fmt.Errorf("creating proximity event: %w", err)
	}
	return nil
}

// ListProximityEvents returns a user's most recent events, newest first.
func (r *SQLiteRepository) ListProximityEvents(ctx context.Context, userID string, limit int) ([]ProximityEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, beacon_id, user_id, distance, motion_detected, timestamp
		 FROM proximity_events WHERE user_id = ?
		 ORDER BY timestamp DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing proximity events: %w", err)
	}
	defer rows.Close()

	var events []ProximityEvent
	for rows.Next() {
		var (
			ev     ProximityEvent
			motion int
			ts     int64
		)
		if err := rows.Scan(&ev.ID, &ev.BeaconID, &ev.UserID, &ev.Distance, &motion, &ts); err != nil {
			return nil, fmt.Errorf("scanning proximity event: %w", err)
		}
		ev.MotionDetected = motion != 0
		ev.Timestamp = time.UnixMilli(ts).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating proximity events: %w", err)
	}
	return events, nil
}

// CreateNotification stores n.
func (r *SQLiteRepository) CreateNotification(ctx context.Context, n *Notification) error {
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	if !n.Priority.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, n.Priority)
	}
	if n.ID == "" {
		n.ID = "ntf-" + uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.CreatedAt = n.CreatedAt.Truncate(time.Second)

	var beaconID any
	if n.BeaconID != "" {
		beaconID = n.BeaconID
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, beacon_id, message, priority, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		n.ID, n.UserID, beaconID, n.Message, string(n.Priority), n.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	n.IsRead = false
	n.ReadAt = nil
	return nil
}

// GetNotification returns the notification id owned by userID.
func (r *SQLiteRepository) GetNotification(ctx context.Context, userID, id string) (*Notification, error) {
	var (
		n         Notification
		beaconID  sql.NullString
		priority  string
		isRead    int
		readAt    sql.NullInt64
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, beacon_id, message, priority, is_read, read_at, created_at
		 FROM notifications WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&n.ID, &n.UserID, &beaconID, &n.Message, &priority, &isRead, &readAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification %s: %w", id, err)
	}

	n.BeaconID = beaconID.String
	n.Priority = Priority(priority)
	n.IsRead = isRead != 0
	if readAt.Valid {
		t := time.Unix(readAt.Int64, 0).UTC()
		n.ReadAt = &t
	}
	n.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &n, nil
}

// MarkNotificationRead flips is_read for the user's notification.
func (r *SQLiteRepository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = ?
		 WHERE id = ? AND user_id = ? AND is_read = 0`,
		time.Now().UTC().Unix(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows > 0 {
		return nil
	}

	// Zero rows: either already read or not this user's notification.
	if _, err := r.GetNotification(ctx, userID, id); err != nil {
		return err
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
