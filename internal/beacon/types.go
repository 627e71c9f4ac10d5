package beacon

import (
	"errors"
	"time"
)

// Priority is a notification's urgency.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Beacon is a registered piece of beacon hardware.
type Beacon struct {
	ID        string    `json:"id"`
	UUID      string    `json:"uuid"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProximityEvent records a user's device observing a beacon. Events are
// append-only.
type ProximityEvent struct {
	ID             string    `json:"id"`
	BeaconID       string    `json:"beacon_id"`
	UserID         string    `json:"user_id"`
	Distance       float64   `json:"distance"`
	MotionDetected bool      `json:"motion_detected"`
	Timestamp      time.Time `json:"timestamp"`
}

// Notification is a message for a user. IsRead only ever moves from false
// to true.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	BeaconID  string     `json:"beacon_id,omitempty"`
	Message   string     `json:"message"`
	Priority  Priority   `json:"priority"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Sentinel errors.
var (
	ErrBeaconNotFound       = errors.New("beacon not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrBeaconExists         = errors.New("beacon uuid already registered")
	ErrInvalidPriority      = errors.New("invalid notification priority")
)
