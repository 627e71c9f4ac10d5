package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/beacon-notify-core/internal/beacon"
)

// NotificationRule decides when a proximity event should notify the user.
type NotificationRule struct {
	NearDistance         float64
	HighPriorityDistance float64
	Cooldown             time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewNotificationRule creates a rule that fires within near meters and
// escalates to HIGH within high meters.
func NewNotificationRule(near, high float64, cooldown time.Duration) *NotificationRule {
	return &NotificationRule{
		NearDistance:         near,
		HighPriorityDistance: high,
		Cooldown:             cooldown,
		last:                 make(map[string]time.Time),
	}
}

// Evaluate returns the notification to create for ev against b, or nil.
// A returned notification starts the cooldown for that user and beacon.
func (r *NotificationRule) Evaluate(b *beacon.Beacon, ev *beacon.ProximityEvent) *beacon.Notification {
	if b == nil || !b.IsActive || ev.Distance > r.NearDistance {
		return nil
	}

	key := ev.UserID + "\x00" + b.ID

	r.mu.Lock()
	if last, ok := r.last[key]; ok && ev.Timestamp.Sub(last) < r.Cooldown {
		r.mu.Unlock()
		return nil
	}
	r.last[key] = ev.Timestamp
	r.prune(ev.Timestamp)
	r.mu.Unlock()

	priority := beacon.PriorityMedium
	if ev.Distance <= r.HighPriorityDistance {
		priority = beacon.PriorityHigh
	}

	return &beacon.Notification{
		UserID:    ev.UserID,
		BeaconID:  b.ID,
		Message:   fmt.Sprintf("Near %s (%.1f m)", b.Name, ev.Distance),
		Priority:  priority,
		CreatedAt: ev.Timestamp,
	}
}

// Reset clears the cooldown for a user and beacon, e.g. after the
// notification could not be stored.
func (r *NotificationRule) Reset(userID, beaconID string) {
	r.mu.Lock()
	delete(r.last, userID+"\x00"+beaconID)
	r.mu.Unlock()
}

// prune drops expired cooldown entries. Caller holds r.mu.
func (r *NotificationRule) prune(now time.Time) {
	const pruneThreshold = 4096
	if len(r.last) < pruneThreshold {
		return
	}
	for k, t := range r.last {
		if now.Sub(t) >= r.Cooldown {
			delete(r.last, k)
		}
	}
}
