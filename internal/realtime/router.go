package realtime

import (
	"context"
	"time"

	"github.com/nerrad567/beacon-notify-core/internal/audit"
	"github.com/nerrad567/beacon-notify-core/internal/beacon"
)

// Telemetry receives a copy of every recorded proximity reading.
// *influxdb.Client satisfies it.
type Telemetry interface {
	WriteProximityMetric(userID, beaconID string, distance float64, motion bool, ts time.Time)
}

// AuditRecorder stores audit entries. *audit.SQLiteRepository satisfies it.
type AuditRecorder interface {
	Create(ctx context.Context, e *audit.Entry) error
}

// RouterDeps holds the Router's collaborators. Store and Fanout are
// required; nil optional fields disable their feature.
type RouterDeps struct {
	Store     beacon.Gateway
	Fanout    Fanout
	Rule      *NotificationRule
	Telemetry Telemetry
	Events    EventSink
	Audit     AuditRecorder
	Logger    Logger
}

// Router turns validated client messages into persisted records and
// session broadcasts.
type Router struct {
	store     beacon.Gateway
	fanout    Fanout
	rule      *NotificationRule
	telemetry Telemetry
	events    EventSink
	audit     AuditRecorder
	logger    Logger
	now       func() time.Time
}

// NewRouter creates a Router from deps.
func NewRouter(deps RouterDeps) *Router {
	r := &Router{
		store:     deps.Store,
		fanout:    deps.Fanout,
		rule:      deps.Rule,
		telemetry: deps.Telemetry,
		events:    deps.Events,
		audit:     deps.Audit,
		logger:    deps.Logger,
		now:       time.Now,
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	return r
}

// RecordProximity stores a proximity event for userID. It fails with
// KindBeaconNotFound when the beacon does not exist and KindPersistence
// on any other storage failure.
func (r *Router) RecordProximity(ctx context.Context, userID string, report ProximityReport) (*beacon.ProximityEvent, error) {
	ev, _, err := r.recordProximity(ctx, userID, report)
	return ev, err
}

func (r *Router) recordProximity(ctx context.Context, userID string, report ProximityReport) (*beacon.ProximityEvent, *beacon.Beacon, error) {
	b, err := r.store.GetBeacon(ctx, report.BeaconID)
	if err != nil {
		return nil, nil, r.storeFailure("beacon lookup failed", err, "user_id", userID, "beacon_id", report.BeaconID)
	}

	ev := &beacon.ProximityEvent{
		BeaconID:       b.ID,
		UserID:         userID,
		Distance:       report.Distance,
		MotionDetected: report.MotionDetected,
		Timestamp:      r.now().UTC(),
	}
	if err := r.store.CreateProximityEvent(ctx, ev); err != nil {
		return nil, nil, r.storeFailure("storing proximity event failed", err, "user_id", userID, "beacon_id", b.ID)
	}

	if r.telemetry != nil {
		r.telemetry.WriteProximityMetric(userID, b.ID, ev.Distance, ev.MotionDetected, ev.Timestamp)
	}
	if r.events != nil {
		r.events.ProximityRecorded(ev)
	}
	return ev, b, nil
}

// ReportProximity records the event, broadcasts a proximity_update to the
// user's own session and applies the notification rule.
func (r *Router) ReportProximity(ctx context.Context, userID string, report ProximityReport) (*beacon.ProximityEvent, error) {
	ev, b, err := r.recordProximity(ctx, userID, report)
	if err != nil {
		return nil, err
	}

	r.fanout.Fanout(ctx, SessionKey(userID), encode(ProximityUpdate{
		Type:      TypeProximityUpdate,
		BeaconID:  ev.BeaconID,
		Distance:  ev.Distance,
		Timestamp: FormatTimestamp(ev.Timestamp),
	}))

	if r.rule != nil {
		r.notify(ctx, b, ev)
	}
	return ev, nil
}

// notify creates and broadcasts a notification when the rule fires.
// Failures are logged; the proximity event itself already succeeded.
func (r *Router) notify(ctx context.Context, b *beacon.Beacon, ev *beacon.ProximityEvent) {
	n := r.rule.Evaluate(b, ev)
	if n == nil {
		return
	}

	if err := r.store.CreateNotification(ctx, n); err != nil {
		r.rule.Reset(ev.UserID, b.ID)
		r.logger.Error("creating proximity notification failed",
			"user_id", ev.UserID, "beacon_id", b.ID, "error", err)
		return
	}

	r.fanout.Fanout(ctx, SessionKey(n.UserID), encode(NotificationUpdate{
		Type:           TypeNotification,
		NotificationID: n.ID,
		BeaconID:       n.BeaconID,
		Message:        n.Message,
		Priority:       string(n.Priority),
		Timestamp:      FormatTimestamp(n.CreatedAt),
	}))

	if r.events != nil {
		r.events.NotificationCreated(n)
	}
}

// AcknowledgeNotification marks the user's notification read. Another
// user's notification is reported as KindNotificationNotFound, and
// acknowledging an already-read notification succeeds.
func (r *Router) AcknowledgeNotification(ctx context.Context, userID, notificationID string) error {
	n, err := r.store.GetNotification(ctx, userID, notificationID)
	if err != nil {
		return r.storeFailure("notification lookup failed", err, "user_id", userID, "notification_id", notificationID)
	}

	if !n.IsRead {
		if err := r.store.MarkNotificationRead(ctx, userID, n.ID); err != nil {
			return r.storeFailure("marking notification read failed", err, "user_id", userID, "notification_id", n.ID)
		}
	}

	if r.audit != nil {
		entry := &audit.Entry{
			Action:     audit.ActionAcknowledge,
			EntityType: audit.EntityNotification,
			EntityID:   n.ID,
			UserID:     userID,
			Source:     audit.SourceWebSocket,
			Details:    map[string]any{"already_read": n.IsRead},
		}
		if err := r.audit.Create(ctx, entry); err != nil {
			r.logger.Warn("recording acknowledgement audit entry failed", "notification_id", n.ID, "error", err)
		}
	}
	return nil
}

// storeFailure classifies err and logs persistence failures with their
// full cause.
func (r *Router) storeFailure(msg string, err error, args ...any) *Error {
	rtErr := classifyStoreError(err)
	if rtErr.Kind == KindPersistence {
		r.logger.Error(msg, append(args, "error", err)...)
	}
	return rtErr
}
