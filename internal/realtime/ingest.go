package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/beacon-notify-core/internal/auth"
	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/mqtt"
)

// UserLookup resolves user IDs. *auth.SQLiteUserRepository satisfies it.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*auth.User, error)
}

// ErrIngestTopic is returned for messages outside the ingest topic tree.
var ErrIngestTopic = errors.New("not an ingest topic")

const defaultIngestTimeout = 5 * time.Second

// Ingest feeds proximity readings published over MQTT by beacon gateways
// into the Router, exactly as if the user's client had sent them.
type Ingest struct {
	router  *Router
	users   UserLookup
	logger  Logger
	timeout time.Duration
}

// NewIngest creates an Ingest.
func NewIngest(router *Router, users UserLookup) *Ingest {
	return &Ingest{
		router:  router,
		users:   users,
		logger:  noopLogger{},
		timeout: defaultIngestTimeout,
	}
}

// SetLogger sets the logger for the ingest.
func (i *Ingest) SetLogger(logger Logger) {
	i.logger = logger
}

// HandleMessage processes one message from mqtt.Topics.AllIngestProximity.
// Its signature matches mqtt.MessageHandler.
func (i *Ingest) HandleMessage(topic string, payload []byte) error {
	userID, ok := mqtt.ParseIngestTopic(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrIngestTopic, topic)
	}

	report, err := DecodeProximityReport(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	user, err := i.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolving ingest user %s: %w", userID, err)
	}
	if !user.IsActive {
		return fmt.Errorf("ingest user %s: %w", userID, auth.ErrUserInactive)
	}

	i.logger.Info("mqtt proximity reading received",
		"user_id", userID, "session_key", SessionKey(userID), "beacon_id", report.BeaconID)

	_, err = i.router.ReportProximity(ctx, userID, report)
	return err
}
