package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every Beacon Notify topic.
const TopicPrefix = "beaconnotify"

// Topics builds Beacon Notify topic names.
//
//	topic := mqtt.Topics{}.UserProximity("42")
//	// beaconnotify/user/42/proximity
type Topics struct{}

// SystemStatus is the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// UserProximity carries proximity events recorded for a user.
func (Topics) UserProximity(userID string) string {
	return fmt.Sprintf("%s/user/%s/proximity", TopicPrefix, userID)
}

// UserNotification carries notifications created for a user.
func (Topics) UserNotification(userID string) string {
	return fmt.Sprintf("%s/user/%s/notification", TopicPrefix, userID)
}

// IngestProximity is where a beacon gateway publishes a reading on behalf
// of a user.
func (Topics) IngestProximity(userID string) string {
	return fmt.Sprintf("%s/ingest/%s/proximity", TopicPrefix, userID)
}

// AllIngestProximity matches IngestProximity for every user.
//
// Pattern: beaconnotify/ingest/+/proximity
func (Topics) AllIngestProximity() string {
	return TopicPrefix + "/ingest/+/proximity"
}

// AllUserEvents matches every per-user topic.
//
// Pattern: beaconnotify/user/#
func (Topics) AllUserEvents() string {
	return TopicPrefix + "/user/#"
}

// ParseIngestTopic extracts the user ID from an ingest topic.
func ParseIngestTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "ingest" || parts[3] != "proximity" {
		return "", false
	}
	if parts[2] == "" || strings.ContainsAny(parts[2], "+#") {
		return "", false
	}
	return parts[2], true
}
