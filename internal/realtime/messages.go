package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
)

// MessageType is the decoded "type" discriminator of a client message.
type MessageType int

const (
	MessageUnknown MessageType = iota
	MessageProximityEvent
	MessageNotificationAck
)

// Wire type names.
const (
	TypeProximityEvent  = "proximity_event"
	TypeNotificationAck = "notification_ack"
	TypeProximityUpdate = "proximity_update"
	TypeNotification    = "notification"
)

// StatusAcknowledged is the reply to a successful notification_ack.
const StatusAcknowledged = "Notification acknowledged"

// timestampLayout renders ISO-8601 timestamps with microsecond precision.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// ProximityReport is a validated proximity_event payload.
type ProximityReport struct {
	BeaconID       string
	Distance       float64
	MotionDetected bool
}

// Ack is a validated notification_ack payload.
type Ack struct {
	NotificationID string
}

// Inbound is a decoded client message. Exactly one of Proximity and Ack
// is set, matching Type; RawType keeps the discriminator as sent.
type Inbound struct {
	Type      MessageType
	RawType   string
	Proximity *ProximityReport
	Ack       *Ack
}

// DecodeMessage parses a client frame. Errors are *Error of kind
// KindMalformedMessage, KindUnknownMessageType or KindValidation.
func DecodeMessage(data []byte) (Inbound, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return Inbound{}, err
	}

	var in Inbound
	if raw, ok := fields["type"]; ok {
		_ = json.Unmarshal(raw, &in.RawType) //nolint:errcheck // non-string type is treated as unknown
	}

	switch in.RawType {
	case TypeProximityEvent:
		in.Type = MessageProximityEvent
		report, err := decodeProximity(fields)
		if err != nil {
			return in, err
		}
		in.Proximity = &report
	case TypeNotificationAck:
		in.Type = MessageNotificationAck
		id, err := requireID(fields, "notification_id")
		if err != nil {
			return in, err
		}
		in.Ack = &Ack{NotificationID: id}
	default:
		return in, &Error{Kind: KindUnknownMessageType, Err: errors.New("type " + quoteType(in.RawType))}
	}
	return in, nil
}

// DecodeProximityReport parses a bare proximity payload, as published by
// beacon gateways. A "type" field is not required.
func DecodeProximityReport(data []byte) (ProximityReport, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return ProximityReport{}, err
	}
	return decodeProximity(fields)
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &Error{Kind: KindMalformedMessage, Err: err}
	}
	if fields == nil {
		return nil, &Error{Kind: KindMalformedMessage, Err: errors.New("expected a JSON object")}
	}
	return fields, nil
}

func decodeProximity(fields map[string]json.RawMessage) (ProximityReport, error) {
	var report ProximityReport

	id, err := requireID(fields, "beacon_id")
	if err != nil {
		return report, err
	}
	report.BeaconID = id

	raw, ok := fields["distance"]
	if !ok || isNull(raw) {
		return report, missingField("distance")
	}
	if err := json.Unmarshal(raw, &report.Distance); err != nil {
		return report, invalidField("distance", err)
	}
	if math.IsNaN(report.Distance) || math.IsInf(report.Distance, 0) || report.Distance < 0 {
		return report, invalidField("distance", errors.New("distance must be a non-negative number"))
	}

	if raw, ok := fields["motion_detected"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &report.MotionDetected); err != nil {
			return report, invalidField("motion_detected", err)
		}
	}
	return report, nil
}

// requireID reads an identifier that may be a JSON string or number.
func requireID(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return "", missingField(name)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", missingField(name)
		}
		return s, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return "", invalidField(name, errors.New("identifier must be a string or number"))
	}
	return n.String(), nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func quoteType(t string) string {
	if t == "" {
		return "<missing>"
	}
	return `"` + t + `"`
}

// ProximityUpdate is broadcast to a user's session after a proximity
// event is recorded.
type ProximityUpdate struct {
	Type      string  `json:"type"`
	BeaconID  string  `json:"beacon_id"`
	Distance  float64 `json:"distance"`
	Timestamp string  `json:"timestamp"`
}

// NotificationUpdate is broadcast when the notification rule fires.
type NotificationUpdate struct {
	Type           string `json:"type"`
	NotificationID string `json:"notification_id"`
	BeaconID       string `json:"beacon_id,omitempty"`
	Message        string `json:"message"`
	Priority       string `json:"priority"`
	Timestamp      string `json:"timestamp"`
}

// StatusReply is the success reply for an acknowledgement.
type StatusReply struct {
	Status string `json:"status"`
}

// ErrorReply carries an error message to the client.
type ErrorReply struct {
	Error string `json:"error"`
}

// FormatTimestamp renders t as an ISO-8601 string in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Only plain structs are encoded here.
		b, _ = json.Marshal(ErrorReply{Error: msgInternal}) //nolint:errcheck // constant payload
	}
	return b
}

func errorFrame(err *Error) []byte {
	return encode(ErrorReply{Error: err.WireMessage()})
}
