package realtime

import (
	"errors"
	"fmt"

	"github.com/nerrad567/beacon-notify-core/internal/beacon"
)

// ErrorKind classifies failures surfaced to a realtime client.
type ErrorKind int

const (
	KindMalformedMessage ErrorKind = iota + 1
	KindValidation
	KindUnknownMessageType
	KindBeaconNotFound
	KindNotificationNotFound
	KindPersistence
	KindAuthenticationRejected
)

// Wire texts for each error kind.
const (
	msgInvalidJSON          = "Invalid JSON format"
	msgUnknownEventType     = "Unknown event type"
	msgBeaconNotFound       = "BeaconDevice not found"
	msgNotificationNotFound = "Notification not found"
	msgAuthRejected         = "Authentication rejected"
	msgInternal             = "Internal server error"
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformedMessage:
		return "malformed_message"
	case KindValidation:
		return "validation_error"
	case KindUnknownMessageType:
		return "unknown_message_type"
	case KindBeaconNotFound:
		return "beacon_not_found"
	case KindNotificationNotFound:
		return "notification_not_found"
	case KindPersistence:
		return "persistence_error"
	case KindAuthenticationRejected:
		return "authentication_rejected"
	default:
		return "unknown"
	}
}

// Error is a classified realtime failure. Field names the offending
// message field for validation errors; Err carries the underlying cause.
type Error struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// WireMessage is the text sent to the client in {"error": ...}. Internal
// causes never appear in it.
func (e *Error) WireMessage() string {
	switch e.Kind {
	case KindMalformedMessage:
		return msgInvalidJSON
	case KindValidation:
		if errors.Is(e.Err, errMissingField) {
			return "Missing required field: " + e.Field
		}
		return "Invalid value for field: " + e.Field
	case KindUnknownMessageType:
		return msgUnknownEventType
	case KindBeaconNotFound:
		return msgBeaconNotFound
	case KindNotificationNotFound:
		return msgNotificationNotFound
	case KindAuthenticationRejected:
		return msgAuthRejected
	default:
		return msgInternal
	}
}

var (
	errMissingField = errors.New("missing required field")
	errInvalidField = errors.New("invalid field value")
)

func missingField(field string) *Error {
	return &Error{Kind: KindValidation, Field: field, Err: errMissingField}
}

func invalidField(field string, cause error) *Error {
	if cause == nil {
		cause = errInvalidField
	} else {
		cause = fmt.Errorf("%w: %w", errInvalidField, cause)
	}
	return &Error{Kind: KindValidation, Field: field, Err: cause}
}

// classifyStoreError maps persistence gateway errors onto error kinds.
func classifyStoreError(err error) *Error {
	switch {
	case errors.Is(err, beacon.ErrBeaconNotFound):
		return &Error{Kind: KindBeaconNotFound, Err: err}
	case errors.Is(err, beacon.ErrNotificationNotFound):
		return &Error{Kind: KindNotificationNotFound, Err: err}
	default:
		return &Error{Kind: KindPersistence, Err: err}
	}
}

// AsError returns err as *Error, wrapping anything unclassified as a
// persistence failure.
func AsError(err error) *Error {
	var rtErr *Error
	if errors.As(err, &rtErr) {
		return rtErr
	}
	return &Error{Kind: KindPersistence, Err: err}
}

// KindOf reports the kind of err, or 0 when err is nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return 0
	}
	return AsError(err).Kind
}
