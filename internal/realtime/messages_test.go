package realtime

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/beacon-notify-core/internal/beacon"
)

func TestDecodeMessage_Valid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Inbound
	}{
		{
			name: "proximity with string id",
			in:   `{"type":"proximity_event","beacon_id":"bcn-1","distance":1.5,"motion_detected":true}`,
			want: Inbound{Type: MessageProximityEvent, RawType: TypeProximityEvent,
				Proximity: &ProximityReport{BeaconID: "bcn-1", Distance: 1.5, MotionDetected: true}},
		},
		{
			name: "proximity with numeric id and no motion",
			in:   `{"type":"proximity_event","beacon_id":7,"distance":0}`,
			want: Inbound{Type: MessageProximityEvent, RawType: TypeProximityEvent,
				Proximity: &ProximityReport{BeaconID: "7", Distance: 0}},
		},
		{
			name: "ack",
			in:   `{"type":"notification_ack","notification_id":"ntf-9"}`,
			want: Inbound{Type: MessageNotificationAck, RawType: TypeNotificationAck,
				Ack: &Ack{NotificationID: "ntf-9"}},
		},
		{
			name: "ack with numeric id",
			in:   `{"type":"notification_ack","notification_id":12}`,
			want: Inbound{Type: MessageNotificationAck, RawType: TypeNotificationAck,
				Ack: &Ack{NotificationID: "12"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMessage([]byte(tt.in))
			if err != nil {
				t.Fatalf("DecodeMessage() error = %v", err)
			}
			if got.Type != tt.want.Type || got.RawType != tt.want.RawType {
				t.Errorf("type = (%v, %q), want (%v, %q)", got.Type, got.RawType, tt.want.Type, tt.want.RawType)
			}
			if tt.want.Proximity != nil && (got.Proximity == nil || *got.Proximity != *tt.want.Proximity) {
				t.Errorf("Proximity = %+v, want %+v", got.Proximity, tt.want.Proximity)
			}
			if tt.want.Ack != nil && (got.Ack == nil || *got.Ack != *tt.want.Ack) {
				t.Errorf("Ack = %+v, want %+v", got.Ack, tt.want.Ack)
			}
		})
	}
}

func TestDecodeMessage_Errors(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantKind ErrorKind
		wantWire string
	}{
		{"not json", `not json`, KindMalformedMessage, "Invalid JSON format"},
		{"json array", `[1,2]`, KindMalformedMessage, "Invalid JSON format"},
		{"json null", `null`, KindMalformedMessage, "Invalid JSON format"},
		{"missing type", `{"beacon_id":"b"}`, KindUnknownMessageType, "Unknown event type"},
		{"numeric type", `{"type":5}`, KindUnknownMessageType, "Unknown event type"},
		{"unknown type", `{"type":"ping"}`, KindUnknownMessageType, "Unknown event type"},
		{"missing beacon_id", `{"type":"proximity_event","distance":1}`, KindValidation, "Missing required field: beacon_id"},
		{"empty beacon_id", `{"type":"proximity_event","beacon_id":"  ","distance":1}`, KindValidation, "Missing required field: beacon_id"},
		{"object beacon_id", `{"type":"proximity_event","beacon_id":{},"distance":1}`, KindValidation, "Invalid value for field: beacon_id"},
		{"missing distance", `{"type":"proximity_event","beacon_id":"b"}`, KindValidation, "Missing required field: distance"},
		{"null distance", `{"type":"proximity_event","beacon_id":"b","distance":null}`, KindValidation, "Missing required field: distance"},
		{"string distance", `{"type":"proximity_event","beacon_id":"b","distance":"far"}`, KindValidation, "Invalid value for field: distance"},
		{"negative distance", `{"type":"proximity_event","beacon_id":"b","distance":-1}`, KindValidation, "Invalid value for field: distance"},
		{"bad motion", `{"type":"proximity_event","beacon_id":"b","distance":1,"motion_detected":"yes"}`, KindValidation, "Invalid value for field: motion_detected"},
		{"missing notification_id", `{"type":"notification_ack"}`, KindValidation, "Missing required field: notification_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.in))
			if err == nil {
				t.Fatal("DecodeMessage() expected error")
			}
			rtErr := AsError(err)
			if rtErr.Kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", rtErr.Kind, tt.wantKind)
			}
			if got := rtErr.WireMessage(); got != tt.wantWire {
				t.Errorf("WireMessage() = %q, want %q", got, tt.wantWire)
			}
		})
	}
}

func TestDecodeProximityReport_IgnoresType(t *testing.T) {
	got, err := DecodeProximityReport([]byte(`{"beacon_id":"bcn-2","distance":3.25}`))
	if err != nil {
		t.Fatalf("DecodeProximityReport() error = %v", err)
	}
	if got.BeaconID != "bcn-2" || got.Distance != 3.25 || got.MotionDetected {
		t.Errorf("report = %+v", got)
	}
}

func TestErrorWireMessages(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Kind: KindBeaconNotFound}, "BeaconDevice not found"},
		{&Error{Kind: KindNotificationNotFound}, "Notification not found"},
		{&Error{Kind: KindPersistence, Err: errors.New("disk I/O error at /var/lib")}, "Internal server error"},
		{&Error{Kind: KindAuthenticationRejected}, "Authentication rejected"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Kind.String(), func(t *testing.T) {
			if got := tt.err.WireMessage(); got != tt.want {
				t.Errorf("WireMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyStoreError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{beacon.ErrBeaconNotFound, KindBeaconNotFound},
		{beacon.ErrNotificationNotFound, KindNotificationNotFound},
		{errStoreDown, KindPersistence},
	}
	for _, tt := range tests {
		if got := classifyStoreError(tt.err).Kind; got != tt.want {
			t.Errorf("classifyStoreError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(nil) != 0 {
		t.Error("KindOf(nil) should be 0")
	}
	if KindOf(errStoreDown) != KindPersistence {
		t.Error("unclassified errors should be persistence errors")
	}
	if KindOf(missingField("x")) != KindValidation {
		t.Error("missingField should be a validation error")
	}
}

func TestProximityUpdateEncoding(t *testing.T) {
	ts := time.Date(2026, 10, 16, 12, 0, 0, 123456000, time.UTC)
	raw := encode(ProximityUpdate{Type: TypeProximityUpdate, BeaconID: "bcn-1", Distance: 2.5, Timestamp: FormatTimestamp(ts)})

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"type":      "proximity_update",
		"beacon_id": "bcn-1",
		"distance":  2.5,
		"timestamp": "2026-10-16T12:00:00.123456Z",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if len(got) != len(want) {
		t.Errorf("unexpected fields in %s", raw)
	}
}

func TestFormatTimestamp_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	ts := time.Date(2026, 10, 16, 14, 0, 0, 0, loc)
	if got := FormatTimestamp(ts); got != "2026-10-16T12:00:00.000000Z" {
		t.Errorf("FormatTimestamp() = %q", got)
	}
}
