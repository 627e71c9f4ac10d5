package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/config"
)

// testConfig returns a configuration pointing at a local broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "beaconnotify-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", topics.SystemStatus(), "beaconnotify/system/status"},
		{"user proximity", topics.UserProximity("42"), "beaconnotify/user/42/proximity"},
		{"user notification", topics.UserNotification("42"), "beaconnotify/user/42/notification"},
		{"ingest", topics.IngestProximity("42"), "beaconnotify/ingest/42/proximity"},
		{"all ingest", topics.AllIngestProximity(), "beaconnotify/ingest/+/proximity"},
		{"all user", topics.AllUserEvents(), "beaconnotify/user/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseIngestTopic(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"beaconnotify/ingest/42/proximity", "42", true},
		{Topics{}.IngestProximity("usr-ab12"), "usr-ab12", true},
		{"beaconnotify/ingest//proximity", "", false},
		{"beaconnotify/ingest/42/other", "", false},
		{"beaconnotify/user/42/proximity", "", false},
		{"other/ingest/42/proximity", "", false},
		{"beaconnotify/ingest/42/proximity/extra", "", false},
		{"beaconnotify/ingest/+/proximity", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := ParseIngestTopic(tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseIngestTopic() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "svc"
	cfg.Auth.Password = "pw"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "beaconnotify-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "svc" {
		t.Errorf("Username = %q", opts.Username)
	}
	if !opts.WillEnabled || opts.WillTopic != "beaconnotify/system/status" || !opts.WillRetained {
		t.Errorf("will = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig should be unset without tls")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" || opts.TLSConfig == nil {
		t.Errorf("tls options: scheme=%s tls=%v", opts.Servers[0].Scheme, opts.TLSConfig)
	}
}

func TestStatusPayload(t *testing.T) {
	var msg statusMessage
	if err := json.Unmarshal([]byte(statusPayload("core-1", "offline", "graceful_shutdown")), &msg); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if msg.Status != "offline" || msg.ClientID != "core-1" || msg.Reason != "graceful_shutdown" || msg.Timestamp == "" {
		t.Errorf("status message = %+v", msg)
	}

	if strings.Contains(statusPayload("core-1", "online", ""), "reason") {
		t.Error("online status should omit reason")
	}
}

func TestDisconnectedClient(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish too large", c.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("t", []byte("x"), 1, false), ErrNotConnected},
		{"publish json disconnected", c.PublishJSON("t", map[string]int{"a": 1}), ErrNotConnected},
		{"publish json unencodable", c.PublishJSON("t", make(chan int)), ErrPublishFailed},
		{"subscribe nil handler", c.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("t", 1, noop), ErrNotConnected},
		{"unsubscribe empty", c.Unsubscribe(""), ErrInvalidTopic},
		{"health", c.HealthCheck(context.Background()), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.wantErr) {
				t.Errorf("error = %v, want %v", tt.err, tt.wantErr)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Error("failed subscriptions must not be tracked")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) = %v", err)
	}

	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
}

func TestWrapHandlerRecoversPanic(t *testing.T) {
	logger := &captureLogger{}
	c := &Client{}
	c.SetLogger(logger)

	h := c.wrapHandler(func(string, []byte) error { panic("boom") })
	h(nil, fakeMessage{topic: "beaconnotify/ingest/1/proximity"})

	h = c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })
	h(nil, fakeMessage{topic: "beaconnotify/ingest/1/proximity"})

	if logger.errors != 1 || logger.warns != 1 {
		t.Errorf("errors=%d warns=%d, want 1/1", logger.errors, logger.warns)
	}
}

type captureLogger struct {
	errors, warns int
}

func (l *captureLogger) Error(string, ...any) { l.errors++ }
func (l *captureLogger) Warn(string, ...any)  { l.warns++ }

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}
