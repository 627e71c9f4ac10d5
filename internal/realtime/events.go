package realtime

import (
	"sync"

	"github.com/nerrad567/beacon-notify-core/internal/beacon"
	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/mqtt"
)

// EventSink is told about records created by the Router. Implementations
// must not block.
type EventSink interface {
	ProximityRecorded(ev *beacon.ProximityEvent)
	NotificationCreated(n *beacon.Notification)
}

// JSONPublisher publishes a JSON document. *mqtt.Client satisfies it.
type JSONPublisher interface {
	PublishJSON(topic string, v any) error
}

const defaultEventQueue = 1024

type outboundEvent struct {
	topic   string
	payload any
}

// MQTTEventSink republishes records on per-user MQTT topics from a single
// background goroutine, so broker latency never reaches a connection.
// Events are dropped when the queue is full.
type MQTTEventSink struct {
	pub    JSONPublisher
	queue  chan outboundEvent
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger Logger
}

// NewMQTTEventSink creates a sink with room for size queued events.
func NewMQTTEventSink(pub JSONPublisher, size int) *MQTTEventSink {
	if size <= 0 {
		size = defaultEventQueue
	}
	return &MQTTEventSink{
		pub:    pub,
		queue:  make(chan outboundEvent, size),
		stop:   make(chan struct{}),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the sink.
func (s *MQTTEventSink) SetLogger(logger Logger) {
	s.logger = logger
}

// Start launches the publishing goroutine.
func (s *MQTTEventSink) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stop:
				return
			case ev := <-s.queue:
				if err := s.pub.PublishJSON(ev.topic, ev.payload); err != nil {
					s.logger.Warn("publishing event to mqtt failed", "topic", ev.topic, "error", err)
				}
			}
		}
	}()
}

// Close stops the publishing goroutine. Queued events are discarded.
func (s *MQTTEventSink) Close() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// ProximityRecorded implements EventSink.
func (s *MQTTEventSink) ProximityRecorded(ev *beacon.ProximityEvent) {
	s.enqueue(mqtt.Topics{}.UserProximity(ev.UserID), *ev)
}

// NotificationCreated implements EventSink.
func (s *MQTTEventSink) NotificationCreated(n *beacon.Notification) {
	s.enqueue(mqtt.Topics{}.UserNotification(n.UserID), *n)
}

func (s *MQTTEventSink) enqueue(topic string, payload any) {
	select {
	case <-s.stop:
		return
	default:
	}

	select {
	case s.queue <- outboundEvent{topic: topic, payload: payload}:
	default:
		s.logger.Warn("mqtt event queue full, dropping event", "topic", topic)
	}
}
