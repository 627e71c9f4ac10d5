package realtime

import (
	"bytes"
	"context"

	"github.com/google/uuid"
)

// Fanout delivers a payload to every connection of a session, wherever
// that connection is hosted.
type Fanout interface {
	Fanout(ctx context.Context, sessionKey string, payload []byte)
}

// LocalFanout delivers straight to the in-process registry.
type LocalFanout struct {
	registry *Registry
}

// NewLocalFanout creates a fanout over registry.
func NewLocalFanout(registry *Registry) *LocalFanout {
	return &LocalFanout{registry: registry}
}

// Fanout implements Fanout.
func (f *LocalFanout) Fanout(_ context.Context, sessionKey string, payload []byte) {
	f.registry.Broadcast(sessionKey, payload)
}

// ChannelLayer is the pub/sub transport shared by service instances.
// *redis.Client satisfies it.
type ChannelLayer interface {
	Publish(ctx context.Context, key string, payload []byte) (int64, error)
	SubscribeAll(ctx context.Context, handler func(channel string, payload []byte)) error
	Key(channel string) (string, bool)
}

// ChannelFanout delivers to local members immediately and publishes the
// payload on a channel layer for the other instances. Each publication is
// tagged with this instance's origin so it is not delivered here twice.
type ChannelFanout struct {
	layer    ChannelLayer
	registry *Registry
	origin   string
	logger   Logger
}

// NewChannelFanout creates a fanout over layer. Call Start before serving
// connections so this instance receives other instances' publications.
func NewChannelFanout(layer ChannelLayer, registry *Registry) *ChannelFanout {
	return &ChannelFanout{
		layer:    layer,
		registry: registry,
		origin:   uuid.NewString(),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the fanout.
func (f *ChannelFanout) SetLogger(logger Logger) {
	f.logger = logger
}

// Start subscribes to the channel layer until ctx is cancelled.
func (f *ChannelFanout) Start(ctx context.Context) error {
	return f.layer.SubscribeAll(ctx, f.deliver)
}

func (f *ChannelFanout) deliver(channel string, frame []byte) {
	key, ok := f.layer.Key(channel)
	if !ok {
		f.logger.Warn("channel layer message on unexpected channel", "channel", channel)
		return
	}
	origin, payload, ok := bytes.Cut(frame, []byte{'\n'})
	if !ok {
		f.logger.Warn("channel layer message without origin", "channel", channel)
		return
	}
	if string(origin) == f.origin {
		return
	}
	f.registry.Broadcast(key, payload)
}

// Fanout implements Fanout. Local members always receive the payload
// before Fanout returns.
func (f *ChannelFanout) Fanout(ctx context.Context, sessionKey string, payload []byte) {
	f.registry.Broadcast(sessionKey, payload)

	frame := make([]byte, 0, len(f.origin)+1+len(payload))
	frame = append(frame, f.origin...)
	frame = append(frame, '\n')
	frame = append(frame, payload...)
	if _, err := f.layer.Publish(ctx, sessionKey, frame); err != nil {
		f.logger.Error("channel layer publish failed, remote instances not reached",
			"session_key", sessionKey, "error", err)
	}
}
