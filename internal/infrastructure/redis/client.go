package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/config"
)

// Sentinel errors for channel layer operations.
var (
	ErrDisabled         = errors.New("redis: disabled in configuration")
	ErrConnectionFailed = errors.New("redis: connection failed")
	ErrPublishFailed    = errors.New("redis: publish failed")
	ErrSubscribeFailed  = errors.New("redis: subscribe failed")
)

const (
	maxRetries      = 5
	minRetryBackoff = 8 * time.Millisecond
	maxRetryBackoff = 512 * time.Millisecond
	dialTimeout     = 5 * time.Second
	ioTimeout       = 5 * time.Second
	poolSize        = 10
)

// Client wraps a go-redis client for pub/sub fan-out.
type Client struct {
	rdb    *goredis.Client
	prefix string

	mu     sync.Mutex
	subs   []*goredis.PubSub
	wg     sync.WaitGroup
	closed bool
}

// Connect dials Redis and verifies it with PING.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      maxRetries,
		MinRetryBackoff: minRetryBackoff,
		MaxRetryBackoff: maxRetryBackoff,
		DialTimeout:     dialTimeout,
		ReadTimeout:     ioTimeout,
		WriteTimeout:    ioTimeout,
		PoolSize:        poolSize,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &Client{rdb: rdb, prefix: cfg.ChannelPrefix}, nil
}

// Channel returns the full channel name for key.
func (c *Client) Channel(key string) string {
	return c.prefix + key
}

// Key strips the configured prefix from channel.
func (c *Client) Key(channel string) (string, bool) {
	if !strings.HasPrefix(channel, c.prefix) {
		return "", false
	}
	return strings.TrimPrefix(channel, c.prefix), true
}

// Publish sends payload to the channel for key and returns the number of
// subscribers that received it.
func (c *Client) Publish(ctx context.Context, key string, payload []byte) (int64, error) {
	n, err := c.rdb.Publish(ctx, c.Channel(key), payload).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return n, nil
}

// SubscribeAll pattern-subscribes to every channel under the prefix and
// calls handler for each message until ctx is cancelled or Close is
// called. It returns once the subscription is confirmed.
func (c *Client) SubscribeAll(ctx context.Context, handler func(channel string, payload []byte)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: client closed", ErrSubscribeFailed)
	}
	c.mu.Unlock()

	ps := c.rdb.PSubscribe(ctx, c.prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, ps)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ps.Close() //nolint:errcheck // Closing on shutdown

		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Channel, []byte(msg.Payload))
			}
		}
	}()
	return nil
}

// HealthCheck pings Redis.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close stops subscriptions and closes the connection pool.
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, ps := range subs {
		ps.Close() //nolint:errcheck // Closing on shutdown
	}
	c.wg.Wait()

	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("closing redis: %w", err)
	}
	return nil
}
