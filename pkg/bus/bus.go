package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Pub/Sub operations over Redis.
// All channels are namespaced with the instance name via the schema helpers.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new bus client for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: Bodhi instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// InstanceName returns the instance this client is scoped to.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish sends a payload to an exact channel.
// Delivery is at-most-once: subscribers that are not connected miss the message.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Message is a single Pub/Sub delivery. Pattern is set when the message
// matched a pattern subscription rather than an exact channel.
type Message struct {
	Channel string
	Pattern string
	Payload string
}

// Subscription represents an active Pub/Sub subscription.
// Caller must call Close() when done to clean up resources.
// Within one subscription, messages are delivered in receipt order.
type Subscription struct {
	messages <-chan Message
	cancel   func()
	once     sync.Once
}

// Messages returns the channel of inbound messages.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Messages() <-chan Message {
	return s.messages
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe opens ONE subscription connection carrying both exact channels and
// wildcard patterns. At least one of channels/patterns must be non-empty.
// Caller must call subscription.Close() when done.
// Context cancellation also stops the subscription.
//
// Messages are delivered on a buffered channel (size 64) to keep one slow
// consumer from blocking the pump. If the subscriber falls far behind, Redis
// Pub/Sub drops messages (at-most-once delivery).
func (c *Client) Subscribe(ctx context.Context, channels []string, patterns []string) (*Subscription, error) {
	if len(channels) == 0 && len(patterns) == 0 {
		return nil, fmt.Errorf("subscription requires at least one channel or pattern")
	}

	var pubsub *redis.PubSub
	if len(channels) > 0 {
		pubsub = c.rdb.Subscribe(ctx, channels...)
		if len(patterns) > 0 {
			if err := pubsub.PSubscribe(ctx, patterns...); err != nil {
				pubsub.Close()
				return nil, fmt.Errorf("failed to add pattern subscription: %w", err)
			}
		}
	} else {
		pubsub = c.rdb.PSubscribe(ctx, patterns...)
	}

	messages := make(chan Message, 64)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(messages)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case messages <- Message{Channel: msg.Channel, Pattern: msg.Pattern, Payload: msg.Payload}:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		messages: messages,
		cancel:   cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
