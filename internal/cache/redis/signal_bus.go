package redis

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// SignalBus implements domain.SignalBus using Redis Pub/Sub, so order events
// reach every dashboard and tracker sharing the Redis instance.
type SignalBus struct {
	c *Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{c: c}
}

// Publish sends payload on channel. Channels are namespaced with the client's
// key prefix, so desks with different prefixes share a Redis instance
// without seeing each other's events. Delivery is fire-and-forget: a message
// published with no subscriber is dropped.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.c.rdb.Publish(ctx, sb.c.Key(channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of payloads published on channel. It waits for
// Redis to confirm the subscription before returning, so a message published
// after Subscribe returns is not missed.
//
// The subscription and the returned channel are closed when ctx is
// cancelled. A slow reader applies backpressure to the forwarding goroutine
// rather than losing messages.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := sb.c.rdb.Subscribe(ctx, sb.c.Key(channel))

	// Wait for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
