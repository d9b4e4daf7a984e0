package messaging

import (
	"context"
	"errors"
)

// ErrClosed is reported by a Subscription closed by its owner.
var ErrClosed = errors.New("subscription closed")

// Broker opens live subscriptions on named channels.
type Broker interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Subscription delivers raw payloads until the connection drops or Close is
// called. Messages is closed in both cases; Err then tells them apart.
type Subscription interface {
	Messages() <-chan []byte
	// Err returns nil while the subscription is live, ErrClosed after Close and
	// the transport error after a drop.
	Err() error
	Close() error
}

// Publisher sends raw payloads to a channel. Used by cmd/publisher and tests;
// the feed itself only consumes.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Channel builds the per-scope channel name, e.g. "booking-notifications:venue-1".
func Channel(prefix, scope string) string {
	if scope == "" {
		return prefix
	}
	return prefix + ":" + scope
}
