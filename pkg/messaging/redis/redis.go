package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/booking-feed/pkg/circuitbreaker"
	"github.com/jwalitptl/booking-feed/pkg/messaging"
)

type RedisBroker struct {
	client         *redis.Client
	cb             *circuitbreaker.CircuitBreaker
	logger         *zerolog.Logger
	healthInterval time.Duration
	buffer         int
}

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
	// HealthInterval is how long the receive loop waits for traffic before
	// pinging the server. A ping that fails, or gets no reply within another
	// HealthInterval, is reported as a disconnect.
	HealthInterval time.Duration
	Buffer         int
}

// Client builds a go-redis client from cfg and verifies it with a PING.
func Client(ctx context.Context, config Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pooling
	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	opts.PoolSize = config.PoolSize
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisBroker(client *redis.Client, config Config, cb *circuitbreaker.CircuitBreaker, logger *zerolog.Logger) *RedisBroker {
	if config.HealthInterval <= 0 {
		config.HealthInterval = 15 * time.Second
	}
	if config.Buffer <= 0 {
		config.Buffer = 100
	}
	if cb == nil {
		cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-broker",
			MaxFailures: 5,
			Timeout:     5 * time.Second,
		})
	}
	return &RedisBroker{
		client:         client,
		cb:             cb,
		logger:         logger,
		healthInterval: config.HealthInterval,
		buffer:         config.Buffer,
	}
}

var _ messaging.Broker = (*RedisBroker)(nil)
var _ messaging.Publisher = (*RedisBroker)(nil)

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.cb.Execute(func() error {
		return b.client.Publish(ctx, channel, payload).Err()
	})
}

// Subscribe returns once the server has confirmed the subscription.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (messaging.Subscription, error) {
	var pubsub *redis.PubSub
	err := b.cb.Execute(func() error {
		pubsub = b.client.Subscribe(ctx, channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	pipe := messaging.NewPipe(b.buffer, func() {
		cancel()
		pubsub.Close()
	})
	go b.receive(loopCtx, pubsub, pipe, channel)

	b.logger.Info().Str("channel", channel).Msg("subscribed")
	return pipe, nil
}

func (b *RedisBroker) receive(ctx context.Context, pubsub *redis.PubSub, pipe *messaging.Pipe, channel string) {
	defer pipe.Finish()

	// pinged is set while a health PING is unanswered. A second idle timeout
	// in that state means the link is half-open.
	pinged := false
	for {
		msg, err := pubsub.ReceiveTimeout(ctx, b.healthInterval)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if pinged {
					err := fmt.Errorf("no reply to health ping on %s within %s", channel, b.healthInterval)
					b.logger.Warn().Err(err).Str("channel", channel).Msg("health ping unanswered")
					pipe.Fail(err)
					return
				}
				if err := pubsub.Ping(ctx); err != nil {
					b.logger.Warn().Err(err).Str("channel", channel).Msg("health ping failed")
					pipe.Fail(err)
					return
				}
				pinged = true
				continue
			}
			b.logger.Warn().Err(err).Str("channel", channel).Msg("subscription dropped")
			pipe.Fail(err)
			return
		}

		pinged = false
		switch m := msg.(type) {
		case *redis.Message:
			if !pipe.Send([]byte(m.Payload)) {
				return
			}
		case *redis.Subscription:
			if m.Kind == "unsubscribe" && m.Count == 0 {
				pipe.Fail(fmt.Errorf("unsubscribed from %s", channel))
				return
			}
		case *redis.Pong:
		}
	}
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
