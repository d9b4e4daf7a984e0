// Package transport opens the configured event broker for the feed and the
// publisher command.
package transport

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jwalitptl/booking-feed/internal/config"
	"github.com/jwalitptl/booking-feed/pkg/circuitbreaker"
	"github.com/jwalitptl/booking-feed/pkg/logger"
	"github.com/jwalitptl/booking-feed/pkg/messaging"
	"github.com/jwalitptl/booking-feed/pkg/messaging/rabbitmq"
	"github.com/jwalitptl/booking-feed/pkg/messaging/redis"
	"github.com/jwalitptl/booking-feed/pkg/messaging/redisstream"
	"github.com/jwalitptl/booking-feed/pkg/metrics"
)

// Broker is both ends of the live channel. Close releases every connection
// the broker opened.
type Broker interface {
	messaging.Broker
	messaging.Publisher
}

// Open connects the transport named by cfg.Feed.Transport. m may be nil.
func Open(ctx context.Context, cfg *config.Config, l *logger.Logger, m *metrics.Metrics) (Broker, error) {
	switch cfg.Feed.Transport {
	case config.TransportAMQP:
		return rabbitmq.NewBroker(cfg.ToAMQPConfig(), newBreaker("rabbitmq", cfg, l, m), &l.ZL), nil

	case config.TransportStream:
		client, err := redis.Client(ctx, cfg.ToBrokerConfig())
		if err != nil {
			return nil, err
		}
		broker, err := redisstream.NewBroker(client, cfg.ToStreamConfig(), logger.NewWatermillAdapter(l))
		if err != nil {
			client.Close()
			return nil, err
		}
		return &streamBroker{Broker: broker, client: client}, nil

	case config.TransportPubSub, "":
		client, err := redis.Client(ctx, cfg.ToBrokerConfig())
		if err != nil {
			return nil, err
		}
		return redis.NewRedisBroker(client, cfg.ToBrokerConfig(), newBreaker("redis", cfg, l, m), &l.ZL), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Feed.Transport)
	}
}

func newBreaker(name string, cfg *config.Config, l *logger.Logger, m *metrics.Metrics) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        name,
		MaxFailures: cfg.Backend.BreakerFailures,
		Timeout:     cfg.Backend.BreakerTimeout,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			l.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if m != nil {
				m.CircuitState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
}

// streamBroker owns the client the watermill publisher was built on.
type streamBroker struct {
	*redisstream.Broker
	client *goredis.Client
}

func (b *streamBroker) Close() error {
	return errors.Join(b.Broker.Close(), b.client.Close())
}
