// Package redisstream delivers booking events over Redis Streams using
// watermill. Unlike pub/sub, a stream keeps recent entries, so a subscriber
// that reconnects quickly does not depend on the history replay alone.
package redisstream

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/booking-feed/pkg/messaging"
)

type Config struct {
	// HealthInterval is how often the client is pinged while subscribed.
	HealthInterval time.Duration
	Buffer         int
}

type Broker struct {
	client         redis.UniversalClient
	publisher      message.Publisher
	logger         watermill.LoggerAdapter
	healthInterval time.Duration
	buffer         int
}

var _ messaging.Broker = (*Broker)(nil)
var _ messaging.Publisher = (*Broker)(nil)

func NewBroker(client redis.UniversalClient, config Config, logger watermill.LoggerAdapter) (*Broker, error) {
	if config.HealthInterval <= 0 {
		config.HealthInterval = 15 * time.Second
	}
	if config.Buffer <= 0 {
		config.Buffer = 100
	}

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: client,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create stream publisher: %w", err)
	}

	return &Broker{
		client:         client,
		publisher:      publisher,
		logger:         logger,
		healthInterval: config.HealthInterval,
		buffer:         config.Buffer,
	}, nil
}

func (b *Broker) Publish(_ context.Context, channel string, payload []byte) error {
	return b.publisher.Publish(channel, message.NewMessage(watermill.NewUUID(), payload))
}

// Subscribe reads the stream without a consumer group, so every feed
// instance sees every event.
func (b *Broker) Subscribe(ctx context.Context, channel string) (messaging.Subscription, error) {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client: b.client,
	}, b.logger)
	if err != nil {
		return nil, fmt.Errorf("create stream subscriber: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	messages, err := subscriber.Subscribe(loopCtx, channel)
	if err != nil {
		cancel()
		subscriber.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	pipe := messaging.NewPipe(b.buffer, func() {
		cancel()
	})
	go b.receive(loopCtx, subscriber, messages, pipe, channel)

	b.logger.Info("subscribed", watermill.LogFields{"channel": channel})
	return pipe, nil
}

func (b *Broker) receive(ctx context.Context, subscriber message.Subscriber, messages <-chan *message.Message, pipe *messaging.Pipe, channel string) {
	defer func() {
		subscriber.Close()
		pipe.Finish()
	}()

	ticker := time.NewTicker(b.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.client.Ping(ctx).Err(); err != nil {
				if ctx.Err() != nil {
					return
				}
				b.logger.Error("health ping failed", err, watermill.LogFields{"channel": channel})
				pipe.Fail(err)
				return
			}
		case msg, ok := <-messages:
			if !ok {
				pipe.Fail(fmt.Errorf("stream %s closed", channel))
				return
			}
			msg.Ack()
			if !pipe.Send([]byte(msg.Payload)) {
				return
			}
		}
	}
}

func (b *Broker) Close() error {
	return b.publisher.Close()
}
