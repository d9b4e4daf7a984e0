package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/booking-feed/pkg/circuitbreaker"
	"github.com/jwalitptl/booking-feed/pkg/messaging"
)

type Config struct {
	URL string
	// Exchange is a durable topic exchange. Channel names are used as
	// routing keys.
	Exchange string
	Buffer   int
}

// Broker consumes booking events from RabbitMQ. Every subscription gets its
// own exclusive, auto-deleted queue, so each staff client sees every event.
type Broker struct {
	config Config
	cb     *circuitbreaker.CircuitBreaker
	logger *zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

var _ messaging.Broker = (*Broker)(nil)
var _ messaging.Publisher = (*Broker)(nil)

func NewBroker(config Config, cb *circuitbreaker.CircuitBreaker, logger *zerolog.Logger) *Broker {
	if config.Exchange == "" {
		config.Exchange = "booking.exchange"
	}
	if config.Buffer <= 0 {
		config.Buffer = 64
	}
	return &Broker{
		config: config,
		cb:     cb,
		logger: logger,
	}
}

// connection reuses the open connection or dials a new one after a drop.
func (b *Broker) connection() (*amqp.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn, nil
	}
	conn, err := amqp.Dial(b.config.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	b.conn = conn
	return conn, nil
}

func (b *Broker) channel() (*amqp.Channel, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(b.config.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return ch, nil
}

func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.cb.Execute(func() error {
		ch, err := b.channel()
		if err != nil {
			return err
		}
		defer ch.Close()

		return ch.PublishWithContext(ctx, b.config.Exchange, channel, false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        payload,
		})
	})
}

// Subscribe returns once the queue is bound and the consumer registered.
func (b *Broker) Subscribe(ctx context.Context, channel string) (messaging.Subscription, error) {
	var (
		ch         *amqp.Channel
		deliveries <-chan amqp.Delivery
	)
	err := b.cb.Execute(func() error {
		var err error
		ch, err = b.channel()
		if err != nil {
			return err
		}
		q, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			_ = ch.Close()
			return fmt.Errorf("declare queue: %w", err)
		}
		if err := ch.QueueBind(q.Name, channel, b.config.Exchange, false, nil); err != nil {
			_ = ch.Close()
			return fmt.Errorf("bind %s: %w", channel, err)
		}
		deliveries, err = ch.ConsumeWithContext(context.WithoutCancel(ctx), q.Name, "", true, true, false, false, nil)
		if err != nil {
			_ = ch.Close()
			return fmt.Errorf("consume %s: %w", q.Name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	pipe := messaging.NewPipe(b.config.Buffer, func() {
		_ = ch.Close()
	})
	go b.receive(deliveries, closed, pipe, channel)

	b.logger.Info().Str("channel", channel).Str("exchange", b.config.Exchange).Msg("subscribed")
	return pipe, nil
}

func (b *Broker) receive(deliveries <-chan amqp.Delivery, closed <-chan *amqp.Error, pipe *messaging.Pipe, channel string) {
	defer pipe.Finish()

	for d := range deliveries {
		if !pipe.Send(d.Body) {
			return
		}
	}

	// Deliveries also closes when we close the channel ourselves; the pipe
	// has ended already in that case and Fail is a no-op.
	var err error = errors.New("amqp channel closed")
	if reason, ok := <-closed; ok && reason != nil {
		err = reason
	}
	b.logger.Warn().Err(err).Str("channel", channel).Msg("subscription dropped")
	pipe.Fail(err)
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	return b.conn.Close()
}
