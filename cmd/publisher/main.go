// Command publisher replays booking events from a JSON-lines file (or stdin)
// onto the live channel. Each line is checked with the same decoder the feed
// uses, so a malformed event is reported here rather than by every client.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/booking-feed/internal/config"
	"github.com/jwalitptl/booking-feed/internal/transport"
	wire "github.com/jwalitptl/booking-feed/pkg/event"
	"github.com/jwalitptl/booking-feed/pkg/logger"
	"github.com/jwalitptl/booking-feed/pkg/messaging"
)

var (
	publishedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "publisher_events_published_total",
		Help: "The total number of published booking events",
	})
	failedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "publisher_events_failed_total",
		Help: "The total number of booking events that could not be published",
	})
	rejectedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "publisher_events_rejected_total",
		Help: "The total number of lines rejected as malformed",
	})
)

type EventPublisher struct {
	publisher  messaging.Publisher
	decoder    *wire.Decoder
	channel    string
	logger     *logger.Logger
	maxRetries int
	retryDelay time.Duration
	// interval paces publishing so a replayed file reads like live traffic.
	interval time.Duration
}

type Stats struct {
	Published int
	Rejected  int
	Failed    int
}

func NewEventPublisher(publisher messaging.Publisher, channel string, l *logger.Logger) *EventPublisher {
	return &EventPublisher{
		publisher:  publisher,
		decoder:    wire.NewDecoder(),
		channel:    channel,
		logger:     l.WithFields(map[string]interface{}{"channel": channel}),
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Run publishes every non-empty line of r and stops early if ctx ends.
func (p *EventPublisher) Run(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		n, err := p.decoder.Decode(raw)
		if err != nil {
			stats.Rejected++
			rejectedEvents.Inc()
			p.logger.Warn("Skipping malformed event", "line", line, "error", err.Error())
			continue
		}

		payload := append([]byte(nil), raw...)
		if err := p.publish(ctx, payload); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			failedEvents.Inc()
			p.logger.Error(err, "Failed to publish event after retries", "notification_id", n.ID)
			continue
		}
		stats.Published++
		publishedEvents.Inc()
		p.logger.Debug("Published event", "notification_id", n.ID, "type", string(n.Type))

		if p.interval > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(p.interval):
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read events: %w", err)
	}
	return stats, nil
}

func (p *EventPublisher) publish(ctx context.Context, payload []byte) error {
	var err error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * p.retryDelay):
			}
		}
		if err = p.publisher.Publish(ctx, p.channel, payload); err == nil {
			return nil
		}
		p.logger.Warn("Retry publishing event", "attempt", attempt+1, "error", err.Error())
	}
	return err
}

func main() {
	file := flag.String("file", "-", "JSON-lines file of booking events, - for stdin")
	interval := flag.Duration("interval", 0, "pause between events")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Logging.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stderr,
		Pretty:     cfg.Logging.Pretty,
	})

	in := io.Reader(os.Stdin)
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			appLogger.Fatal(err, "Failed to open events file")
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker, err := transport.Open(ctx, cfg, appLogger, nil)
	if err != nil {
		appLogger.Fatal(err, "Failed to create publisher")
	}
	defer broker.Close()

	p := NewEventPublisher(broker, cfg.Channel(), appLogger)
	p.interval = *interval

	stats, err := p.Run(ctx, in)
	appLogger.Info("Publisher finished",
		"published", stats.Published,
		"rejected", stats.Rejected,
		"failed", stats.Failed,
	)
	if err != nil {
		appLogger.Fatal(err, "Publisher stopped")
	}
}
