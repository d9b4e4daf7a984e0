package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jwalitptl/booking-feed/internal/model"
	"github.com/jwalitptl/booking-feed/internal/repository"
	wire "github.com/jwalitptl/booking-feed/pkg/event"
	"github.com/jwalitptl/booking-feed/pkg/logger"
	"github.com/jwalitptl/booking-feed/pkg/messaging"
	"github.com/jwalitptl/booking-feed/pkg/metrics"
)

const maxReplayPages = 20

type Config struct {
	// Channel is the full channel name, see messaging.Channel.
	Channel string
	Scope   string
	// ReplayLimit bounds the backlog fetched on first connect and is the page
	// size for gap-filling after a reconnect.
	ReplayLimit int
	Backoff     Backoff
}

// Source owns the live subscription. It is started by the first Acquire and
// stopped by the last release.
type Source struct {
	broker     messaging.Broker
	history    repository.NotificationRepository
	log        Log
	reconciler Reconciler
	decoder    *wire.Decoder
	sink       ErrorSink
	cfg        Config
	metrics    *metrics.Metrics
	logger     *logger.Logger

	connected atomic.Bool

	mu     sync.Mutex
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Source)

// WithHistory enables backlog replay through the history endpoint.
func WithHistory(repo repository.NotificationRepository) Option {
	return func(s *Source) { s.history = repo }
}

func WithReconciler(r Reconciler) Option {
	return func(s *Source) { s.reconciler = r }
}

func WithErrorSink(sink ErrorSink) Option {
	return func(s *Source) { s.sink = sink }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Source) { s.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Source) { s.logger = l }
}

func NewSource(broker messaging.Broker, log Log, cfg Config, opts ...Option) *Source {
	if cfg.ReplayLimit <= 0 {
		cfg.ReplayLimit = 50
	}
	s := &Source{
		broker:  broker,
		log:     log,
		decoder: wire.NewDecoder(),
		cfg:     cfg,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sink == nil {
		s.sink = LogSink{Logger: s.logger, Metrics: s.metrics}
	}
	s.logger = s.logger.WithFields(map[string]interface{}{"channel": cfg.Channel})
	return s
}

// IsConnected reports whether a confirmed subscription is currently live.
func (s *Source) IsConnected() bool {
	return s.connected.Load()
}

// Acquire registers a consumer. The returned release func is idempotent; the
// last release stops the loop and waits for it to exit.
func (s *Source) Acquire() (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refs++
	if s.refs == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.run(ctx, s.done)
	}

	var once sync.Once
	return func() {
		once.Do(s.release)
	}
}

func (s *Source) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refs--
	if s.refs > 0 {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// Run holds the subscription until ctx is cancelled.
func (s *Source) Run(ctx context.Context) error {
	release := s.Acquire()
	defer release()
	<-ctx.Done()
	return nil
}

func (s *Source) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.setConnected(false)

	// A session only counts as healthy once it has stayed up for a full
	// Backoff.Max; a link that drops right after subscribing keeps backing off.
	stableAfter := s.cfg.Backoff.withDefaults().Max

	attempt := 0
	for {
		started := time.Now()
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected && time.Since(started) >= stableAfter {
			attempt = 0
		}

		delay := s.cfg.Backoff.Delay(attempt)
		attempt++
		if s.metrics != nil {
			s.metrics.Reconnects.Inc()
		}
		s.logger.Warn("subscription lost, reconnecting", "error", errString(err), "attempt", attempt, "delay", delay.String())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session runs one subscription until it drops. connected reports whether the
// subscription was confirmed at all.
func (s *Source) session(ctx context.Context) (connected bool, err error) {
	watermark, hasWatermark := s.log.Watermark()

	sub, err := s.broker.Subscribe(ctx, s.cfg.Channel)
	if err != nil {
		return false, err
	}
	defer sub.Close()

	s.setConnected(true)
	defer s.setConnected(false)
	s.logger.Info("subscription established")

	var since *time.Time
	if hasWatermark {
		since = &watermark
	}

	var retry *time.Timer
	var retryC <-chan time.Time
	replayAttempt := 0
	if err := s.replay(ctx, since); err != nil {
		retry = time.NewTimer(s.cfg.Backoff.Delay(replayAttempt))
		retryC = retry.C
	}
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-retryC:
			if err := s.replay(ctx, since); err != nil {
				replayAttempt++
				retry.Reset(s.cfg.Backoff.Delay(replayAttempt))
				continue
			}
			retryC = nil
		case raw, ok := <-sub.Messages():
			if !ok {
				err := sub.Err()
				if err == nil || errors.Is(err, messaging.ErrClosed) {
					err = errors.New("subscription closed by broker")
				}
				return true, err
			}
			s.handle(raw)
		}
	}
}

func (s *Source) handle(raw []byte) {
	n, err := s.decoder.Decode(raw)
	if err != nil {
		s.sink.Report(OriginLive, raw, err)
		return
	}
	if s.metrics != nil {
		s.metrics.EventsReceived.WithLabelValues(OriginLive).Inc()
	}

	result := s.log.Append(n)
	s.logger.Debug("event received", "notification_id", n.ID, "type", string(n.Type), "result", result.String())

	if n.Read && s.reconciler != nil {
		s.reconciler.Reconcile([]model.Notification{n})
	}
}

// replay fetches the backlog through the history endpoint. Without a
// watermark it takes the newest ReplayLimit items; with one it pages through
// everything since the watermark, inclusive, and lets the Log drop the
// overlap.
func (s *Source) replay(ctx context.Context, since *time.Time) error {
	if s.history == nil {
		return nil
	}

	filter := model.ListFilter{
		Scope:      s.cfg.Scope,
		Since:      since,
		Pagination: model.Pagination{Page: 1, PageSize: s.cfg.ReplayLimit},
	}
	if since == nil {
		filter.Limit = s.cfg.ReplayLimit
	}

	total := 0
	for page := 1; page <= maxReplayPages; page++ {
		filter.Page = page
		result, err := s.history.List(ctx, filter)
		if err != nil {
			s.logger.Error(err, "backlog replay failed", "page", page)
			return err
		}

		for _, n := range result.Items {
			s.log.Append(n)
		}
		if s.reconciler != nil {
			s.reconciler.Reconcile(result.Items)
		}
		if s.metrics != nil {
			s.metrics.EventsReceived.WithLabelValues(OriginReplay).Add(float64(len(result.Items)))
			if result.Dropped > 0 {
				s.metrics.EventsMalformed.WithLabelValues(OriginReplay).Add(float64(result.Dropped))
			}
		}
		total += len(result.Items)

		if since == nil || len(result.Items) < filter.PageSize || (result.Total > 0 && page*filter.PageSize >= result.Total) {
			break
		}
	}

	s.logger.Info("backlog replayed", "items", total, "since", sinceString(since))
	return nil
}

func (s *Source) setConnected(v bool) {
	s.connected.Store(v)
	if s.metrics == nil {
		return
	}
	if v {
		s.metrics.Connected.Set(1)
	} else {
		s.metrics.Connected.Set(0)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func sinceString(since *time.Time) string {
	if since == nil {
		return "initial"
	}
	return since.Format(time.RFC3339Nano)
}
