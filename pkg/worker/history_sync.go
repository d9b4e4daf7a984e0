package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/booking-feed/internal/model"
	"github.com/jwalitptl/booking-feed/internal/repository"
	"github.com/jwalitptl/booking-feed/internal/service/notification"
	"github.com/jwalitptl/booking-feed/pkg/logger"
	"github.com/jwalitptl/booking-feed/pkg/metrics"
)

type HistorySyncConfig struct {
	Scope         string
	PageSize      int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Appender is the Log surface the sync writes to.
type Appender interface {
	Append(n model.Notification) notification.AppendResult
}

type Reconciler interface {
	Reconcile(items []model.Notification) int
}

// HistorySync periodically pulls the newest history page. It fills in any
// event the live channel lost and picks up acknowledgments made by other
// staff members.
type HistorySync struct {
	repo       repository.NotificationRepository
	log        Appender
	reconciler Reconciler
	config     HistorySyncConfig
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewHistorySync(
	repo repository.NotificationRepository,
	log Appender,
	reconciler Reconciler,
	config HistorySyncConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *HistorySync {
	// Config validation instead of defaults
	if config.PageSize <= 0 {
		panic("PageSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}

	return &HistorySync{
		repo:       repo,
		log:        log,
		reconciler: reconciler,
		config:     config,
		logger:     logger,
		metrics:    metrics,
	}
}

// Start blocks until ctx is cancelled.
func (w *HistorySync) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.logger.Info("Starting history sync", "interval", w.config.PollInterval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down history sync")
			return nil
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.logger.Error(err, "History sync failed")
			}
		}
	}
}

// SyncOnce pulls one page and returns how many acknowledgments it applied.
func (w *HistorySync) SyncOnce(ctx context.Context) (int, error) {
	if w.metrics != nil {
		timer := prometheus.NewTimer(w.metrics.BackendLatency.WithLabelValues("history_sync"))
		defer timer.ObserveDuration()
	}

	var page *model.Page
	err := retry(ctx, w.config.RetryAttempts, w.config.RetryDelay, func() error {
		var err error
		page, err = w.repo.List(ctx, model.ListFilter{
			Scope:      w.config.Scope,
			Pagination: model.Pagination{Page: 1, PageSize: w.config.PageSize},
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list history: %w", err)
	}

	inserted := 0
	for _, n := range page.Items {
		if w.log.Append(n) == notification.Inserted {
			inserted++
		}
	}
	applied := w.reconciler.Reconcile(page.Items)

	if inserted > 0 || applied > 0 {
		w.logger.Info("History sync applied changes", "inserted", inserted, "acknowledged", applied)
	}
	return applied, nil
}

// retry runs fn up to attempts times, waiting delay between tries.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
