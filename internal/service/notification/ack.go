package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jwalitptl/booking-feed/internal/model"
	"github.com/jwalitptl/booking-feed/internal/repository"
	apperrors "github.com/jwalitptl/booking-feed/pkg/errors"
	"github.com/jwalitptl/booking-feed/pkg/logger"
	"github.com/jwalitptl/booking-feed/pkg/metrics"
)

var (
	errNotInLog    = errors.New("notification not in log")
	errAckInFlight = errors.New("acknowledgment already in flight")
)

// Outcome tells the caller how an acknowledgment resolved.
type Outcome string

const (
	// OutcomeConfirmed means this client was the first confirmer.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeSuperseded means someone else confirmed first; their record won.
	OutcomeSuperseded Outcome = "superseded"
	// OutcomeAlreadyAcknowledged means the entry was already read locally and
	// no request was made.
	OutcomeAlreadyAcknowledged Outcome = "already_acknowledged"
)

type Result struct {
	Acknowledgment model.Acknowledgment `json:"acknowledgment"`
	Outcome        Outcome              `json:"outcome"`
}

type AckConfig struct {
	// StaffID is used when the caller does not name a staff member.
	StaffID string
	// Timeout bounds the backend round trip. It is not tied to the caller's
	// context, so a request outlives a caller that gives up.
	Timeout time.Duration
}

// Acknowledger runs the first-confirmer-wins protocol against the backend and
// is the only writer of read state in the Log.
type Acknowledger struct {
	log     *Log
	repo    repository.NotificationRepository
	cfg     AckConfig
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *logger.Logger
	now     func() time.Time
}

func NewAcknowledger(log *Log, repo repository.NotificationRepository, cfg AckConfig, m *metrics.Metrics, l *logger.Logger) *Acknowledger {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Acknowledger{
		log:     log,
		repo:    repo,
		cfg:     cfg,
		metrics: m,
		logger:  l,
		now:     time.Now,
	}
}

// Acknowledge confirms id as the configured staff member.
func (a *Acknowledger) Acknowledge(ctx context.Context, id string) (*Result, error) {
	return a.AcknowledgeAs(ctx, id, a.cfg.StaffID)
}

// AcknowledgeAs confirms id on behalf of staffID. Concurrent calls for the
// same id share one request, so only the first caller's staff id reaches the
// backend; each caller's Outcome is still judged against its own staffID. If
// ctx ends first the call fails with a retryable AckFailed while the request
// carries on and still updates the Log.
func (a *Acknowledger) AcknowledgeAs(ctx context.Context, id, staffID string) (*Result, error) {
	if staffID == "" {
		return nil, apperrors.BadRequest("staff id is required", nil)
	}

	ch := a.group.DoChan(id, func() (interface{}, error) {
		return a.acknowledge(context.WithoutCancel(ctx), id, staffID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result := *res.Val.(*Result)
		if result.Outcome != OutcomeAlreadyAcknowledged {
			result.Outcome = OutcomeConfirmed
			if result.Acknowledgment.AcknowledgedBy != staffID {
				result.Outcome = OutcomeSuperseded
				a.logger.Info("acknowledgment superseded", "notification_id", id, "staff_id", staffID,
					"acknowledged_by", result.Acknowledgment.AcknowledgedBy)
			}
		}
		a.record(string(result.Outcome), 1)
		return &result, nil
	case <-ctx.Done():
		return nil, apperrors.AckFailed(id, ctx.Err())
	}
}

func (a *Acknowledger) acknowledge(ctx context.Context, id, staffID string) (*Result, error) {
	existing, err := a.log.beginAck(id, staffID, a.now().UTC())
	switch {
	case errors.Is(err, errNotInLog):
		return nil, apperrors.NotFound(fmt.Sprintf("notification %s", id), nil)
	case errors.Is(err, errAckInFlight):
		return nil, apperrors.AckFailed(id, err)
	case existing != nil:
		return &Result{Acknowledgment: *existing, Outcome: OutcomeAlreadyAcknowledged}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	start := time.Now()
	ack, err := a.repo.Acknowledge(ctx, id, staffID)
	if a.metrics != nil {
		a.metrics.AckLatency.Observe(time.Since(start).Seconds())
	}
	if err == nil {
		if ack == nil {
			err = fmt.Errorf("empty acknowledgment for %s", id)
		} else {
			err = ack.Validate(id)
		}
	}
	if err != nil {
		a.log.rollbackAck(id)
		a.record("failed", 1)
		a.logger.Warn("acknowledgment rolled back", "notification_id", id, "staff_id", staffID, "error", err.Error())
		return nil, apperrors.AckFailed(id, err)
	}

	a.log.confirmAck(*ack)
	// Outcome is filled in per caller by AcknowledgeAs.
	return &Result{Acknowledgment: *ack}, nil
}

// Reconcile applies acknowledgments found in history items to entries that
// are still unread locally. It returns how many entries changed.
func (a *Acknowledger) Reconcile(items []model.Notification) int {
	applied := 0
	for i := range items {
		ack := items[i].Acknowledgment()
		if ack == nil || ack.AcknowledgedBy == "" {
			continue
		}
		if a.log.reconcileAck(*ack) {
			applied++
		}
	}
	if applied > 0 {
		a.record("reconciled", applied)
		a.logger.Debug("reconciled acknowledgments", "count", applied)
	}
	return applied
}

func (a *Acknowledger) record(outcome string, n int) {
	if a.metrics == nil {
		return
	}
	a.metrics.AckOutcomes.WithLabelValues(outcome).Add(float64(n))
}
