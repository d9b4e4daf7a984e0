package event

import (
	"time"

	"github.com/jwalitptl/booking-feed/internal/model"
	"github.com/jwalitptl/booking-feed/internal/service/notification"
	"github.com/jwalitptl/booking-feed/pkg/logger"
	"github.com/jwalitptl/booking-feed/pkg/metrics"
)

// Origins label where a payload came from.
const (
	OriginLive   = "live"
	OriginReplay = "replay"
)

// Log is the part of the notification log the Source writes to.
type Log interface {
	Append(n model.Notification) notification.AppendResult
	Watermark() (time.Time, bool)
}

// Reconciler applies acknowledgment state carried by replayed items.
type Reconciler interface {
	Reconcile(items []model.Notification) int
}

// ErrorSink receives payloads dropped as malformed.
type ErrorSink interface {
	Report(origin string, raw []byte, err error)
}

// LogSink reports malformed payloads to the logger and metrics.
type LogSink struct {
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

const maxLoggedPayload = 512

func (s LogSink) Report(origin string, raw []byte, err error) {
	if s.Metrics != nil {
		s.Metrics.EventsMalformed.WithLabelValues(origin).Inc()
	}
	if s.Logger == nil {
		return
	}
	payload := raw
	if len(payload) > maxLoggedPayload {
		payload = payload[:maxLoggedPayload]
	}
	s.Logger.Error(err, "dropped malformed event", "origin", origin, "payload", string(payload))
}
