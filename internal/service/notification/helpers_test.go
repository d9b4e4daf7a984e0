package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/booking-feed/internal/model"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func notif(id string, createdAt time.Time) model.Notification {
	return model.Notification{
		ID:           id,
		Type:         model.NotificationTypeCreated,
		CustomerID:   "c-" + id,
		CustomerName: "Customer " + id,
		BookingTime:  "18:00",
		CreatedAt:    createdAt,
	}
}

func ids(l *Log) []string {
	var out []string
	for n := range l.Notifications() {
		out = append(out, n.ID)
	}
	return out
}

// firstWinsBackend behaves like the acknowledgment endpoint: the first staff
// member to confirm an id is recorded and every later call gets that record.
type firstWinsBackend struct {
	mu    sync.Mutex
	acks  map[string]model.Acknowledgment
	names map[string]string
	calls int
	clock time.Time
	// gate, when set, is waited on before each call is processed.
	gate chan struct{}
	err  error
}

func newFirstWinsBackend() *firstWinsBackend {
	return &firstWinsBackend{
		acks:  make(map[string]model.Acknowledgment),
		names: map[string]string{"staff-a": "Alice", "staff-b": "Bob"},
		clock: t0.Add(time.Hour),
	}
}

func (b *firstWinsBackend) Acknowledge(ctx context.Context, id, staffID string) (*model.Acknowledgment, error) {
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	if ack, ok := b.acks[id]; ok {
		return &ack, nil
	}
	b.clock = b.clock.Add(time.Second)
	ack := model.Acknowledgment{
		ID:                        id,
		Read:                      true,
		AcknowledgedAt:            b.clock,
		AcknowledgedBy:            staffID,
		AcknowledgedByDisplayName: b.names[staffID],
	}
	b.acks[id] = ack
	return &ack, nil
}

func (b *firstWinsBackend) List(ctx context.Context, filter model.ListFilter) (*model.Page, error) {
	return nil, fmt.Errorf("not implemented")
}

func (b *firstWinsBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type stubBackend struct {
	ack *model.Acknowledgment
	err error
}

func (s stubBackend) Acknowledge(ctx context.Context, id, staffID string) (*model.Acknowledgment, error) {
	return s.ack, s.err
}

func (s stubBackend) List(ctx context.Context, filter model.ListFilter) (*model.Page, error) {
	return nil, fmt.Errorf("not implemented")
}
