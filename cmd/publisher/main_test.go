package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-feed/pkg/logger"
)

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	payloads []string
	// failures is how many calls fail before one succeeds.
	failures int
	calls    int
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		return errors.New("connection refused")
	}
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, string(payload))
	return nil
}

const events = `{"id":"e1","type":"created","customerId":"c1","customerName":"Ann","bookingTime":"18:00","createdAt":"2024-05-01T10:00:00Z"}

{"id":"e2","type":"exploded","customerId":"c2","customerName":"Bo","bookingTime":"19:00","createdAt":"2024-05-01T10:01:00Z"}
not json
{"id":"e3","type":"cancelled","customerId":"c3","customerName":"Cy","bookingTime":"20:00","createdAt":"2024-05-01T10:02:00Z"}
`

func TestRunPublishesValidLines(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewEventPublisher(pub, "bookings:venue-1", logger.Nop())

	stats, err := p.Run(context.Background(), strings.NewReader(events))
	require.NoError(t, err)

	assert.Equal(t, Stats{Published: 2, Rejected: 2}, stats)
	require.Len(t, pub.payloads, 2)
	assert.Contains(t, pub.payloads[0], `"id":"e1"`)
	assert.Contains(t, pub.payloads[1], `"id":"e3"`)
	assert.Equal(t, []string{"bookings:venue-1", "bookings:venue-1"}, pub.channels)
}

func TestRunRetriesPublish(t *testing.T) {
	pub := &recordingPublisher{failures: 2}
	p := NewEventPublisher(pub, "bookings", logger.Nop())
	p.retryDelay = time.Millisecond

	stats, err := p.Run(context.Background(), strings.NewReader(strings.SplitN(events, "\n", 2)[0]))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Published)
	assert.Equal(t, 3, pub.calls)
}

func TestRunCountsExhaustedRetries(t *testing.T) {
	pub := &recordingPublisher{failures: 10}
	p := NewEventPublisher(pub, "bookings", logger.Nop())
	p.retryDelay = time.Millisecond

	stats, err := p.Run(context.Background(), strings.NewReader(strings.SplitN(events, "\n", 2)[0]))
	require.NoError(t, err)
	assert.Equal(t, Stats{Failed: 1}, stats)
	assert.Equal(t, 3, pub.calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewEventPublisher(pub, "bookings", logger.Nop())
	p.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	stats, err := p.Run(ctx, strings.NewReader(events))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.Published)
}
