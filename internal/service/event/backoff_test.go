package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{100, time.Second},
		{5000, time.Second},
		{-1, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoffJitterStaysWithinBounds(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2, Jitter: 0.5}

	b.random = func() float64 { return 0 }
	assert.Equal(t, 2*time.Second, b.Delay(1))

	b.random = func() float64 { return 0.999999 }
	d := b.Delay(1)
	assert.Greater(t, d, time.Second-time.Millisecond)
	assert.LessOrEqual(t, d, 2*time.Second)
}

func TestBackoffDefaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, 500*time.Millisecond, b.Delay(0))
	assert.Equal(t, 30*time.Second, b.Delay(50))
}
