package event

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes capped exponential reconnect delays:
// Initial * Multiplier^attempt, never above Max.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter in [0,1] shaves a random fraction off each delay so clients
	// dropped together do not reconnect in lockstep.
	Jitter float64

	random func() float64
}

func (b Backoff) withDefaults() Backoff {
	if b.Initial <= 0 {
		b.Initial = 500 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	b.Jitter = math.Min(math.Max(b.Jitter, 0), 1)
	if b.random == nil {
		b.random = rand.Float64
	}
	return b
}

// Delay returns the wait before reconnect attempt number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.withDefaults()
	if attempt < 0 {
		attempt = 0
	}

	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if d > float64(b.Max) || math.IsInf(d, 0) || math.IsNaN(d) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d -= d * b.Jitter * b.random()
	}
	return time.Duration(d)
}
