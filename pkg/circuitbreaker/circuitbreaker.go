package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	apperrors "github.com/jwalitptl/booking-feed/pkg/errors"
)

type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

type Settings struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures int
	// Timeout is how long the breaker stays open before allowing a trial call.
	Timeout time.Duration
	// IsSuccessful decides which errors count against the breaker. By default
	// every non-nil error does.
	IsSuccessful  func(err error) bool
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker guards calls to a remote dependency. Rejections come back as
// a retryable CircuitOpen AppError.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	if settings.MaxFailures <= 0 {
		settings.MaxFailures = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	maxFailures := uint32(settings.MaxFailures)

	return &CircuitBreaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        settings.Name,
			MaxRequests: 1,
			Timeout:     settings.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful:  settings.IsSuccessful,
			OnStateChange: settings.OnStateChange,
		}),
	}
}

func (c *CircuitBreaker) Name() string { return c.cb.Name() }

func (c *CircuitBreaker) State() State { return c.cb.State() }

// Execute runs fn unless the breaker is open. While half-open only a single
// trial call is let through.
func (c *CircuitBreaker) Execute(fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.CircuitOpen(c.cb.Name())
	}
	return err
}
