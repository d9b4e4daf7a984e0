package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jwalitptl/booking-feed/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/booking-feed/pkg/errors"
	"github.com/jwalitptl/booking-feed/pkg/logger"
	"github.com/jwalitptl/booking-feed/pkg/metrics"
)

const maxErrorBody = 1024

type Config struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond and Burst configure the client-side limiter. Zero
	// disables limiting.
	RequestsPerSecond float64
	Burst             int
	BreakerFailures   int
	BreakerTimeout    time.Duration
}

// Client is the shared HTTP plumbing for the backend repositories. Every call
// is rate limited and guarded by a circuit breaker.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	cb         *circuitbreaker.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

func NewClient(cfg Config, m *metrics.Metrics, l *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if l == nil {
		l = logger.Nop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    limiter,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "backend",
			MaxFailures: cfg.BreakerFailures,
			Timeout:     cfg.BreakerTimeout,
			// Client errors say nothing about backend health.
			IsSuccessful: func(err error) bool {
				return err == nil ||
					apperrors.HasCode(err, apperrors.ErrNotFound) ||
					apperrors.HasCode(err, apperrors.ErrBadRequest)
			},
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				l.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
				if m != nil {
					m.CircuitState.WithLabelValues(name).Set(float64(to))
				}
			},
		}),
		metrics: m,
		logger:  l,
	}
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, result any) error {
	return c.doJSON(ctx, op, http.MethodGet, path, query, nil, result)
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, result any) error {
	return c.doJSON(ctx, op, http.MethodPost, path, nil, body, result)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.Transport(op, err)
	}

	start := time.Now()
	status := 0
	err := c.cb.Execute(func() error {
		var err error
		status, err = c.do(ctx, op, method, path, query, body, result)
		return err
	})
	c.observe(op, status, err, time.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, result any) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, apperrors.Internal(fmt.Errorf("marshal request body: %w", err))
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return 0, apperrors.Internal(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperrors.Transport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		cause := fmt.Errorf("status=%d, body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return resp.StatusCode, apperrors.NotFound(op, cause)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return resp.StatusCode, apperrors.Transport(op, cause)
		default:
			return resp.StatusCode, apperrors.BadRequest(op+": rejected by backend", cause)
		}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, apperrors.Transport(op, fmt.Errorf("decode response: %w", err))
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) observe(op string, status int, err error, elapsed time.Duration) {
	if err != nil {
		c.logger.Debug("backend request failed", "operation", op, "status", status, "error", err.Error())
	}
	if c.metrics == nil {
		return
	}
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
		if apperrors.HasCode(err, apperrors.ErrCircuitOpen) {
			label = "circuit_open"
		}
	}
	c.metrics.BackendRequests.WithLabelValues(op, label).Inc()
	c.metrics.BackendLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}
