package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request throttling.
var (
	pureRateLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pure_rate_limit_waits_total",
		Help: "Total number of requests delayed before sending, by reason",
	}, []string{"reason"})

	pureRetryAfterSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pure_retry_after_seconds",
		Help:    "Retry-After durations announced by the Pure API",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})
)

// Config controls client-side throttling.
type Config struct {
	// RequestsPerSecond caps the request rate. 0 disables the cap.
	RequestsPerSecond float64

	// Burst is the token bucket size (default 1).
	Burst int

	// MaxRetryAfter bounds how long a single Retry-After may block.
	MaxRetryAfter time.Duration
}

// DefaultConfig returns an unthrottled configuration that still honours
// Retry-After up to five minutes.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 0,
		Burst:             1,
		MaxRetryAfter:     5 * time.Minute,
	}
}

// Tracker gates outgoing requests.
type Tracker struct {
	limiter *rate.Limiter
	config  Config
	logger  zerolog.Logger
	now     func() time.Time

	mu    sync.Mutex
	state State
}

// NewTracker creates a tracker for cfg.
func NewTracker(cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxRetryAfter <= 0 {
		cfg.MaxRetryAfter = 5 * time.Minute
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Tracker{
		limiter: rate.NewLimiter(limit, cfg.Burst),
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// State returns a copy of the current server back-pressure state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Wait blocks until a request may be sent or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	t.mu.Lock()
	blocked := t.state.TimeUntilUnblocked(t.now())
	t.mu.Unlock()

	if blocked > 0 {
		pureRateLimitWaitsTotal.WithLabelValues("retry_after").Inc()
		t.logger.Warn().
			Dur("wait", blocked).
			Msg("Pure API asked us to back off - delaying request")

		timer := time.NewTimer(blocked)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if t.limiter.Tokens() < 1 {
		pureRateLimitWaitsTotal.WithLabelValues("client_limit").Inc()
	}
	return t.limiter.Wait(ctx)
}

// UpdateFromResponse records a Retry-After announced with a 429 or 503.
func (t *Tracker) UpdateFromResponse(status int, headers http.Header) {
	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return
	}

	now := t.now()
	d, ok := ParseRetryAfter(headers.Get("Retry-After"), now)
	if !ok {
		return
	}
	if d > t.config.MaxRetryAfter {
		d = t.config.MaxRetryAfter
	}
	pureRetryAfterSeconds.Observe(d.Seconds())

	t.mu.Lock()
	t.state = State{
		BlockedUntil: now.Add(d),
		LastStatus:   status,
		LastUpdate:   now,
	}
	t.mu.Unlock()

	t.logger.Info().
		Int("status", status).
		Dur("retry_after", d).
		Msg("Recorded Retry-After from Pure API")
}
