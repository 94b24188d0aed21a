package client

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

var pureBreakerStateChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pure_breaker_state_changes_total",
	Help: "Total circuit breaker state transitions by target state",
}, []string{"to"})

// BreakerConfig configures the optional circuit breaker in front of the
// transport. Only network and 5xx failures count against it.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker (default 5).
	ConsecutiveFailures uint32

	// Interval clears the failure counts while closed. 0 never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing (default 30s).
	Timeout time.Duration
}

// DefaultBreakerConfig returns a breaker that opens after 5 consecutive
// failures and probes again after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
	}
}

func newBreaker(cfg BreakerConfig, name string, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			pureBreakerStateChangesTotal.WithLabelValues(to.String()).Inc()
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// breakerSuccess treats 4xx answers as a healthy server.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode < 500
	}
	return false
}
