package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	pureRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pure_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	pureRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pure_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	pureRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pure_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts including the first one.
	// 0 retries without limit until success, a terminal error or ctx is done.
	MaxAttempts int

	// InitialBackoff is the first wait.
	InitialBackoff time.Duration

	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait after each attempt.
	BackoffMultiplier float64

	// Retryable decides which error classes are retried.
	// nil retries network, server and rate_limit errors.
	Retryable func(ErrorClass) bool
}

// DefaultRetryConfig returns exponential backoff starting at 1s and capped
// at 60s, without an attempt limit.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       0,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// NoRetry returns a configuration that makes exactly one attempt.
func NoRetry() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 1
	return cfg
}

func (rc RetryConfig) retryable(class ErrorClass) bool {
	if class == "" {
		return false
	}
	if rc.Retryable != nil {
		return rc.Retryable(class)
	}
	return shouldRetry(class)
}

func (rc RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if rc.InitialBackoff > 0 {
		eb.InitialInterval = rc.InitialBackoff
	}
	if rc.MaxBackoff > 0 {
		eb.MaxInterval = rc.MaxBackoff
	}
	if rc.BackoffMultiplier >= 1 {
		eb.Multiplier = rc.BackoffMultiplier
	}
	// ±20% jitter
	eb.RandomizationFactor = 0.2
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	if rc.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(rc.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// retryWithBackoff runs fn until it succeeds, returns a class the policy does
// not retry, the attempt budget is spent, or ctx is done. fn reports the
// class of its failure alongside the error.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func() (ErrorClass, error)) error {
	var (
		attempt   int
		lastClass ErrorClass
		terminal  bool
	)

	operation := func() error {
		attempt++
		class, err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(lastClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastClass = class
		if !cfg.retryable(class) {
			terminal = true
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		pureRetriesTotal.WithLabelValues(string(lastClass)).Inc()
		pureRetryBackoffSeconds.WithLabelValues(string(lastClass)).Observe(wait.Seconds())

		logger.Debug().
			Err(err).
			Str("error_class", string(lastClass)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")
	}

	err := backoff.RetryNotify(operation, cfg.backOff(ctx), notify)
	if err == nil || terminal {
		return err
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		logger.Warn().
			Str("error_class", string(lastClass)).
			Int("attempt", attempt).
			Msg("Context cancelled during retry backoff")
		return err
	}

	pureRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	logger.Warn().
		Str("error_class", string(lastClass)).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
}
