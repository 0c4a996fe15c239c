package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	graphRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	graphRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graph_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	graphRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for the retry combinator.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the initial
	// request).
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration

	// BackoffMultiplier is the factor applied to the delay after each
	// attempt.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration: five total
// attempts with the delay doubling after each one.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// Only errors carrying a retryable class are re-attempted; everything else
// escapes immediately. Context cancellation is honored during backoff waits.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialBackoff
	policy.MaxInterval = cfg.MaxBackoff
	policy.Multiplier = cfg.BackoffMultiplier
	policy.RandomizationFactor = 0.2
	policy.MaxElapsedTime = 0 // attempt-count bounded, not time bounded
	policy.Reset()

	attempt := 0
	retryable := false

	op := func() error {
		attempt++
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && shouldRetry(apiErr.Class) {
			retryable = true
			return err
		}
		retryable = false
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		class := classOf(err)
		graphRetriesTotal.WithLabelValues(string(class)).Inc()
		graphRetryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		log.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")
	}

	maxRetries := uint64(cfg.MaxAttempts - 1)
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx), notify)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		log.Warn().
			Int("attempt", attempt).
			Msg("Context cancelled during retry backoff")
		return fmt.Errorf("%w: %v", ErrContextCancelled, err)
	}

	if retryable && attempt >= cfg.MaxAttempts {
		class := classOf(err)
		graphRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
		log.Warn().
			Str("error_class", string(class)).
			Int("max_attempts", cfg.MaxAttempts).
			Msg("Retry attempts exhausted")
		return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, err)
	}

	return err
}
