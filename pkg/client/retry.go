package client

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	ghostRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghost_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	ghostRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghost_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	ghostRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghost_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// RetryPolicy picks the retry configuration for an error class.
type RetryPolicy func(ErrorClass) RetryConfig

// RetryConfigForErrorClass is the default policy: a failed request is
// reported after one attempt, except for 429 which is retried once the
// Retry-After block recorded by the rate limiter has passed.
func RetryConfigForErrorClass(errorClass ErrorClass) RetryConfig {
	switch errorClass {
	case ErrorClassRateLimit:
		// The tracker already waits out Retry-After; the backoff only adds spacing.
		return RetryConfig{
			MaxAttempts:       5,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		}
	default:
		return RetryConfig{MaxAttempts: 1}
	}
}

// TransientRetryPolicy retries server and network failures with
// exponential backoff. It is opt-in through Config.RetryPolicy and only
// ever applies to GET requests.
func TransientRetryPolicy(errorClass ErrorClass) RetryConfig {
	switch errorClass {
	case ErrorClassServer:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassNetwork:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		}
	default:
		return RetryConfigForErrorClass(errorClass)
	}
}

// writePolicy restricts policy to rate-limit retries. A write that reached
// Ghost may have been applied, so it is never replayed after a server or
// network failure.
func writePolicy(policy RetryPolicy) RetryPolicy {
	return func(errorClass ErrorClass) RetryConfig {
		if errorClass != ErrorClassRateLimit {
			return RetryConfig{MaxAttempts: 1}
		}
		if policy == nil {
			return RetryConfigForErrorClass(errorClass)
		}
		return policy(errorClass)
	}
}

// backoff returns the un-jittered wait after the given failed attempt.
func (c RetryConfig) backoff(attempt int) time.Duration {
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(c.InitialBackoff) * math.Pow(mult, float64(attempt-1)))
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	return d
}

// attemptFunc performs one attempt and classifies its failure.
type attemptFunc func(attempt int) (ErrorClass, error)

// retryWithBackoff runs fn until it succeeds, fails with a class that is not
// retried, or uses up the attempts allowed for its latest error class.
// It respects context cancellation and adds ±20% jitter.
func retryWithBackoff(ctx context.Context, policy RetryPolicy, fn attemptFunc) error {
	if policy == nil {
		policy = RetryConfigForErrorClass
	}

	for attempt := 1; ; attempt++ {
		errorClass, err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				log.Debug().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		if !shouldRetry(errorClass) {
			return err
		}

		config := policy(errorClass)
		if config.MaxAttempts <= 1 {
			return err
		}
		if attempt >= config.MaxAttempts {
			ghostRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
			log.Warn().
				Str("error_class", string(errorClass)).
				Int("max_attempts", config.MaxAttempts).
				Msg("Retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
		}

		ghostRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		jitter := time.Duration(float64(config.backoff(attempt)) * (0.8 + rand.Float64()*0.4))
		ghostRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		log.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}
}
