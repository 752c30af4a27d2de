package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/client"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

type Config struct {
	Deadline             time.Duration
	MaxAttempts          int
	RetryWait            time.Duration
	BreakerWindow        uint32
	BreakerFailureRate   float64
	BreakerOpenDwell     time.Duration
	BreakerHalfOpenProbe uint32
}

// DefaultConfig matches the documented defaults: 5s total deadline, 3 retries
// with 1s exponential backoff, breaker window 10 at 50% failure rate, 30s
// open dwell, 3 half-open probes.
func DefaultConfig() Config {
	return Config{
		Deadline:             5 * time.Second,
		MaxAttempts:          3,
		RetryWait:            time.Second,
		BreakerWindow:        10,
		BreakerFailureRate:   0.5,
		BreakerOpenDwell:     30 * time.Second,
		BreakerHalfOpenProbe: 3,
	}
}

// Executor wraps remote calls with a total deadline, bounded exponential
// retries, and a circuit breaker. Retries are only safe because every remote
// write is keyed by a deterministic operation id.
type Executor struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
}

func NewExecutor(name string, cfg Config) *Executor {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerHalfOpenProbe,
		Timeout:     cfg.BreakerOpenDwell,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerWindow {
				return false
			}
			failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRate >= cfg.BreakerFailureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &Executor{
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Do runs op under the executor's policy. An open breaker fails immediately
// with CIRCUIT_OPEN and is never retried; an exhausted retry budget surfaces
// as UPSTREAM_UNAVAILABLE. Non-retryable upstream answers pass through.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Deadline)
	defer cancel()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = e.cfg.RetryWait
	expo.MaxElapsedTime = e.cfg.Deadline

	policy := backoff.WithContext(
		backoff.WithMaxRetries(expo, uint64(e.cfg.MaxAttempts)),
		ctx,
	)

	attempt := func() error {
		_, err := e.breaker.Execute(func() (interface{}, error) {
			return nil, op(ctx)
		})
		if err == nil {
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(apperrors.ErrCircuitOpen)
		}

		var callErr *client.CallError
		if errors.As(err, &callErr) && !callErr.Retryable() {
			return backoff.Permanent(err)
		}

		return err
	}

	err := backoff.Retry(attempt, policy)
	if err == nil {
		return nil
	}

	if errors.Is(err, apperrors.ErrCircuitOpen) {
		return apperrors.ErrCircuitOpen
	}

	var callErr *client.CallError
	if errors.As(err, &callErr) {
		if callErr.Retryable() {
			return apperrors.ErrUpstreamUnavailable.WithDetails(callErr.Error())
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.ErrUpstreamUnavailable.WithDetails("deadline exceeded")
	}

	return err
}

// State exposes the breaker state for health reporting.
func (e *Executor) State() string {
	return e.breaker.State().String()
}
