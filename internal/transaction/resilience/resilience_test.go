package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/client"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

func fastConfig() Config {
	return Config{
		Deadline:             2 * time.Second,
		MaxAttempts:          3,
		RetryWait:            time.Millisecond,
		BreakerWindow:        100,
		BreakerFailureRate:   0.99,
		BreakerOpenDwell:     time.Minute,
		BreakerHalfOpenProbe: 1,
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	executor := NewExecutor("test", fastConfig())

	calls := 0
	err := executor.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientFailure(t *testing.T) {
	executor := NewExecutor("test", fastConfig())

	calls := 0
	err := executor.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &client.CallError{Category: client.CategoryRemote5xx, StatusCode: 503, Err: errors.New("unavailable")}
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	executor := NewExecutor("test", fastConfig())

	calls := 0
	rejection := &client.CallError{Category: client.CategoryRemote4xx, StatusCode: 404, Err: errors.New("not found")}
	err := executor.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return rejection
	})

	var callErr *client.CallError
	assert.ErrorAs(t, err, &callErr)
	assert.Equal(t, client.CategoryRemote4xx, callErr.Category)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustedRetriesBecomeUpstreamUnavailable(t *testing.T) {
	executor := NewExecutor("test", fastConfig())

	calls := 0
	err := executor.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &client.CallError{Category: client.CategoryNetwork, Err: errors.New("connection refused")}
	})

	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	assert.Equal(t, 4, calls, "initial attempt plus three retries")
}

func TestDo_OpenBreakerShortCircuits(t *testing.T) {
	cfg := fastConfig()
	cfg.BreakerWindow = 2
	cfg.BreakerFailureRate = 0.5
	cfg.MaxAttempts = 0
	executor := NewExecutor("test", cfg)

	boom := func(ctx context.Context) error {
		return &client.CallError{Category: client.CategoryRemote5xx, StatusCode: 500, Err: errors.New("boom")}
	}
	for i := 0; i < 2; i++ {
		_ = executor.Do(context.Background(), boom)
	}

	calls := 0
	err := executor.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.Equal(t, 0, calls)
	assert.Equal(t, "open", executor.State())
}

func TestDo_ThrottledIsRetryable(t *testing.T) {
	executor := NewExecutor("test", fastConfig())

	calls := 0
	err := executor.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &client.CallError{Category: client.CategoryThrottled, StatusCode: 429, Err: errors.New("slow down")}
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}
