package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) Policy {
	p := Default()
	p.MaxAttempts = maxAttempts
	p.InitialDelay = time.Millisecond
	p.MaxDelay = 2 * time.Millisecond
	return p
}

func TestPolicy_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return MarkTransient(errors.New("connection reset"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("preflight failure")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestPolicy_ExhaustsAttemptBudget(t *testing.T) {
	calls := 0
	err := fastPolicy(4).Do(context.Background(), func(context.Context) error {
		calls++
		return MarkTransient(errors.New("timeout"))
	})

	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 4, calls)
}

func TestPolicy_WithMaxRetries(t *testing.T) {
	calls := 0
	_ = fastPolicy(1).WithMaxRetries(2).Do(context.Background(), func(context.Context) error {
		calls++
		return MarkTransient(errors.New("503"))
	})
	assert.Equal(t, 3, calls)
}

func TestPolicy_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy(10)
	p.InitialDelay = time.Second
	p.MaxDelay = time.Second

	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return MarkTransient(errors.New("timeout"))
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicy_OnRetryCallback(t *testing.T) {
	var attempts []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	}
	_ = p.Do(context.Background(), func(context.Context) error {
		return MarkTransient(errors.New("x"))
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.True(t, IsTransient(MarkTransient(errors.New("x"))))
	assert.False(t, IsTransient(MarkTransient(context.Canceled)))
}
