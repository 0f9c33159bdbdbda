package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-dispatch/internal/domain"
)

func TestMemory_SlidingWindow(t *testing.T) {
	m := NewMemory()
	clock := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "k", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := m.Allow(ctx, "k", 3, time.Second)
	assert.False(t, ok, "fourth request in the window is rejected")

	ok, _ = m.Allow(ctx, "other", 3, time.Second)
	assert.True(t, ok, "keys are independent")

	clock = clock.Add(1001 * time.Millisecond)
	ok, _ = m.Allow(ctx, "k", 3, time.Second)
	assert.True(t, ok, "window slid past the old requests")
}

func TestWait_ContextCancelled(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ok, _ := m.Allow(ctx, "k", 1, time.Hour)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err := Wait(ctx, m, "k", 1, time.Hour)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEndpointLimiter(t *testing.T) {
	ctx := context.Background()

	var nilLimiter *EndpointLimiter
	assert.NoError(t, nilLimiter.Wait(ctx, domain.Endpoint{ID: "a", RateLimitPerSec: 1}))

	l := NewEndpointLimiter(NewMemory())
	unlimited := domain.Endpoint{ID: "u"}
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx, unlimited))
	}

	limited := domain.Endpoint{ID: "l", RateLimitPerSec: 2}
	require.NoError(t, l.Wait(ctx, limited))
	require.NoError(t, l.Wait(ctx, limited))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := l.Wait(short, limited)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

type brokenBackend struct{}

func (brokenBackend) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestEndpointLimiter_BackendError(t *testing.T) {
	l := NewEndpointLimiter(brokenBackend{})

	err := l.Wait(context.Background(), domain.Endpoint{ID: "a", RateLimitPerSec: 5})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}
