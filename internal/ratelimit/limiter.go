// Package ratelimit bounds the request rate sent to each endpoint.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"solana-dispatch/internal/domain"
)

// ErrUnavailable wraps limiter backend failures, as opposed to the caller's
// context ending while waiting.
var ErrUnavailable = errors.New("rate limiter unavailable")

// waitPollInterval is the retry interval of Wait while the window is full.
const waitPollInterval = 20 * time.Millisecond

// Limiter is a sliding-window request limiter keyed by caller-chosen strings.
type Limiter interface {
	// Allow counts a request for key and reports whether it fits in the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Wait blocks until l allows a request for key or ctx is done.
func Wait(ctx context.Context, l Limiter, key string, limit int, window time.Duration) error {
	for {
		allowed, err := l.Allow(ctx, key, limit, window)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

// EndpointLimiter applies each endpoint's RateLimitPerSec budget.
type EndpointLimiter struct {
	limiter Limiter
}

// NewEndpointLimiter wraps l. A nil l disables limiting.
func NewEndpointLimiter(l Limiter) *EndpointLimiter {
	return &EndpointLimiter{limiter: l}
}

// Wait blocks until ep may receive another request. Endpoints without a limit pass immediately.
func (e *EndpointLimiter) Wait(ctx context.Context, ep domain.Endpoint) error {
	if e == nil || e.limiter == nil || ep.RateLimitPerSec <= 0 {
		return nil
	}
	err := Wait(ctx, e.limiter, "endpoint:"+ep.ID, ep.RateLimitPerSec, time.Second)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// Memory is an in-process sliding-window Limiter.
type Memory struct {
	mu     sync.Mutex
	now    func() time.Time
	events map[string][]time.Time
}

// NewMemory creates an in-memory limiter.
func NewMemory() *Memory {
	return &Memory{now: time.Now, events: make(map[string][]time.Time)}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-window)
	events := m.events[key]
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	events = events[i:]

	if len(events) >= limit {
		m.events[key] = events
		return false, nil
	}
	m.events[key] = append(events, now)
	return true, nil
}

// Compile-time interface check.
var _ Limiter = (*Memory)(nil)
