package endpoint

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-dispatch/internal/domain"
)

type fakeProber struct {
	mu    sync.Mutex
	errs  map[string]error
	calls atomic.Int32
}

func (f *fakeProber) Probe(_ context.Context, ep domain.Endpoint) error {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[ep.ID]
}

func (f *fakeProber) set(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	f.errs[id] = err
}

func testEndpoints() []domain.Endpoint {
	return []domain.Endpoint{
		{ID: "primary", URL: "http://primary", Role: domain.RoleDirect, Priority: 0},
		{ID: "secondary", URL: "http://secondary", Role: domain.RoleDirect, Priority: 1},
		{ID: "tertiary", URL: "http://tertiary", Role: domain.RoleDirect, Priority: 2},
		{ID: "engine", URL: "http://engine", Role: domain.RoleBlockEngine, Priority: 0},
	}
}

func newTestPool(t *testing.T, prober Prober, opts Options) *Pool {
	t.Helper()
	p, err := NewPool(testEndpoints(), prober, opts)
	require.NoError(t, err)
	return p
}

func TestPool_ActiveEndpointByPriority(t *testing.T) {
	p := newTestPool(t, nil, Options{})

	ep, err := p.ActiveEndpoint(domain.RoleDirect)
	require.NoError(t, err)
	assert.Equal(t, "primary", ep.ID)

	ep, err = p.ActiveEndpoint(domain.RoleBlockEngine)
	require.NoError(t, err)
	assert.Equal(t, "engine", ep.ID)
}

func TestPool_FailoverAfterThreshold(t *testing.T) {
	p := newTestPool(t, nil, Options{})
	boom := errors.New("connection refused")

	p.ReportFailure("primary", boom)
	p.ReportFailure("primary", boom)
	ep, err := p.ActiveEndpoint(domain.RoleDirect)
	require.NoError(t, err)
	assert.Equal(t, "primary", ep.ID, "below threshold the primary stays active")

	p.ReportFailure("primary", boom)
	ep, err = p.ActiveEndpoint(domain.RoleDirect)
	require.NoError(t, err)
	assert.Equal(t, "secondary", ep.ID)

	var primary domain.EndpointHealth
	for _, h := range p.Health() {
		if h.Endpoint.ID == "primary" {
			primary = h
		}
	}
	assert.False(t, primary.Healthy)
	assert.Equal(t, 3, primary.ConsecutiveFailures)
	assert.Equal(t, "connection refused", primary.LastError)
}

func TestPool_SuccessResetsFailures(t *testing.T) {
	p := newTestPool(t, nil, Options{FailureThreshold: 2})

	p.ReportFailure("primary", errors.New("x"))
	p.ReportSuccess("primary", 20*time.Millisecond)
	p.ReportFailure("primary", errors.New("x"))

	ep, err := p.ActiveEndpoint(domain.RoleDirect)
	require.NoError(t, err)
	assert.Equal(t, "primary", ep.ID)
}

func TestPool_NoHealthyEndpoint(t *testing.T) {
	p := newTestPool(t, nil, Options{FailureThreshold: 1})
	p.ReportFailure("engine", errors.New("down"))

	_, err := p.ActiveEndpoint(domain.RoleBlockEngine)
	assert.ErrorIs(t, err, domain.ErrEndpointUnavailable)
}

func TestPool_NextEndpointExcludes(t *testing.T) {
	p := newTestPool(t, nil, Options{})

	ep, err := p.NextEndpoint(domain.RoleDirect, map[string]bool{"primary": true})
	require.NoError(t, err)
	assert.Equal(t, "secondary", ep.ID)

	_, err = p.NextEndpoint(domain.RoleDirect, map[string]bool{"primary": true, "secondary": true, "tertiary": true})
	assert.ErrorIs(t, err, domain.ErrEndpointUnavailable)
}

func TestPool_LatencyEWMA(t *testing.T) {
	p := newTestPool(t, nil, Options{LatencyAlpha: 0.5})

	p.ReportSuccess("primary", 100*time.Millisecond)
	p.ReportSuccess("primary", 200*time.Millisecond)

	h := p.Health()
	require.NotEmpty(t, h)
	for _, e := range h {
		if e.Endpoint.ID == "primary" {
			assert.InDelta(t, 150.0, e.LatencyMs, 0.001)
		}
	}
}

func TestPool_Switch(t *testing.T) {
	p := newTestPool(t, nil, Options{})

	require.NoError(t, p.Switch("tertiary"))
	ep, err := p.ActiveEndpoint(domain.RoleDirect)
	require.NoError(t, err)
	assert.Equal(t, "tertiary", ep.ID)

	require.NoError(t, p.Switch("secondary"))
	ep, err = p.ActiveEndpoint(domain.RoleDirect)
	require.NoError(t, err)
	assert.Equal(t, "secondary", ep.ID)

	// block-engine ranking is untouched
	ep, err = p.ActiveEndpoint(domain.RoleBlockEngine)
	require.NoError(t, err)
	assert.Equal(t, "engine", ep.ID)

	assert.ErrorIs(t, p.Switch("nope"), domain.ErrUnknownEndpoint)
}

func TestPool_HealthSorted(t *testing.T) {
	p := newTestPool(t, nil, Options{})
	require.NoError(t, p.Switch("tertiary"))

	var ids []string
	for _, h := range p.Health() {
		ids = append(ids, h.Endpoint.ID)
	}
	assert.Equal(t, []string{"engine", "tertiary", "primary", "secondary"}, ids)
}

func TestPool_RunHealthCheck(t *testing.T) {
	prober := &fakeProber{}
	prober.set("secondary", errors.New("unhealthy"))
	p := newTestPool(t, prober, Options{FailureThreshold: 1, RetryDelay: time.Millisecond})

	p.RunHealthCheck(context.Background())

	for _, h := range p.Health() {
		if h.Endpoint.ID == "secondary" {
			assert.False(t, h.Healthy)
		} else {
			assert.True(t, h.Healthy, h.Endpoint.ID)
			assert.False(t, h.LastCheckedAt.IsZero())
		}
	}
	// MaxRetries is zero, so every endpoint is probed exactly once
	assert.Equal(t, int32(4), prober.calls.Load())

	// a later successful probe re-marks the endpoint healthy
	prober.set("secondary", nil)
	p.RunHealthCheck(context.Background())
	_, err := p.NextEndpoint(domain.RoleDirect, map[string]bool{"primary": true})
	require.NoError(t, err)
}

func TestPool_StartStop(t *testing.T) {
	prober := &fakeProber{}
	eps := []domain.Endpoint{
		{ID: "a", URL: "http://a", Role: domain.RoleDirect, HealthCheckInterval: 5 * time.Millisecond},
	}
	p, err := NewPool(eps, prober, Options{HealthCheckEnabled: true})
	require.NoError(t, err)

	p.Start(context.Background())
	require.Eventually(t, func() bool { return prober.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	p.Stop()

	n := prober.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, prober.calls.Load(), "no probes after Stop")

	p.Stop()
}

func TestPool_StartDisabled(t *testing.T) {
	prober := &fakeProber{}
	eps := []domain.Endpoint{
		{ID: "a", URL: "http://a", Role: domain.RoleDirect, HealthCheckInterval: time.Millisecond},
	}
	p, err := NewPool(eps, prober, Options{})
	require.NoError(t, err)

	p.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	p.Stop()
	assert.Equal(t, int32(0), prober.calls.Load())
}

func TestNewPool_Validation(t *testing.T) {
	_, err := NewPool([]domain.Endpoint{{ID: "a", Role: "bogus"}}, nil, Options{})
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = NewPool([]domain.Endpoint{
		{ID: "a", Role: domain.RoleDirect},
		{ID: "a", Role: domain.RoleDirect},
	}, nil, Options{})
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestPool_ConcurrentReportsAndReads(t *testing.T) {
	p := newTestPool(t, nil, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.ReportFailure("primary", errors.New("x"))
				p.ReportSuccess("primary", time.Millisecond)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = p.ActiveEndpoint(domain.RoleDirect)
				_ = p.Health()
			}
		}()
	}
	wg.Wait()
}
