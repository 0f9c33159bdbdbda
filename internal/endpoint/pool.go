// Package endpoint manages the pool of RPC and block-engine endpoints:
// priority ranking, consecutive-failure health tracking, periodic probes and
// manual switching.
package endpoint

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/observability"
	"solana-dispatch/internal/retry"
)

// Default pool parameters.
const (
	DefaultFailureThreshold = 3
	DefaultLatencyAlpha     = 0.3
)

// Prober checks the liveness of one endpoint.
type Prober interface {
	Probe(ctx context.Context, ep domain.Endpoint) error
}

// Options configures a Pool.
type Options struct {
	// FailureThreshold is the number of consecutive failures that marks an endpoint unhealthy.
	FailureThreshold int
	// HealthCheckEnabled starts per-endpoint probe loops in Start.
	HealthCheckEnabled bool
	// LatencyAlpha is the EWMA weight of the newest latency sample.
	LatencyAlpha float64
	// RetryDelay is the initial backoff between probe retries.
	RetryDelay time.Duration
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	// Now overrides the clock in tests.
	Now func() time.Time
}

// state is the mutable per-endpoint record, only touched under Pool.mu.
type state struct {
	endpoint            domain.Endpoint
	healthy             bool
	latencyMs           float64
	consecutiveFailures int
	lastError           string
	lastCheckedAt       time.Time
	effectivePriority   int
}

// snapshot is an immutable view published after every write.
type snapshot struct {
	// byRole holds healthy and unhealthy endpoints ordered by effective priority then ID.
	byRole map[domain.EndpointRole][]domain.EndpointHealth
	byID   map[string]domain.EndpointHealth
}

// Pool tracks endpoint health. Writes are serialized by a mutex; reads use the
// latest published snapshot without locking.
type Pool struct {
	opts   Options
	prober Prober
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]*state
	order  []string

	snap atomic.Pointer[snapshot]

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool over endpoints. Endpoint IDs must be unique and roles valid.
// All endpoints start healthy.
func NewPool(endpoints []domain.Endpoint, prober Prober, opts Options) (*Pool, error) {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.LatencyAlpha <= 0 || opts.LatencyAlpha > 1 {
		opts.LatencyAlpha = DefaultLatencyAlpha
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := &Pool{
		opts:   opts,
		prober: prober,
		logger: logger.With(slog.String("component", "endpoint_pool")),
		states: make(map[string]*state, len(endpoints)),
	}

	for _, ep := range endpoints {
		if ep.ID == "" {
			return nil, &domain.ConfigError{Field: "endpoints.id", Reason: "endpoint id is required"}
		}
		if !ep.Role.IsValid() {
			return nil, &domain.ConfigError{Field: "endpoints.role", Reason: fmt.Sprintf("endpoint %q has unknown role %q", ep.ID, ep.Role)}
		}
		if _, dup := p.states[ep.ID]; dup {
			return nil, &domain.ConfigError{Field: "endpoints.id", Reason: fmt.Sprintf("duplicate endpoint id %q", ep.ID)}
		}
		ep = ep.WithDefaults()
		p.states[ep.ID] = &state{
			endpoint:          ep,
			healthy:           true,
			effectivePriority: ep.Priority,
		}
		p.order = append(p.order, ep.ID)
	}

	p.mu.Lock()
	p.publishLocked()
	p.mu.Unlock()
	return p, nil
}

// publishLocked builds and stores a new snapshot. Caller holds p.mu.
func (p *Pool) publishLocked() {
	s := &snapshot{
		byRole: make(map[domain.EndpointRole][]domain.EndpointHealth),
		byID:   make(map[string]domain.EndpointHealth, len(p.states)),
	}
	for _, id := range p.order {
		st := p.states[id]
		h := domain.EndpointHealth{
			Endpoint:            st.endpoint,
			Healthy:             st.healthy,
			LatencyMs:           st.latencyMs,
			ConsecutiveFailures: st.consecutiveFailures,
			LastError:           st.lastError,
			LastCheckedAt:       st.lastCheckedAt,
			EffectivePriority:   st.effectivePriority,
		}
		s.byID[id] = h
		s.byRole[st.endpoint.Role] = append(s.byRole[st.endpoint.Role], h)
	}
	for _, list := range s.byRole {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].EffectivePriority != list[j].EffectivePriority {
				return list[i].EffectivePriority < list[j].EffectivePriority
			}
			return list[i].Endpoint.ID < list[j].Endpoint.ID
		})
	}
	p.snap.Store(s)
}

// ActiveEndpoint returns the preferred healthy endpoint of role.
func (p *Pool) ActiveEndpoint(role domain.EndpointRole) (domain.Endpoint, error) {
	return p.NextEndpoint(role, nil)
}

// NextEndpoint returns the preferred healthy endpoint of role not in exclude.
func (p *Pool) NextEndpoint(role domain.EndpointRole, exclude map[string]bool) (domain.Endpoint, error) {
	for _, h := range p.snap.Load().byRole[role] {
		if h.Healthy && !exclude[h.Endpoint.ID] {
			return h.Endpoint, nil
		}
	}
	return domain.Endpoint{}, fmt.Errorf("%w: no healthy %s endpoint", domain.ErrEndpointUnavailable, role)
}

// Endpoint returns the configuration of an endpoint by ID.
func (p *Pool) Endpoint(id string) (domain.Endpoint, bool) {
	h, ok := p.snap.Load().byID[id]
	return h.Endpoint, ok
}

// ReportFailure records a failed call. The endpoint turns unhealthy once its
// consecutive failures reach the threshold.
func (p *Pool) ReportFailure(id string, err error) {
	p.mu.Lock()
	st, ok := p.states[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	st.consecutiveFailures++
	if err != nil {
		st.lastError = err.Error()
	}
	st.lastCheckedAt = p.opts.Now()
	wasHealthy := st.healthy
	if st.consecutiveFailures >= p.opts.FailureThreshold {
		st.healthy = false
	}
	ep, healthy, latency, failures, lastErr := st.endpoint, st.healthy, st.latencyMs, st.consecutiveFailures, st.lastError
	p.publishLocked()
	p.mu.Unlock()

	p.opts.Metrics.RecordEndpointFailure(id)
	p.opts.Metrics.SetEndpointHealth(id, string(ep.Role), healthy, latency)
	if wasHealthy && !healthy {
		p.logger.Warn("endpoint marked unhealthy",
			slog.String("endpoint", id),
			slog.Int("consecutive_failures", failures),
			slog.String("error", lastErr))
	}
}

// ReportSuccess records a successful call with its latency. It resets the
// failure counter and marks the endpoint healthy.
func (p *Pool) ReportSuccess(id string, latency time.Duration) {
	p.mu.Lock()
	st, ok := p.states[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	ms := float64(latency) / float64(time.Millisecond)
	if st.latencyMs == 0 {
		st.latencyMs = ms
	} else {
		st.latencyMs = p.opts.LatencyAlpha*ms + (1-p.opts.LatencyAlpha)*st.latencyMs
	}
	wasHealthy := st.healthy
	st.consecutiveFailures = 0
	st.healthy = true
	st.lastError = ""
	st.lastCheckedAt = p.opts.Now()
	ep, avg := st.endpoint, st.latencyMs
	p.publishLocked()
	p.mu.Unlock()

	p.opts.Metrics.SetEndpointHealth(id, string(ep.Role), true, avg)
	if !wasHealthy {
		p.logger.Info("endpoint recovered", slog.String("endpoint", id))
	}
}

// RunHealthCheck probes every endpoint once, concurrently, and reports the results.
func (p *Pool) RunHealthCheck(ctx context.Context) {
	p.mu.Lock()
	endpoints := make([]domain.Endpoint, 0, len(p.order))
	for _, id := range p.order {
		endpoints = append(endpoints, p.states[id].endpoint)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, ep := range endpoints {
		wg.Add(1)
		go func(ep domain.Endpoint) {
			defer wg.Done()
			p.check(ctx, ep)
		}(ep)
	}
	wg.Wait()
}

// check probes one endpoint under its timeout and retry budget.
func (p *Pool) check(ctx context.Context, ep domain.Endpoint) {
	if p.prober == nil {
		return
	}

	policy := retry.Default().WithMaxRetries(ep.MaxRetries)
	policy.Retryable = nil
	if p.opts.RetryDelay > 0 {
		policy.InitialDelay = p.opts.RetryDelay
	}

	start := time.Now()
	err := policy.Do(ctx, func(ctx context.Context) error {
		probeCtx, cancel := context.WithTimeout(ctx, ep.Timeout)
		defer cancel()
		start = time.Now()
		return p.prober.Probe(probeCtx, ep)
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.ReportFailure(ep.ID, fmt.Errorf("health check: %w", err))
		return
	}
	p.ReportSuccess(ep.ID, time.Since(start))
}

// Start launches one probe loop per endpoint at its HealthCheckInterval.
// It is a no-op when health checks are disabled or the pool is already running.
func (p *Pool) Start(ctx context.Context) {
	if !p.opts.HealthCheckEnabled {
		return
	}

	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.mu.Lock()
	endpoints := make([]domain.Endpoint, 0, len(p.order))
	for _, id := range p.order {
		endpoints = append(endpoints, p.states[id].endpoint)
	}
	p.mu.Unlock()

	for _, ep := range endpoints {
		p.wg.Add(1)
		go p.loop(ctx, ep)
	}
	p.logger.Info("health checks started", slog.Int("endpoints", len(endpoints)))
}

func (p *Pool) loop(ctx context.Context, ep domain.Endpoint) {
	defer p.wg.Done()

	ticker := time.NewTicker(ep.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx, ep)
		}
	}
}

// Stop cancels the probe loops and waits for them to exit.
func (p *Pool) Stop() {
	p.runMu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

// Switch ranks the endpoint above every other endpoint of its role for the
// rest of the session.
func (p *Pool) Switch(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	target, ok := p.states[id]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownEndpoint, id)
	}

	best := target.effectivePriority
	for _, st := range p.states {
		if st.endpoint.Role == target.endpoint.Role && st.endpoint.ID != id && st.effectivePriority <= best {
			best = st.effectivePriority - 1
		}
	}
	target.effectivePriority = best
	p.publishLocked()

	p.logger.Info("endpoint switched",
		slog.String("endpoint", id),
		slog.String("role", string(target.endpoint.Role)),
		slog.Int("effective_priority", best))
	return nil
}

// Health returns a snapshot of every endpoint, sorted by role then effective priority.
func (p *Pool) Health() []domain.EndpointHealth {
	s := p.snap.Load()
	roles := make([]string, 0, len(s.byRole))
	for r := range s.byRole {
		roles = append(roles, string(r))
	}
	sort.Strings(roles)

	out := make([]domain.EndpointHealth, 0, len(s.byID))
	for _, r := range roles {
		out = append(out, s.byRole[domain.EndpointRole(r)]...)
	}
	return out
}
