// Package clients maps pool endpoints to their transport clients.
package clients

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/jito"
	"solana-dispatch/internal/solana"
)

// WSRetryAfter is how long a failed websocket dial is remembered before the
// endpoint is dialed again.
const WSRetryAfter = 30 * time.Second

// Registry holds one transport client per endpoint ID.
type Registry struct {
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	endpoints map[string]domain.Endpoint
	rpc       map[string]solana.RPCClient
	engines   map[string]jito.BlockEngine
	ws        map[string]solana.WSClient
	wsFailed  map[string]time.Time
	closed    bool

	dials singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		logger:    logger.With(slog.String("component", "clients")),
		now:       time.Now,
		endpoints: make(map[string]domain.Endpoint),
		rpc:       make(map[string]solana.RPCClient),
		engines:   make(map[string]jito.BlockEngine),
		ws:        make(map[string]solana.WSClient),
		wsFailed:  make(map[string]time.Time),
	}
}

// FromEndpoints creates HTTP clients for every endpoint: Solana RPC clients for
// direct endpoints, block-engine clients for block-engine endpoints.
// Clients make a single attempt per call; retries are applied by the caller.
func FromEndpoints(endpoints []domain.Endpoint, logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	for _, ep := range endpoints {
		ep = ep.WithDefaults()
		opts := []solana.ClientOption{
			solana.WithTimeout(ep.Timeout),
			solana.WithMaxRetries(0),
		}
		switch ep.Role {
		case domain.RoleBlockEngine:
			r.RegisterBlockEngine(ep, jito.NewClient(ep.URL, opts...))
		default:
			r.RegisterRPC(ep, solana.NewHTTPClient(ep.URL, opts...))
		}
	}
	return r
}

// RegisterRPC registers a Solana RPC client for a direct endpoint.
func (r *Registry) RegisterRPC(ep domain.Endpoint, c solana.RPCClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[ep.ID] = ep
	r.rpc[ep.ID] = c
}

// RegisterBlockEngine registers a block-engine client.
func (r *Registry) RegisterBlockEngine(ep domain.Endpoint, e jito.BlockEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[ep.ID] = ep
	r.engines[ep.ID] = e
}

// RegisterWS registers a websocket client for an endpoint.
func (r *Registry) RegisterWS(id string, c solana.WSClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ws[id] = c
}

// RPC returns the Solana RPC client of an endpoint.
func (r *Registry) RPC(id string) (solana.RPCClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.rpc[id]
	if !ok {
		return nil, fmt.Errorf("%w: no rpc client for %q", domain.ErrUnknownEndpoint, id)
	}
	return c, nil
}

// BlockEngine returns the block-engine client of an endpoint.
func (r *Registry) BlockEngine(id string) (jito.BlockEngine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[id]
	if !ok {
		return nil, fmt.Errorf("%w: no block engine client for %q", domain.ErrUnknownEndpoint, id)
	}
	return e, nil
}

// WS returns the websocket client of an endpoint, dialing it on first use when
// the endpoint has a WSURL. ok is false when no websocket is available. Dials
// run outside the registry lock, one at a time per endpoint, and a failed dial
// is not retried for WSRetryAfter.
func (r *Registry) WS(ctx context.Context, id string) (solana.WSClient, bool) {
	r.mu.RLock()
	c, ok := r.ws[id]
	ep, known := r.endpoints[id]
	failedAt, failed := r.wsFailed[id]
	closed := r.closed
	r.mu.RUnlock()
	switch {
	case ok:
		return c, true
	case closed, !known, ep.WSURL == "":
		return nil, false
	case failed && r.now().Sub(failedAt) < WSRetryAfter:
		return nil, false
	}

	v, err, _ := r.dials.Do(id, func() (interface{}, error) {
		return r.dialWS(ctx, ep)
	})
	if err != nil {
		return nil, false
	}
	return v.(solana.WSClient), true
}

func (r *Registry) dialWS(ctx context.Context, ep domain.Endpoint) (solana.WSClient, error) {
	r.mu.RLock()
	c, ok := r.ws[ep.ID]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	cfg := solana.DefaultWSConfig()
	cfg.Logger = r.logger
	client, err := solana.NewWSClient(ctx, ep.WSURL, &cfg)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.wsFailed[ep.ID] = r.now()
		r.logger.Warn("websocket unavailable, falling back to polling",
			slog.String("endpoint", ep.ID),
			slog.Duration("retry_after", WSRetryAfter),
			slog.String("error", err.Error()))
		return nil, err
	}
	if r.closed {
		client.Close()
		return nil, fmt.Errorf("registry closed")
	}
	delete(r.wsFailed, ep.ID)
	r.ws[ep.ID] = client
	return client, nil
}

// Probe checks endpoint liveness: getHealth for RPC nodes, getTipAccounts for block engines.
func (r *Registry) Probe(ctx context.Context, ep domain.Endpoint) error {
	if ep.Role == domain.RoleBlockEngine {
		e, err := r.BlockEngine(ep.ID)
		if err != nil {
			return err
		}
		_, err = e.GetTipAccounts(ctx)
		return err
	}

	c, err := r.RPC(ep.ID)
	if err != nil {
		return err
	}
	return c.GetHealth(ctx)
}

// Close closes every websocket client.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, c := range r.ws {
		if err := c.Close(); err != nil {
			r.logger.Warn("close websocket", slog.String("endpoint", id), slog.String("error", err.Error()))
		}
		delete(r.ws, id)
	}
	return nil
}
