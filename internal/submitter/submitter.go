// Package submitter sends execution groups through an endpoint using the
// group's strategy: sequential, batched (concurrent) or atomic (bundle).
package submitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"solana-dispatch/internal/confirmation"
	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/jito"
	"solana-dispatch/internal/observability"
	"solana-dispatch/internal/ratelimit"
	"solana-dispatch/internal/retry"
	"solana-dispatch/internal/solana"
	"solana-dispatch/internal/txbuild"
)

// Pool is the endpoint pool surface the submitter reports to.
type Pool interface {
	ActiveEndpoint(role domain.EndpointRole) (domain.Endpoint, error)
	ReportFailure(id string, err error)
	ReportSuccess(id string, latency time.Duration)
}

// Clients resolves endpoint IDs to transport clients.
type Clients interface {
	RPC(id string) (solana.RPCClient, error)
	BlockEngine(id string) (jito.BlockEngine, error)
	WS(ctx context.Context, id string) (solana.WSClient, bool)
}

// Options configures a Submitter.
type Options struct {
	Builder     *txbuild.Builder
	Tracker     *confirmation.Tracker
	Clients     Clients
	Pool        Pool
	Limiter     *ratelimit.EndpointLimiter
	TipAccounts *jito.TipAccounts
	Metrics     *observability.Metrics
	Logger      *slog.Logger

	ConfirmationTimeout time.Duration
	BundleTimeout       time.Duration
	// SkipPreflight disables node-side simulation of sent transactions.
	SkipPreflight bool
	// MaxConcurrency bounds in-flight wallets of a batched group. 0 is unbounded.
	MaxConcurrency int
	// RetryDelay is the initial backoff between send attempts.
	RetryDelay time.Duration
	Now        func() time.Time
}

// GroupResult is the outcome of submitting one group through one endpoint.
// Every allocation has a terminal outcome, in group order.
type GroupResult struct {
	Outcomes []domain.TransactionOutcome
	// Retryable lists wallet indices that failed on transport errors and may be
	// resubmitted through another endpoint.
	Retryable []int
	// TransportErr is the first transport error seen, nil if none.
	TransportErr error
}

// Submitter submits execution groups.
type Submitter struct {
	builder     *txbuild.Builder
	tracker     *confirmation.Tracker
	clients     Clients
	pool        Pool
	limiter     *ratelimit.EndpointLimiter
	tips        *jito.TipAccounts
	metrics     *observability.Metrics
	logger      *slog.Logger
	confTimeout time.Duration
	bundleTO    time.Duration
	skipPre     bool
	maxConc     int
	retryDelay  time.Duration
	now         func() time.Time
}

// New creates a submitter. Builder, Clients and Pool are required.
func New(opts Options) *Submitter {
	s := &Submitter{
		builder:     opts.Builder,
		tracker:     opts.Tracker,
		clients:     opts.Clients,
		pool:        opts.Pool,
		limiter:     opts.Limiter,
		tips:        opts.TipAccounts,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		confTimeout: opts.ConfirmationTimeout,
		bundleTO:    opts.BundleTimeout,
		skipPre:     opts.SkipPreflight,
		maxConc:     opts.MaxConcurrency,
		retryDelay:  opts.RetryDelay,
		now:         opts.Now,
	}
	if s.tracker == nil {
		s.tracker = confirmation.NewTracker(confirmation.Options{Logger: opts.Logger})
	}
	if s.tips == nil {
		s.tips = jito.NewTipAccounts(nil)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.retryDelay <= 0 {
		s.retryDelay = retry.DefaultInitialDelay
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = s.logger.With(slog.String("component", "submitter"))
	return s
}

// Submit sends group through ep and waits for every wallet's terminal outcome.
func (s *Submitter) Submit(ctx context.Context, group domain.ExecutionGroup, ep domain.Endpoint) GroupResult {
	if len(group.Allocations) == 0 {
		return GroupResult{}
	}

	logger := s.logger.With(
		slog.Int("group", group.Index),
		slog.String("kind", group.Kind.String()),
		slog.String("endpoint", ep.ID))
	logger.Debug("submitting group", slog.Int("wallets", group.Size()))

	var res GroupResult
	switch group.Kind {
	case domain.GroupAtomic:
		res = s.submitAtomic(ctx, group, ep, logger)
	case domain.GroupBatched:
		res = s.submitDirect(ctx, group, ep, true, logger)
	default:
		res = s.submitDirect(ctx, group, ep, false, logger)
	}
	return res
}

// sendPolicy is the per-endpoint send retry policy: endpoint MaxRetries,
// exponential backoff, transport errors only.
func (s *Submitter) sendPolicy(ep domain.Endpoint, logger *slog.Logger) retry.Policy {
	p := retry.Policy{
		InitialDelay: s.retryDelay,
		MaxDelay:     retry.DefaultMaxDelay,
		Multiplier:   retry.DefaultMultiplier,
		Retryable:    isTransport,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Debug("retrying send",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()))
		},
	}
	return p.WithMaxRetries(ep.MaxRetries)
}

// call runs op under the endpoint's rate limit and retry policy and reports
// the result to the pool. RPC-level rejections count as a live endpoint.
func (s *Submitter) call(ctx context.Context, ep domain.Endpoint, method string, logger *slog.Logger, op func(ctx context.Context) error) error {
	start := s.now()
	err := s.sendPolicy(ep, logger).Do(ctx, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx, ep); err != nil {
			// A broken limiter backend fails open; the endpoint is not at fault.
			if !errors.Is(err, ratelimit.ErrUnavailable) {
				return err
			}
			logger.Warn("rate limiter unavailable, sending unthrottled",
				slog.String("method", method),
				slog.String("error", err.Error()))
		}
		return op(ctx)
	})
	latency := s.now().Sub(start)
	s.metrics.RecordRPCLatency(method, latency)

	switch {
	case err == nil, solana.IsRPCError(err):
		s.pool.ReportSuccess(ep.ID, latency)
	case ctx.Err() == nil && isTransport(err):
		s.pool.ReportFailure(ep.ID, err)
	}
	return err
}

// isTransport reports a network-level failure. Local bundle validation errors are not.
func isTransport(err error) bool {
	return solana.IsTransportError(err) &&
		!errors.Is(err, jito.ErrBundleTooLarge) &&
		!errors.Is(err, jito.ErrEmptyBundle)
}

// classify turns a send error into an outcome error kind and reports whether
// the wallet may be retried on another endpoint.
func classify(ctx context.Context, ep domain.Endpoint, err, rejected error) (domain.ErrorKind, bool, error) {
	switch {
	case ctx.Err() != nil:
		return domain.ErrKindSubmission, false, &domain.SubmissionError{EndpointID: ep.ID, Err: err}
	case isTransport(err):
		return domain.ErrKindSubmission, true, &domain.SubmissionError{EndpointID: ep.ID, Err: err}
	default:
		return domain.KindOf(rejected), false, fmt.Errorf("%w: %v", rejected, err)
	}
}

// failAll marks every allocation of group failed with the same error.
func failAll(group domain.ExecutionGroup, ep domain.Endpoint, kind domain.ErrorKind, err error, retryable bool) GroupResult {
	res := GroupResult{Outcomes: make([]domain.TransactionOutcome, 0, group.Size())}
	for _, a := range group.Allocations {
		o := domain.FailOutcome(a, kind, err)
		o.EndpointID = ep.ID
		res.Outcomes = append(res.Outcomes, o)
		if retryable {
			res.Retryable = append(res.Retryable, a.Index)
		}
	}
	if retryable {
		res.TransportErr = err
	}
	return res
}

// fetchBlockhash gets a recent blockhash through ep under the send policy.
func (s *Submitter) fetchBlockhash(ctx context.Context, client solana.RPCClient, ep domain.Endpoint, logger *slog.Logger) (txbuild.Hash, error) {
	var bh *solana.Blockhash
	err := s.call(ctx, ep, "getLatestBlockhash", logger, func(ctx context.Context) error {
		var err error
		bh, err = client.GetLatestBlockhash(ctx, solana.CommitmentConfirmed)
		return err
	})
	if err != nil {
		return txbuild.Hash{}, err
	}
	return txbuild.ParseHash(bh.Blockhash)
}
