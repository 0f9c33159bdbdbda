// Package dispatch drives an operation's plan through the submitter group by
// group, with endpoint failover, a process-wide kill-switch and summary
// aggregation.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/metrics"
	"solana-dispatch/internal/observability"
	"solana-dispatch/internal/planner"
	"solana-dispatch/internal/storage"
	"solana-dispatch/internal/submitter"
)

// Default controller parameters.
const (
	DefaultMaxFailoverAttempts    = 2
	DefaultAcceptanceThresholdPct = 100.0
	// DefaultSlotDuration maps one spread block to wall-clock time.
	DefaultSlotDuration = 400 * time.Millisecond
)

// Pool is the endpoint pool surface used by the controller.
type Pool interface {
	ActiveEndpoint(role domain.EndpointRole) (domain.Endpoint, error)
	NextEndpoint(role domain.EndpointRole, exclude map[string]bool) (domain.Endpoint, error)
	Switch(id string) error
	Health() []domain.EndpointHealth
}

// Submitter submits one group through one endpoint.
type Submitter interface {
	Submit(ctx context.Context, group domain.ExecutionGroup, ep domain.Endpoint) submitter.GroupResult
}

var errNoOutcome = fmt.Errorf("%w: no outcome recorded", domain.ErrSubmission)

// Options configures a Controller.
type Options struct {
	Pool      Pool
	Submitter Submitter
	// Planner builds plans for requests without their own seed.
	Planner *planner.Planner

	AutoFailover bool
	// MaxFailoverAttempts is the number of additional endpoints tried per group.
	MaxFailoverAttempts int
	// AcceptanceThresholdPct is the success rate at or above which an operation is COMPLETED.
	AcceptanceThresholdPct float64
	SlotDuration           time.Duration

	Sink    storage.SummarySink
	Metrics *observability.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
	// NewID overrides operation ID generation in tests.
	NewID func() string
}

// OperationRequest describes one multi-wallet operation.
type OperationRequest struct {
	TotalAmount domain.Lamports
	Wallets     []domain.Signer
	Shape       domain.DistributionShape
	Stealth     domain.StealthConfig
	// Seed makes the plan reproducible. Nil uses the controller's planner.
	Seed *int64
}

// Controller runs operations. It is safe for concurrent use.
type Controller struct {
	pool       Pool
	submitter  Submitter
	planner    *planner.Planner
	aggregator *metrics.Aggregator
	metrics    *observability.Metrics
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string

	autoFailover bool
	maxFailover  int
	threshold    float64
	slot         time.Duration

	kill killSwitch
}

// New creates a controller. Pool and Submitter are required.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Controller{
		pool:         opts.Pool,
		submitter:    opts.Submitter,
		planner:      opts.Planner,
		aggregator:   metrics.NewAggregator(opts.Sink, logger),
		metrics:      opts.Metrics,
		logger:       logger.With(slog.String("component", "dispatch")),
		now:          opts.Now,
		newID:        opts.NewID,
		autoFailover: opts.AutoFailover,
		maxFailover:  opts.MaxFailoverAttempts,
		threshold:    opts.AcceptanceThresholdPct,
		slot:         opts.SlotDuration,
	}
	if c.planner == nil {
		c.planner = planner.New(time.Now().UnixNano())
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.maxFailover <= 0 {
		c.maxFailover = DefaultMaxFailoverAttempts
	}
	if c.threshold <= 0 {
		c.threshold = DefaultAcceptanceThresholdPct
	}
	if c.slot <= 0 {
		c.slot = DefaultSlotDuration
	}
	c.metrics.SetKillSwitch(false)
	return c
}

// SubmitOperation plans and executes req. The only error returned is a
// *domain.ConfigError raised before any network call; every other failure is
// reported through the summary.
func (c *Controller) SubmitOperation(ctx context.Context, req OperationRequest) (*domain.ExecutionSummary, error) {
	p := c.planner
	if req.Seed != nil {
		p = planner.New(*req.Seed)
	}
	plan, err := p.Plan(req.TotalAmount, req.Wallets, req.Shape, req.Stealth)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, plan), nil
}

// Execute runs an already built plan.
func (c *Controller) Execute(ctx context.Context, plan *domain.Plan) *domain.ExecutionSummary {
	started := c.now()
	id := c.newID()
	op := newOperation(id, plan, c.logger.With(slog.String("operation_id", id)))
	op.logger.Info("operation started",
		slog.String("plan_id", plan.ID),
		slog.Int("wallets", plan.WalletCount),
		slog.Int("groups", len(plan.Groups)),
		slog.String("stealth_mode", plan.Stealth.Mode.String()),
		slog.Float64("total_sol", plan.TotalAmount.SOL()))

	c.run(ctx, op)
	if n := op.failRemaining(domain.ErrKindSubmission, errNoOutcome); n > 0 {
		op.logger.Error("wallets left without outcome", slog.Int("wallets", n))
	}

	if !op.state.IsFinal() {
		rate := float64(op.confirmed()) / float64(plan.WalletCount) * 100
		if rate >= c.threshold {
			op.transition(domain.StateCompleted)
		} else {
			op.transition(domain.StatePartialFailure)
		}
	}

	finished := c.now()
	// The sink runs even when the caller's context is already done.
	sum, _ := c.aggregator.ComputeAndStore(context.WithoutCancel(ctx), metrics.Input{
		OperationID: id,
		Plan:        plan,
		Outcomes:    op.outcomes,
		State:       op.state,
		AbortReason: op.abort,
		StartedAt:   started,
		FinishedAt:  finished,
	})

	c.metrics.RecordOperation(string(sum.State), finished.Sub(started))
	for _, o := range sum.Outcomes {
		c.metrics.RecordOutcome(string(o.Status), string(o.ErrKind), time.Duration(o.ConfirmationTimeMs)*time.Millisecond)
	}

	op.logger.Info("operation finished",
		slog.String("state", string(sum.State)),
		slog.Int("confirmed", sum.Confirmed),
		slog.Int("failed", sum.Failed),
		slog.Int("timed_out", sum.TimedOut),
		slog.Float64("success_rate", sum.SuccessRate),
		slog.Duration("duration", finished.Sub(started)))
	return sum
}

// run walks the plan's groups in order until done or aborted.
func (c *Controller) run(ctx context.Context, op *operation) {
	for _, group := range op.plan.Groups {
		if ks := c.kill.load(); ks.Active {
			op.abortWith("kill-switch: "+ks.Reason, domain.ErrKindKillSwitch,
				fmt.Errorf("%w: %s", domain.ErrKillSwitchActive, ks.Reason))
			return
		}

		if err := c.wait(ctx, group.DelayBlocks); err != nil {
			op.abortWith("cancelled: "+err.Error(), domain.ErrKindSubmission,
				fmt.Errorf("operation cancelled before group %d: %w", group.Index, err))
			return
		}
		// The switch may have been flipped during the delay.
		if ks := c.kill.load(); ks.Active {
			op.abortWith("kill-switch: "+ks.Reason, domain.ErrKindKillSwitch,
				fmt.Errorf("%w: %s", domain.ErrKillSwitchActive, ks.Reason))
			return
		}

		op.transition(domain.StateSubmitting)
		c.runGroup(ctx, op, group)
		op.transition(domain.StateConfirming)
	}
}

// runGroup submits one group, failing over retryable wallets to other endpoints.
func (c *Controller) runGroup(ctx context.Context, op *operation, group domain.ExecutionGroup) {
	role := group.Kind.Role()
	logger := op.logger.With(
		slog.Int("group", group.Index),
		slog.String("kind", group.Kind.String()))

	ep, err := c.pool.ActiveEndpoint(role)
	if err != nil {
		logger.Warn("no endpoint for group", slog.String("error", err.Error()))
		for _, a := range group.Allocations {
			op.record([]domain.TransactionOutcome{domain.FailOutcome(a, domain.ErrKindEndpointUnavailable, err)})
		}
		c.metrics.RecordGroup(group.Kind.String(), "endpoint_unavailable")
		return
	}

	tried := map[string]bool{ep.ID: true}
	res := c.submitter.Submit(ctx, group, ep)
	op.record(res.Outcomes)

	for attempt := 1; len(res.Retryable) > 0; attempt++ {
		if !c.autoFailover || attempt > c.maxFailover || ctx.Err() != nil {
			break
		}
		if c.kill.load().Active {
			logger.Warn("kill-switch active, skipping failover")
			break
		}
		next, err := c.pool.NextEndpoint(role, tried)
		if err != nil {
			logger.Warn("failover exhausted", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			break
		}
		tried[next.ID] = true

		retry := subGroup(group, res.Retryable)
		logger.Info("failing over",
			slog.String("from", ep.ID),
			slog.String("to", next.ID),
			slog.Int("wallets", retry.Size()),
			slog.Int("attempt", attempt))
		c.metrics.RecordFailover(string(role))

		ep = next
		res = c.submitter.Submit(ctx, retry, ep)
		op.record(res.Outcomes)
	}

	c.metrics.RecordGroup(group.Kind.String(), groupResult(op, group))
}

// wait sleeps for delay blocks. It returns ctx.Err() if ctx ends first.
func (c *Controller) wait(ctx context.Context, blocks float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := time.Duration(blocks * float64(c.slot))
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// subGroup returns group restricted to the given wallet indices.
func subGroup(group domain.ExecutionGroup, indices []int) domain.ExecutionGroup {
	keep := make(map[int]bool, len(indices))
	for _, i := range indices {
		keep[i] = true
	}
	sub := group
	sub.Allocations = nil
	for _, a := range group.Allocations {
		if keep[a.Index] {
			sub.Allocations = append(sub.Allocations, a)
		}
	}
	return sub
}

// groupResult labels a finished group for metrics.
func groupResult(op *operation, group domain.ExecutionGroup) string {
	confirmed := 0
	for _, a := range group.Allocations {
		if op.outcomes[a.Index].Status == domain.StatusConfirmed {
			confirmed++
		}
	}
	switch confirmed {
	case group.Size():
		return "confirmed"
	case 0:
		return "failed"
	default:
		return "partial"
	}
}

// ActivateKillSwitch stops all in-flight operations before their next group
// and aborts future operations until deactivated.
func (c *Controller) ActivateKillSwitch(reason string) KillSwitchStatus {
	if reason == "" {
		reason = "manual"
	}
	st := c.kill.activate(reason, c.now())
	c.metrics.SetKillSwitch(true)
	c.logger.Warn("kill-switch activated", slog.String("reason", st.Reason))
	return st
}

// DeactivateKillSwitch clears the kill-switch.
func (c *Controller) DeactivateKillSwitch() {
	c.kill.deactivate()
	c.metrics.SetKillSwitch(false)
	c.logger.Info("kill-switch deactivated")
}

// KillSwitchStatus returns the current kill-switch state.
func (c *Controller) KillSwitchStatus() KillSwitchStatus {
	return c.kill.load()
}

// GetEndpointHealth returns the pool's health snapshot.
func (c *Controller) GetEndpointHealth() []domain.EndpointHealth {
	return c.pool.Health()
}

// SwitchEndpoint manually prefers the endpoint for the rest of the session.
func (c *Controller) SwitchEndpoint(id string) error {
	return c.pool.Switch(id)
}

// IsConfigError reports whether err came from plan validation.
func IsConfigError(err error) bool {
	return errors.Is(err, domain.ErrConfig)
}
