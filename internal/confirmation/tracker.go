// Package confirmation waits for submitted transactions and bundles to reach a
// terminal status.
package confirmation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/solana"
)

// Default tracker values.
const (
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultTimeout       = 30 * time.Second
	DefaultBundleTimeout = 60 * time.Second
)

// Options configures a Tracker.
type Options struct {
	PollInterval  time.Duration
	Timeout       time.Duration // signature confirmation deadline
	BundleTimeout time.Duration // bundle landing deadline
	Commitment    solana.Commitment
	Logger        *slog.Logger
	Now           func() time.Time
}

// Tracker polls signature and bundle statuses until they settle.
type Tracker struct {
	pollInterval  time.Duration
	timeout       time.Duration
	bundleTimeout time.Duration
	commitment    solana.Commitment
	logger        *slog.Logger
	now           func() time.Time
}

// NewTracker creates a tracker. Zero options take their defaults.
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		pollInterval:  opts.PollInterval,
		timeout:       opts.Timeout,
		bundleTimeout: opts.BundleTimeout,
		commitment:    opts.Commitment,
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if t.pollInterval <= 0 {
		t.pollInterval = DefaultPollInterval
	}
	if t.timeout <= 0 {
		t.timeout = DefaultTimeout
	}
	if t.bundleTimeout <= 0 {
		t.bundleTimeout = DefaultBundleTimeout
	}
	if t.commitment == "" {
		t.commitment = solana.CommitmentConfirmed
	}
	if t.logger == nil {
		t.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if t.now == nil {
		t.now = time.Now
	}
	t.logger = t.logger.With(slog.String("component", "confirmation"))
	return t
}

// Commitment returns the commitment level a transaction must reach.
func (t *Tracker) Commitment() solana.Commitment {
	return t.commitment
}

// TrackOption customizes a single Track call.
type TrackOption func(*trackConfig)

type trackConfig struct {
	ws solana.WSClient
}

// WithSubscriber races a websocket signatureSubscribe against polling.
func WithSubscriber(ws solana.WSClient) TrackOption {
	return func(c *trackConfig) {
		c.ws = ws
	}
}

// Track waits until signature reaches the tracker's commitment, fails on chain
// or the timeout elapses. A timeout <= 0 uses the tracker default. If ctx ends
// first the wallet fails as abandoned, not timed out.
//
// The returned outcome carries Signature, SubmittedAt, Status and the
// confirmation fields; wallet fields are left for the caller.
func (t *Tracker) Track(ctx context.Context, client solana.RPCClient, signature string, submittedAt time.Time, timeout time.Duration, opts ...TrackOption) domain.TransactionOutcome {
	var cfg trackConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if timeout <= 0 {
		timeout = t.timeout
	}

	out := domain.TransactionOutcome{
		Signature:   signature,
		SubmittedAt: submittedAt,
		Status:      domain.StatusPending,
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var notifications <-chan solana.SignatureNotification
	if cfg.ws != nil {
		ch, err := cfg.ws.SignatureSubscribe(ctx, signature, t.commitment)
		if err != nil {
			t.logger.Debug("signature subscribe failed, polling only",
				slog.String("signature", signature),
				slog.String("error", err.Error()))
		} else {
			notifications = ch
		}
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		if t.poll(ctx, client, &out) {
			return out
		}

		select {
		case <-ctx.Done():
			if err := parent.Err(); err != nil {
				t.abandon(&out, err)
			} else {
				t.expire(&out, timeout, ctx.Err())
			}
			return out
		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			if n.Failed() {
				t.fail(&out, n.Slot, n.Err)
			} else {
				t.confirm(&out, n.Slot)
			}
			return out
		case <-ticker.C:
		}
	}
}

// poll queries the signature once and reports whether out became terminal.
// Query errors are logged and retried on the next tick.
func (t *Tracker) poll(ctx context.Context, client solana.RPCClient, out *domain.TransactionOutcome) bool {
	statuses, err := client.GetSignatureStatuses(ctx, []string{out.Signature})
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Debug("status poll failed",
				slog.String("signature", out.Signature),
				slog.String("error", err.Error()))
		}
		return false
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return false
	}

	st := statuses[0]
	switch {
	case st.Failed():
		t.fail(out, st.Slot, st.Err)
		return true
	case st.ConfirmationStatus.Reaches(t.commitment):
		t.confirm(out, st.Slot)
		return true
	}
	return false
}

func (t *Tracker) confirm(out *domain.TransactionOutcome, slot int64) {
	out.Status = domain.StatusConfirmed
	out.Slot = slot
	out.ConfirmedAt = t.now()
	out.ConfirmationTimeMs = out.ConfirmedAt.Sub(out.SubmittedAt).Milliseconds()
}

func (t *Tracker) fail(out *domain.TransactionOutcome, slot int64, chainErr interface{}) {
	out.Status = domain.StatusFailed
	out.Slot = slot
	out.ErrKind = domain.ErrKindTransaction
	out.Err = fmt.Errorf("%w: %v", domain.ErrTransactionRejected, chainErr)
}

func (t *Tracker) abandon(out *domain.TransactionOutcome, cause error) {
	out.Status = domain.StatusFailed
	out.ErrKind = domain.ErrKindSubmission
	out.Err = fmt.Errorf("%w: confirmation abandoned: %w", domain.ErrSubmission, cause)
}

func (t *Tracker) expire(out *domain.TransactionOutcome, timeout time.Duration, cause error) {
	out.Status = domain.StatusTimedOut
	out.ErrKind = domain.ErrKindConfirmationTimeout
	out.Err = fmt.Errorf("%w after %s: %v", domain.ErrConfirmationTimeout, timeout, cause)
}
