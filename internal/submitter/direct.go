package submitter

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"solana-dispatch/internal/confirmation"
	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/solana"
	"solana-dispatch/internal/txbuild"
)

// submitDirect sends one transaction per wallet through a direct RPC endpoint.
// Batched groups send all wallets concurrently from one blockhash; sequential
// groups fetch a fresh blockhash per wallet and wait for each outcome in turn.
func (s *Submitter) submitDirect(ctx context.Context, group domain.ExecutionGroup, ep domain.Endpoint, concurrent bool, logger *slog.Logger) GroupResult {
	client, err := s.clients.RPC(ep.ID)
	if err != nil {
		return failAll(group, ep, domain.ErrKindEndpointUnavailable, fmt.Errorf("%w: %v", domain.ErrEndpointUnavailable, err), false)
	}

	var ws solana.WSClient
	if c, ok := s.clients.WS(ctx, ep.ID); ok {
		ws = c
	}

	outcomes := make([]domain.TransactionOutcome, group.Size())
	retryable := make([]bool, group.Size())

	if concurrent {
		blockhash, err := s.fetchBlockhash(ctx, client, ep, logger)
		if err != nil {
			kind, canRetry, ferr := classify(ctx, ep, err, domain.ErrTransactionRejected)
			logger.Warn("blockhash unavailable", slog.String("error", err.Error()))
			return failAll(group, ep, kind, ferr, canRetry)
		}

		var g errgroup.Group
		if s.maxConc > 0 {
			g.SetLimit(s.maxConc)
		}
		for i, a := range group.Allocations {
			g.Go(func() error {
				outcomes[i], retryable[i] = s.submitOne(ctx, client, ws, ep, a, blockhash, logger)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, a := range group.Allocations {
			blockhash, err := s.fetchBlockhash(ctx, client, ep, logger)
			if err != nil {
				kind, canRetry, ferr := classify(ctx, ep, err, domain.ErrTransactionRejected)
				o := domain.FailOutcome(a, kind, ferr)
				o.EndpointID = ep.ID
				outcomes[i], retryable[i] = o, canRetry
				continue
			}
			outcomes[i], retryable[i] = s.submitOne(ctx, client, ws, ep, a, blockhash, logger)
		}
	}

	res := GroupResult{Outcomes: outcomes}
	for i, o := range outcomes {
		if !retryable[i] {
			continue
		}
		res.Retryable = append(res.Retryable, o.WalletIndex)
		if res.TransportErr == nil {
			res.TransportErr = o.Err
		}
	}
	return res
}

// submitOne builds, sends and tracks one wallet's transaction. The bool
// reports a transport failure worth retrying elsewhere.
func (s *Submitter) submitOne(ctx context.Context, client solana.RPCClient, ws solana.WSClient, ep domain.Endpoint, a domain.WalletAllocation, blockhash txbuild.Hash, logger *slog.Logger) (domain.TransactionOutcome, bool) {
	logger = logger.With(slog.Int("wallet", a.Index))

	tx, err := s.builder.Build(ctx, a, blockhash)
	var raw []byte
	if err == nil {
		raw, err = tx.Serialize()
	}
	if err != nil {
		o := domain.FailOutcome(a, domain.ErrKindTransaction, fmt.Errorf("%w: build: %v", domain.ErrTransactionRejected, err))
		o.EndpointID = ep.ID
		return o, false
	}

	submittedAt := s.now()
	var sig string
	err = s.call(ctx, ep, "sendTransaction", logger, func(ctx context.Context) error {
		var err error
		sig, err = client.SendTransaction(ctx, raw, &solana.SendOptions{SkipPreflight: s.skipPre})
		return err
	})
	if err != nil {
		kind, canRetry, ferr := classify(ctx, ep, err, domain.ErrTransactionRejected)
		logger.Debug("send failed", slog.String("error", err.Error()), slog.Bool("retryable", canRetry))
		o := domain.FailOutcome(a, kind, ferr)
		o.EndpointID = ep.ID
		o.SubmittedAt = submittedAt
		return o, canRetry
	}
	if sig == "" {
		sig = tx.Signature()
	}

	var opts []confirmation.TrackOption
	if ws != nil {
		opts = append(opts, confirmation.WithSubscriber(ws))
	}
	o := s.tracker.Track(ctx, client, sig, submittedAt, s.confTimeout, opts...)
	o.WalletIndex = a.Index
	o.Wallet = a.Address()
	o.Group = a.Group
	o.Amount = a.Amount
	o.EndpointID = ep.ID
	// landed, successfully or not
	if o.Status == domain.StatusConfirmed || o.ErrKind == domain.ErrKindTransaction {
		o.FeeLamports = tx.Fee()
	}

	logger.Debug("wallet settled",
		slog.String("signature", sig),
		slog.String("status", string(o.Status)),
		slog.Int64("confirmation_ms", o.ConfirmationTimeMs))
	return o, false
}
