package submitter

import (
	"context"
	"fmt"
	"log/slog"

	"solana-dispatch/internal/confirmation"
	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/jito"
	"solana-dispatch/internal/txbuild"
)

// submitAtomic packs the group into one all-or-nothing bundle and sends it to
// the block engine ep. The blockhash comes from the active direct endpoint.
func (s *Submitter) submitAtomic(ctx context.Context, group domain.ExecutionGroup, ep domain.Endpoint, logger *slog.Logger) GroupResult {
	engine, err := s.clients.BlockEngine(ep.ID)
	if err != nil {
		return failAll(group, ep, domain.ErrKindEndpointUnavailable, fmt.Errorf("%w: %v", domain.ErrEndpointUnavailable, err), false)
	}

	direct, err := s.pool.ActiveEndpoint(domain.RoleDirect)
	if err != nil {
		return failAll(group, ep, domain.ErrKindEndpointUnavailable, fmt.Errorf("blockhash source: %w", err), false)
	}
	rpc, err := s.clients.RPC(direct.ID)
	if err != nil {
		return failAll(group, ep, domain.ErrKindEndpointUnavailable, fmt.Errorf("%w: %v", domain.ErrEndpointUnavailable, err), false)
	}
	blockhash, err := s.fetchBlockhash(ctx, rpc, direct, logger)
	if err != nil {
		kind, canRetry, ferr := classify(ctx, direct, err, domain.ErrTransactionRejected)
		logger.Warn("blockhash unavailable", slog.String("source", direct.ID), slog.String("error", err.Error()))
		return failAll(group, ep, kind, ferr, canRetry)
	}

	tipAddr, err := s.tips.Next(ctx, engine)
	if err != nil {
		return failAll(group, ep, domain.ErrKindBundleRejected, fmt.Errorf("%w: %v", domain.ErrBundleRejected, err), false)
	}
	tipAccount, err := txbuild.ParsePublicKey(tipAddr)
	if err != nil {
		return failAll(group, ep, domain.ErrKindBundleRejected, fmt.Errorf("%w: tip account %s: %v", domain.ErrBundleRejected, tipAddr, err), false)
	}

	maxTxs := ep.MaxBundleSize
	if maxTxs <= 0 || maxTxs > jito.MaxBundleSize {
		maxTxs = jito.MaxBundleSize
	}
	bundle, err := s.builder.PackBundle(ctx, group.Allocations, tipAccount, group.TipAmount, blockhash, maxTxs)
	var wire [][]byte
	if err == nil {
		wire, err = bundle.Wire()
	}
	if err != nil {
		return failAll(group, ep, domain.ErrKindTransaction, fmt.Errorf("%w: pack bundle: %v", domain.ErrTransactionRejected, err), false)
	}

	submittedAt := s.now()
	var bundleID string
	err = s.call(ctx, ep, "sendBundle", logger, func(ctx context.Context) error {
		var err error
		bundleID, err = engine.SendBundle(ctx, wire)
		return err
	})
	if err != nil {
		kind, canRetry, ferr := classify(ctx, ep, err, domain.ErrBundleRejected)
		s.metrics.RecordBundle("rejected")
		logger.Warn("bundle send failed", slog.String("error", err.Error()), slog.Bool("retryable", canRetry))
		return failAll(group, ep, kind, ferr, canRetry)
	}

	logger.Info("bundle submitted",
		slog.String("bundle_id", bundleID),
		slog.Int("transactions", len(wire)),
		slog.String("tip_account", tipAddr))

	landed := s.tracker.TrackBundle(ctx, engine, bundleID, submittedAt, s.bundleTO)
	s.metrics.RecordBundle(string(landed.Status))
	if !landed.Landed() {
		logger.Warn("bundle not landed",
			slog.String("bundle_id", bundleID),
			slog.String("status", string(landed.Status)),
			slog.String("error", landed.Err.Error()))
	}

	return bundleOutcomes(group, ep, bundle, landed)
}

// bundleOutcomes expands a bundle result into per-wallet outcomes. Each wallet
// pays one signature fee; the first wallet also pays the tip and its transaction fee.
func bundleOutcomes(group domain.ExecutionGroup, ep domain.Endpoint, bundle *txbuild.PackedBundle, landed confirmation.BundleOutcome) GroupResult {
	res := GroupResult{Outcomes: make([]domain.TransactionOutcome, 0, group.Size())}
	for ci, chunk := range bundle.Chunks {
		sig := bundle.Transactions[ci].Signature()
		for _, a := range chunk {
			o := domain.TransactionOutcome{
				WalletIndex: a.Index,
				Wallet:      a.Address(),
				Group:       a.Group,
				Signature:   sig,
				BundleID:    landed.BundleID,
				Amount:      a.Amount,
				SubmittedAt: landed.SubmittedAt,
				EndpointID:  ep.ID,
			}
			if landed.Landed() {
				o.Status = domain.StatusConfirmed
				o.Slot = landed.Slot
				o.ConfirmedAt = landed.ConfirmedAt
				o.ConfirmationTimeMs = landed.ConfirmationTimeMs
				o.FeeLamports = domain.LamportsPerSignature
				if len(res.Outcomes) == 0 {
					o.TipLamports = group.TipAmount
					o.FeeLamports += bundle.Tip.Fee()
				}
			} else {
				o.Status = domain.StatusFailed
				o.ErrKind = domain.ErrKindBundleRejected
				o.Err = landed.Err
			}
			res.Outcomes = append(res.Outcomes, o)
		}
	}
	return res
}
