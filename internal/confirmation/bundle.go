package confirmation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/jito"
)

// BundleOutcome is the settled state of an atomic bundle.
type BundleOutcome struct {
	BundleID           string
	Status             jito.BundleStatus
	Slot               int64
	SubmittedAt        time.Time
	ConfirmedAt        time.Time
	ConfirmationTimeMs int64
	Err                error // wraps domain.ErrBundleRejected unless landed
}

// Landed reports whether the bundle landed.
func (b BundleOutcome) Landed() bool {
	return b.Status == jito.BundleLanded && b.Err == nil
}

// TrackBundle polls getInflightBundleStatuses until the bundle lands, is
// rejected or timeout elapses. A timeout <= 0 uses the tracker's bundle timeout.
func (t *Tracker) TrackBundle(ctx context.Context, engine jito.BlockEngine, bundleID string, submittedAt time.Time, timeout time.Duration) BundleOutcome {
	if timeout <= 0 {
		timeout = t.bundleTimeout
	}
	out := BundleOutcome{BundleID: bundleID, Status: jito.BundlePending, SubmittedAt: submittedAt}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		if t.pollBundle(ctx, engine, &out) {
			return out
		}

		select {
		case <-ctx.Done():
			out.Err = fmt.Errorf("%w: not landed within %s: %v", domain.ErrBundleRejected, timeout, ctx.Err())
			return out
		case <-ticker.C:
		}
	}
}

func (t *Tracker) pollBundle(ctx context.Context, engine jito.BlockEngine, out *BundleOutcome) bool {
	statuses, err := engine.GetInflightBundleStatuses(ctx, []string{out.BundleID})
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Debug("bundle status poll failed",
				slog.String("bundle_id", out.BundleID),
				slog.String("error", err.Error()))
		}
		return false
	}
	if len(statuses) == 0 {
		return false
	}

	st := statuses[0]
	out.Status = st.Status
	switch st.Status {
	case jito.BundleLanded:
		out.ConfirmedAt = t.now()
		out.ConfirmationTimeMs = out.ConfirmedAt.Sub(out.SubmittedAt).Milliseconds()
		if st.LandedSlot != nil {
			out.Slot = *st.LandedSlot
		} else {
			out.Slot = t.landedSlot(ctx, engine, out.BundleID)
		}
		return true
	case jito.BundleFailed, jito.BundleInvalid:
		out.Err = fmt.Errorf("%w: bundle %s %s", domain.ErrBundleRejected, out.BundleID, st.Status)
		return true
	}
	return false
}

// landedSlot falls back to getBundleStatuses when the inflight entry has no slot.
func (t *Tracker) landedSlot(ctx context.Context, engine jito.BlockEngine, bundleID string) int64 {
	results, err := engine.GetBundleStatuses(ctx, []string{bundleID})
	if err != nil || len(results) == 0 || results[0] == nil {
		return 0
	}
	return results[0].Slot
}
