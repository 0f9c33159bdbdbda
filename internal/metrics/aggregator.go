// Package metrics turns an operation's outcomes into an ExecutionSummary.
package metrics

import (
	"context"
	"io"
	"log/slog"
	"time"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/storage"
)

// Input is everything known about an operation when it reaches a final state.
type Input struct {
	OperationID string
	Plan        *domain.Plan
	Outcomes    []domain.TransactionOutcome
	State       domain.OperationState
	AbortReason string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Summarize computes the summary of an operation. Outcomes are copied and
// ordered by wallet index; the input is not modified.
func Summarize(in Input) *domain.ExecutionSummary {
	outcomes := sortedOutcomes(in.Outcomes)
	st := computeStats(outcomes)

	sum := &domain.ExecutionSummary{
		OperationID: in.OperationID,
		State:       in.State,
		AbortReason: in.AbortReason,
		WalletCount: len(outcomes),
		StartedAt:   in.StartedAt,
		FinishedAt:  in.FinishedAt,
		Outcomes:    outcomes,

		Confirmed: st.confirmed,
		Failed:    st.failed,
		TimedOut:  st.timedOut,

		AvgConfirmationMs: st.avgMs,
		MinConfirmationMs: st.minMs,
		MaxConfirmationMs: st.maxMs,

		TotalFees: st.fees,
		TotalTips: st.tips,
	}

	if p := in.Plan; p != nil {
		sum.PlanID = p.ID
		sum.Shape = p.Shape
		sum.StealthMode = p.Stealth.Mode
		sum.TotalAmount = p.TotalAmount
		sum.WalletCount = p.WalletCount
		sum.DetectionRisk = ClassifyRisk(p.Stealth)
	}

	sum.SuccessRate = computeSuccessRate(sum.Confirmed, sum.WalletCount)
	return sum
}

// Aggregator computes summaries and hands them to a sink.
type Aggregator struct {
	sink   storage.SummarySink
	logger *slog.Logger
}

// NewAggregator creates an aggregator. sink and logger may be nil.
func NewAggregator(sink storage.SummarySink, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Aggregator{
		sink:   sink,
		logger: logger.With(slog.String("component", "metrics")),
	}
}

// ComputeAndStore computes the summary and persists it. The summary is
// returned even when the sink fails.
func (a *Aggregator) ComputeAndStore(ctx context.Context, in Input) (*domain.ExecutionSummary, error) {
	sum := Summarize(in)
	if a.sink == nil {
		return sum, nil
	}

	if err := a.sink.SaveSummary(ctx, sum); err != nil {
		a.logger.Warn("summary sink failed",
			slog.String("operation_id", sum.OperationID),
			slog.String("error", err.Error()),
		)
		return sum, err
	}
	return sum, nil
}
