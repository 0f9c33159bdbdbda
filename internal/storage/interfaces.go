package storage

import (
	"context"
	"errors"
	"time"

	"solana-dispatch/internal/domain"
)

// SummarySink receives finished operation summaries for analytics.
type SummarySink interface {
	// SaveSummary persists a summary and its outcomes. Returns ErrDuplicateKey if operation_id exists.
	SaveSummary(ctx context.Context, s *domain.ExecutionSummary) error
}

// SummaryStore is a queryable SummarySink.
type SummaryStore interface {
	SummarySink

	// GetSummary retrieves a summary with its outcomes. Returns ErrNotFound if not exists.
	GetSummary(ctx context.Context, operationID string) (*domain.ExecutionSummary, error)

	// ListSummaries returns summaries started at or after since, newest first, without outcomes.
	ListSummaries(ctx context.Context, since time.Time, limit int) ([]*domain.ExecutionSummary, error)

	// GetOutcomes retrieves the outcomes of an operation ordered by wallet index.
	GetOutcomes(ctx context.Context, operationID string) ([]domain.TransactionOutcome, error)
}

// MultiSink hands a summary to every sink and joins their errors.
type MultiSink []SummarySink

// SaveSummary implements SummarySink.
func (m MultiSink) SaveSummary(ctx context.Context, s *domain.ExecutionSummary) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.SaveSummary(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidateSummary checks the fields every sink keys on.
func ValidateSummary(s *domain.ExecutionSummary) error {
	if s == nil || s.OperationID == "" {
		return ErrInvalidInput
	}
	for _, o := range s.Outcomes {
		if !o.Status.IsTerminal() {
			return ErrInvalidInput
		}
	}
	return nil
}

// OutcomeError rebuilds a persisted error detail. Empty details mean no error.
func OutcomeError(detail string) error {
	if detail == "" {
		return nil
	}
	return errors.New(detail)
}

var _ SummarySink = MultiSink(nil)
