package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/observability"
	"solana-dispatch/internal/storage"
)

// SummaryStore implements storage.SummaryStore using PostgreSQL.
type SummaryStore struct {
	pool    *Pool
	metrics *observability.Metrics
}

// NewSummaryStore creates a new SummaryStore. metrics may be nil.
func NewSummaryStore(pool *Pool, metrics *observability.Metrics) *SummaryStore {
	return &SummaryStore{pool: pool, metrics: metrics}
}

// Compile-time interface check.
var _ storage.SummaryStore = (*SummaryStore)(nil)

var outcomeColumns = []string{
	"operation_id", "wallet_index", "wallet", "group_index", "signature", "bundle_id",
	"status", "amount", "submitted_at", "confirmed_at", "confirmation_time_ms", "slot",
	"fee_lamports", "tip_lamports", "endpoint_id", "error_kind", "error_detail",
}

// SaveSummary inserts the summary row and copies its outcomes in one transaction.
// Returns ErrDuplicateKey if operation_id exists.
func (s *SummaryStore) SaveSummary(ctx context.Context, sum *domain.ExecutionSummary) (err error) {
	if err := storage.ValidateSummary(sum); err != nil {
		return err
	}
	start := time.Now()
	defer func() { s.metrics.RecordDBQuery("postgres", "save_summary", time.Since(start), err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO operation_summaries (
			operation_id, plan_id, state, shape, stealth_mode, total_amount,
			wallet_count, confirmed, failed, timed_out, success_rate,
			avg_confirmation_ms, min_confirmation_ms, max_confirmation_ms,
			total_fees, total_tips, detection_risk, abort_reason,
			started_at, finished_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17, $18,
			$19, $20
		)
	`
	_, err = tx.Exec(ctx, query,
		sum.OperationID, sum.PlanID, string(sum.State), string(sum.Shape), string(sum.StealthMode), int64(sum.TotalAmount),
		sum.WalletCount, sum.Confirmed, sum.Failed, sum.TimedOut, sum.SuccessRate,
		sum.AvgConfirmationMs, sum.MinConfirmationMs, sum.MaxConfirmationMs,
		int64(sum.TotalFees), int64(sum.TotalTips), string(sum.DetectionRisk), sum.AbortReason,
		sum.StartedAt, sum.FinishedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert operation summary: %w", err)
	}

	outcomes := sum.Outcomes
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"transaction_outcomes"}, outcomeColumns,
		pgx.CopyFromSlice(len(outcomes), func(i int) ([]any, error) {
			o := outcomes[i]
			return []any{
				sum.OperationID, o.WalletIndex, o.Wallet, o.Group, o.Signature, o.BundleID,
				string(o.Status), int64(o.Amount), nullTime(o.SubmittedAt), nullTime(o.ConfirmedAt), o.ConfirmationTimeMs, o.Slot,
				int64(o.FeeLamports), int64(o.TipLamports), o.EndpointID, string(o.ErrKind), o.ErrorDetail(),
			}, nil
		}))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("copy transaction outcomes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const summarySelect = `
	SELECT
		operation_id, plan_id, state, shape, stealth_mode, total_amount,
		wallet_count, confirmed, failed, timed_out, success_rate,
		avg_confirmation_ms, min_confirmation_ms, max_confirmation_ms,
		total_fees, total_tips, detection_risk, abort_reason,
		started_at, finished_at
	FROM operation_summaries
`

// GetSummary retrieves a summary with its outcomes. Returns ErrNotFound if not exists.
func (s *SummaryStore) GetSummary(ctx context.Context, operationID string) (*domain.ExecutionSummary, error) {
	row := s.pool.QueryRow(ctx, summarySelect+` WHERE operation_id = $1`, operationID)
	sum, err := scanSummary(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get operation summary: %w", err)
	}

	sum.Outcomes, err = s.GetOutcomes(ctx, operationID)
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// ListSummaries returns summaries started at or after since, newest first.
func (s *SummaryStore) ListSummaries(ctx context.Context, since time.Time, limit int) ([]*domain.ExecutionSummary, error) {
	query := summarySelect + ` WHERE started_at >= $1 ORDER BY started_at DESC, operation_id ASC`
	args := []any{since}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query operation summaries: %w", err)
	}
	defer rows.Close()

	var result []*domain.ExecutionSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operation summary: %w", err)
		}
		result = append(result, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operation summaries: %w", err)
	}
	return result, nil
}

// GetOutcomes retrieves the outcomes of an operation ordered by wallet index.
func (s *SummaryStore) GetOutcomes(ctx context.Context, operationID string) ([]domain.TransactionOutcome, error) {
	query := `
		SELECT
			wallet_index, wallet, group_index, signature, bundle_id,
			status, amount, submitted_at, confirmed_at, confirmation_time_ms, slot,
			fee_lamports, tip_lamports, endpoint_id, error_kind, error_detail
		FROM transaction_outcomes
		WHERE operation_id = $1
		ORDER BY wallet_index ASC
	`

	rows, err := s.pool.Query(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("query transaction outcomes: %w", err)
	}
	defer rows.Close()

	var result []domain.TransactionOutcome
	for rows.Next() {
		var (
			o                      domain.TransactionOutcome
			status, kind, detail   string
			amount, fee, tip       int64
			submitted, confirmedAt *time.Time
		)
		if err := rows.Scan(
			&o.WalletIndex, &o.Wallet, &o.Group, &o.Signature, &o.BundleID,
			&status, &amount, &submitted, &confirmedAt, &o.ConfirmationTimeMs, &o.Slot,
			&fee, &tip, &o.EndpointID, &kind, &detail,
		); err != nil {
			return nil, fmt.Errorf("scan transaction outcome: %w", err)
		}
		o.Status = domain.OutcomeStatus(status)
		o.Amount = domain.Lamports(amount)
		o.FeeLamports = domain.Lamports(fee)
		o.TipLamports = domain.Lamports(tip)
		o.ErrKind = domain.ErrorKind(kind)
		o.Err = storage.OutcomeError(detail)
		if submitted != nil {
			o.SubmittedAt = *submitted
		}
		if confirmedAt != nil {
			o.ConfirmedAt = *confirmedAt
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction outcomes: %w", err)
	}
	return result, nil
}

// scanSummary scans a summary row from pgx.Row or pgx.Rows.
func scanSummary(row pgx.Row) (*domain.ExecutionSummary, error) {
	var (
		sum                      domain.ExecutionSummary
		state, shape, mode, risk string
		total, fees, tips        int64
	)
	err := row.Scan(
		&sum.OperationID, &sum.PlanID, &state, &shape, &mode, &total,
		&sum.WalletCount, &sum.Confirmed, &sum.Failed, &sum.TimedOut, &sum.SuccessRate,
		&sum.AvgConfirmationMs, &sum.MinConfirmationMs, &sum.MaxConfirmationMs,
		&fees, &tips, &risk, &sum.AbortReason,
		&sum.StartedAt, &sum.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	sum.State = domain.OperationState(state)
	sum.Shape = domain.DistributionShape(shape)
	sum.StealthMode = domain.StealthMode(mode)
	sum.TotalAmount = domain.Lamports(total)
	sum.TotalFees = domain.Lamports(fees)
	sum.TotalTips = domain.Lamports(tips)
	sum.DetectionRisk = domain.DetectionRisk(risk)
	return &sum, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
