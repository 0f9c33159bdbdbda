package clickhouse

import (
	"context"
	"fmt"
	"math"
	"time"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/observability"
	"solana-dispatch/internal/storage"
)

// SummaryStore implements storage.SummaryStore using ClickHouse.
// Outcomes are stored denormalized for endpoint and mode analytics.
type SummaryStore struct {
	conn    *Conn
	metrics *observability.Metrics
}

// NewSummaryStore creates a new SummaryStore. metrics may be nil.
func NewSummaryStore(conn *Conn, metrics *observability.Metrics) *SummaryStore {
	return &SummaryStore{conn: conn, metrics: metrics}
}

// Compile-time interface check.
var _ storage.SummaryStore = (*SummaryStore)(nil)

// SaveSummary inserts the summary and batch-inserts its outcomes.
// Returns ErrDuplicateKey if operation_id exists.
func (s *SummaryStore) SaveSummary(ctx context.Context, sum *domain.ExecutionSummary) (err error) {
	if err := storage.ValidateSummary(sum); err != nil {
		return err
	}
	start := time.Now()
	defer func() { s.metrics.RecordDBQuery("clickhouse", "save_summary", time.Since(start), err) }()

	// MergeTree does not enforce uniqueness; keep append-only semantics explicitly.
	exists, err := s.exists(ctx, sum.OperationID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	if len(sum.Outcomes) > 0 {
		batch, err := s.conn.PrepareBatch(ctx, `
			INSERT INTO dispatch_outcomes (
				operation_id, wallet_index, wallet, group_index, signature, bundle_id,
				status, amount, submitted_at, confirmed_at, confirmation_time_ms, slot,
				fee_lamports, tip_lamports, endpoint_id, error_kind, error_detail,
				stealth_mode, started_at
			)
		`)
		if err != nil {
			return fmt.Errorf("prepare outcome batch: %w", err)
		}
		for _, o := range sum.Outcomes {
			err := batch.Append(
				sum.OperationID, uint32(o.WalletIndex), o.Wallet, uint32(o.Group), o.Signature, o.BundleID,
				string(o.Status), uint64(o.Amount), nullTime(o.SubmittedAt), nullTime(o.ConfirmedAt), o.ConfirmationTimeMs, o.Slot,
				uint64(o.FeeLamports), uint64(o.TipLamports), o.EndpointID, string(o.ErrKind), o.ErrorDetail(),
				string(sum.StealthMode), sum.StartedAt,
			)
			if err != nil {
				batch.Abort()
				return fmt.Errorf("append outcome: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("send outcome batch: %w", err)
		}
	}

	// The summary row goes last so a visible summary implies its outcomes.
	err = s.conn.Exec(ctx, `
		INSERT INTO dispatch_summaries (
			operation_id, plan_id, state, shape, stealth_mode, total_amount,
			wallet_count, confirmed, failed, timed_out, success_rate,
			avg_confirmation_ms, min_confirmation_ms, max_confirmation_ms,
			total_fees, total_tips, detection_risk, abort_reason,
			started_at, finished_at
		) VALUES (
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?,
			?, ?
		)
	`,
		sum.OperationID, sum.PlanID, string(sum.State), string(sum.Shape), string(sum.StealthMode), uint64(sum.TotalAmount),
		uint32(sum.WalletCount), uint32(sum.Confirmed), uint32(sum.Failed), uint32(sum.TimedOut), sum.SuccessRate,
		sum.AvgConfirmationMs, sum.MinConfirmationMs, sum.MaxConfirmationMs,
		uint64(sum.TotalFees), uint64(sum.TotalTips), string(sum.DetectionRisk), sum.AbortReason,
		sum.StartedAt, sum.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dispatch summary: %w", err)
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
	FROM dispatch_summaries FINAL
`

// GetSummary retrieves a summary with its outcomes. Returns ErrNotFound if not exists.
func (s *SummaryStore) GetSummary(ctx context.Context, operationID string) (*domain.ExecutionSummary, error) {
	rows, err := s.conn.Query(ctx, summarySelect+` WHERE operation_id = ?`, operationID)
	if err != nil {
		return nil, fmt.Errorf("query dispatch summary: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate dispatch summary: %w", err)
		}
		return nil, storage.ErrNotFound
	}
	sum, err := scanSummary(rows)
	if err != nil {
		return nil, err
	}

	sum.Outcomes, err = s.GetOutcomes(ctx, operationID)
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// ListSummaries returns summaries started at or after since, newest first.
func (s *SummaryStore) ListSummaries(ctx context.Context, since time.Time, limit int) ([]*domain.ExecutionSummary, error) {
	query := summarySelect + ` WHERE started_at >= ? ORDER BY started_at DESC, operation_id ASC`
	args := []any{since}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dispatch summaries: %w", err)
	}
	defer rows.Close()

	var result []*domain.ExecutionSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch summaries: %w", err)
	}
	return result, nil
}

// GetOutcomes retrieves the outcomes of an operation ordered by wallet index.
func (s *SummaryStore) GetOutcomes(ctx context.Context, operationID string) ([]domain.TransactionOutcome, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT
			wallet_index, wallet, group_index, signature, bundle_id,
			status, amount, submitted_at, confirmed_at, confirmation_time_ms, slot,
			fee_lamports, tip_lamports, endpoint_id, error_kind, error_detail
		FROM dispatch_outcomes
		WHERE operation_id = ?
		ORDER BY wallet_index ASC
	`, operationID)
	if err != nil {
		return nil, fmt.Errorf("query dispatch outcomes: %w", err)
	}
	defer rows.Close()

	var result []domain.TransactionOutcome
	for rows.Next() {
		var (
			o                      domain.TransactionOutcome
			walletIndex, group     uint32
			status, kind, detail   string
			amount, fee, tip       uint64
			submitted, confirmedAt *time.Time
		)
		if err := rows.Scan(
			&walletIndex, &o.Wallet, &group, &o.Signature, &o.BundleID,
			&status, &amount, &submitted, &confirmedAt, &o.ConfirmationTimeMs, &o.Slot,
			&fee, &tip, &o.EndpointID, &kind, &detail,
		); err != nil {
			return nil, fmt.Errorf("scan dispatch outcome: %w", err)
		}
		o.WalletIndex = int(walletIndex)
		o.Group = int(group)
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
		return nil, fmt.Errorf("iterate dispatch outcomes: %w", err)
	}
	return result, nil
}

// EndpointStats aggregates outcomes per endpoint since the given time.
type EndpointStats struct {
	EndpointID        string
	Transactions      uint64
	Confirmed         uint64
	SuccessRate       float64 // percent
	AvgConfirmationMs float64
}

// GetEndpointStats returns per-endpoint success rates, best first.
func (s *SummaryStore) GetEndpointStats(ctx context.Context, since time.Time) ([]EndpointStats, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT
			endpoint_id,
			count() AS transactions,
			countIf(status = 'confirmed') AS confirmed,
			avgIf(confirmation_time_ms, status = 'confirmed') AS avg_confirmation_ms
		FROM dispatch_outcomes
		WHERE started_at >= ? AND endpoint_id != ''
		GROUP BY endpoint_id
		ORDER BY confirmed / transactions DESC, endpoint_id ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query endpoint stats: %w", err)
	}
	defer rows.Close()

	var result []EndpointStats
	for rows.Next() {
		var st EndpointStats
		if err := rows.Scan(&st.EndpointID, &st.Transactions, &st.Confirmed, &st.AvgConfirmationMs); err != nil {
			return nil, fmt.Errorf("scan endpoint stats: %w", err)
		}
		// avgIf yields nan when nothing confirmed.
		if math.IsNaN(st.AvgConfirmationMs) {
			st.AvgConfirmationMs = 0
		}
		if st.Transactions > 0 {
			st.SuccessRate = float64(st.Confirmed) / float64(st.Transactions) * 100
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate endpoint stats: %w", err)
	}
	return result, nil
}

// exists checks if a summary with the operation ID exists.
func (s *SummaryStore) exists(ctx context.Context, operationID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count() FROM dispatch_summaries WHERE operation_id = ?`, operationID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// rowScanner is satisfied by driver.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*domain.ExecutionSummary, error) {
	var (
		sum                                domain.ExecutionSummary
		state, shape, mode, risk           string
		total, fees, tips                  uint64
		walletCount, confirmed, failed, to uint32
	)
	err := row.Scan(
		&sum.OperationID, &sum.PlanID, &state, &shape, &mode, &total,
		&walletCount, &confirmed, &failed, &to, &sum.SuccessRate,
		&sum.AvgConfirmationMs, &sum.MinConfirmationMs, &sum.MaxConfirmationMs,
		&fees, &tips, &risk, &sum.AbortReason,
		&sum.StartedAt, &sum.FinishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan dispatch summary: %w", err)
	}
	sum.State = domain.OperationState(state)
	sum.Shape = domain.DistributionShape(shape)
	sum.StealthMode = domain.StealthMode(mode)
	sum.TotalAmount = domain.Lamports(total)
	sum.WalletCount = int(walletCount)
	sum.Confirmed = int(confirmed)
	sum.Failed = int(failed)
	sum.TimedOut = int(to)
	sum.TotalFees = domain.Lamports(fees)
	sum.TotalTips = domain.Lamports(tips)
	sum.DetectionRisk = domain.DetectionRisk(risk)
	return &sum, nil
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
