package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/storage"
)

func testSummary(id string, started time.Time) *domain.ExecutionSummary {
	return &domain.ExecutionSummary{
		OperationID: id,
		PlanID:      "plan-" + id,
		State:       domain.StateCompleted,
		WalletCount: 2,
		Confirmed:   1,
		Failed:      1,
		SuccessRate: 50,
		StartedAt:   started,
		FinishedAt:  started.Add(time.Second),
		Outcomes: []domain.TransactionOutcome{
			{WalletIndex: 1, Status: domain.StatusFailed, ErrKind: domain.ErrKindSubmission, Err: errors.New("boom")},
			{WalletIndex: 0, Status: domain.StatusConfirmed, Signature: "sig0"},
		},
	}
}

func TestSummaryStore_SaveAndGet(t *testing.T) {
	store := NewSummaryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SaveSummary(ctx, testSummary("op-1", now)))

	got, err := store.GetSummary(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "plan-op-1", got.PlanID)
	require.Len(t, got.Outcomes, 2)
	assert.Equal(t, 0, got.Outcomes[0].WalletIndex)
	assert.Equal(t, 1, got.Outcomes[1].WalletIndex)
}

func TestSummaryStore_Duplicate(t *testing.T) {
	store := NewSummaryStore()
	ctx := context.Background()

	require.NoError(t, store.SaveSummary(ctx, testSummary("op-1", time.Now())))
	err := store.SaveSummary(ctx, testSummary("op-1", time.Now()))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSummaryStore_InvalidInput(t *testing.T) {
	store := NewSummaryStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.SaveSummary(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.SaveSummary(ctx, &domain.ExecutionSummary{}), storage.ErrInvalidInput)

	pending := testSummary("op-2", time.Now())
	pending.Outcomes[0].Status = domain.StatusPending
	assert.ErrorIs(t, store.SaveSummary(ctx, pending), storage.ErrInvalidInput)
}

func TestSummaryStore_NotFound(t *testing.T) {
	store := NewSummaryStore()
	_, err := store.GetSummary(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSummaryStore_ListSummaries(t *testing.T) {
	store := NewSummaryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"op-a", "op-b", "op-c"} {
		require.NoError(t, store.SaveSummary(ctx, testSummary(id, base.Add(time.Duration(i)*time.Minute))))
	}

	all, err := store.ListSummaries(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "op-c", all[0].OperationID)
	assert.Nil(t, all[0].Outcomes)

	recent, err := store.ListSummaries(ctx, base.Add(time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "op-c", recent[0].OperationID)
}

func TestSummaryStore_CopyIsolation(t *testing.T) {
	store := NewSummaryStore()
	ctx := context.Background()
	sum := testSummary("op-1", time.Now())
	require.NoError(t, store.SaveSummary(ctx, sum))

	sum.Outcomes[0].Signature = "mutated"
	outcomes, err := store.GetOutcomes(ctx, "op-1")
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.NotEqual(t, "mutated", o.Signature)
	}
}

func TestMultiSink(t *testing.T) {
	a, b := NewSummaryStore(), NewSummaryStore()
	sink := storage.MultiSink{a, nil, b}
	ctx := context.Background()

	require.NoError(t, sink.SaveSummary(ctx, testSummary("op-1", time.Now())))
	_, err := b.GetSummary(ctx, "op-1")
	require.NoError(t, err)

	err = sink.SaveSummary(ctx, testSummary("op-1", time.Now()))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
