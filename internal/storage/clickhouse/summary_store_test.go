package clickhouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/storage"
	"solana-dispatch/internal/storage/clickhouse"
)

func TestSummaryStore_SaveAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewSummaryStore(conn, nil)
	ctx := context.Background()
	want := testSummary("op-1", time.Now())

	require.NoError(t, store.SaveSummary(ctx, want))

	got, err := store.GetSummary(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, want.PlanID, got.PlanID)
	assert.Equal(t, domain.StealthLight, got.StealthMode)
	assert.Equal(t, 2, got.WalletCount)
	assert.InDelta(t, 50.0, got.SuccessRate, 0.001)
	assert.True(t, want.FinishedAt.Equal(got.FinishedAt))

	require.Len(t, got.Outcomes, 2)
	assert.Equal(t, int64(4321), got.Outcomes[0].Slot)
	assert.True(t, want.Outcomes[0].SubmittedAt.Equal(got.Outcomes[0].SubmittedAt))
	assert.True(t, got.Outcomes[1].ConfirmedAt.IsZero())
	assert.Equal(t, domain.ErrKindTransaction, got.Outcomes[1].ErrKind)
	require.Error(t, got.Outcomes[1].Err)
}

func TestSummaryStore_Duplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewSummaryStore(conn, nil)
	ctx := context.Background()

	require.NoError(t, store.SaveSummary(ctx, testSummary("op-1", time.Now())))
	err := store.SaveSummary(ctx, testSummary("op-1", time.Now()))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	outcomes, err := store.GetOutcomes(ctx, "op-1")
	require.NoError(t, err)
	assert.Len(t, outcomes, 2)
}

func TestSummaryStore_NotFound(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewSummaryStore(conn, nil)
	_, err := store.GetSummary(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSummaryStore_ListSummaries(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewSummaryStore(conn, nil)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"op-a", "op-b", "op-c"} {
		require.NoError(t, store.SaveSummary(ctx, testSummary(id, base.Add(time.Duration(i)*time.Minute))))
	}

	list, err := store.ListSummaries(ctx, base.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "op-c", list[0].OperationID)
	assert.Equal(t, "op-b", list[1].OperationID)

	limited, err := store.ListSummaries(ctx, base, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestSummaryStore_EndpointStats(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewSummaryStore(conn, nil)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveSummary(ctx, testSummary("op-1", base)))
	require.NoError(t, store.SaveSummary(ctx, testSummary("op-2", base.Add(time.Minute))))

	stats, err := store.GetEndpointStats(ctx, base)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "rpc-1", stats[0].EndpointID)
	assert.Equal(t, uint64(2), stats[0].Transactions)
	assert.Equal(t, uint64(2), stats[0].Confirmed)
	assert.InDelta(t, 100.0, stats[0].SuccessRate, 0.001)
	assert.InDelta(t, 800.0, stats[0].AvgConfirmationMs, 0.001)

	assert.Equal(t, "rpc-2", stats[1].EndpointID)
	assert.Equal(t, uint64(0), stats[1].Confirmed)
	assert.InDelta(t, 0.0, stats[1].SuccessRate, 0.001)
}
