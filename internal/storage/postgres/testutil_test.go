package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/storage/migrations"
	"solana-dispatch/internal/storage/postgres"
)

// setupTestDB creates a PostgreSQL container for testing and applies migrations.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*postgres.Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool), "failed to apply migrations")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// testSummary builds a finished summary with one confirmed and one failed wallet.
func testSummary(id string, started time.Time) *domain.ExecutionSummary {
	started = started.UTC().Truncate(time.Millisecond)
	return &domain.ExecutionSummary{
		OperationID:       id,
		PlanID:            "plan-" + id,
		State:             domain.StatePartialFailure,
		Shape:             domain.ShapeEven,
		StealthMode:       domain.StealthHybrid,
		TotalAmount:       2 * domain.LamportsPerSOL,
		WalletCount:       2,
		Confirmed:         1,
		Failed:            1,
		SuccessRate:       50,
		AvgConfirmationMs: 420,
		MinConfirmationMs: 420,
		MaxConfirmationMs: 420,
		TotalFees:         domain.LamportsPerSignature,
		DetectionRisk:     domain.RiskMedium,
		StartedAt:         started,
		FinishedAt:        started.Add(2 * time.Second),
		Outcomes: []domain.TransactionOutcome{
			{
				WalletIndex:        0,
				Wallet:             "wallet-0",
				Signature:          "sig-0",
				Status:             domain.StatusConfirmed,
				Amount:             domain.LamportsPerSOL,
				SubmittedAt:        started,
				ConfirmedAt:        started.Add(420 * time.Millisecond),
				ConfirmationTimeMs: 420,
				Slot:               1234,
				FeeLamports:        domain.LamportsPerSignature,
				EndpointID:         "rpc-1",
			},
			{
				WalletIndex: 1,
				Wallet:      "wallet-1",
				Group:       1,
				Status:      domain.StatusFailed,
				Amount:      domain.LamportsPerSOL,
				EndpointID:  "rpc-1",
				ErrKind:     domain.ErrKindSubmission,
				Err:         errors.New("submission via rpc-1: connection refused"),
			},
		},
	}
}
