package clickhouse_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/storage/clickhouse"
	"solana-dispatch/internal/storage/migrations"
)

// setupTestDB creates a ClickHouse container, applies migrations and returns a connection.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*clickhouse.Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60*time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/dispatch_test", host, port.Port())

	conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
	require.NoError(t, err, "failed to apply migrations")

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

// testSummary builds a finished summary with one confirmed and one failed wallet.
func testSummary(id string, started time.Time) *domain.ExecutionSummary {
	started = started.UTC().Truncate(time.Millisecond)
	return &domain.ExecutionSummary{
		OperationID:       id,
		PlanID:            "plan-" + id,
		State:             domain.StatePartialFailure,
		Shape:             domain.ShapeRandom,
		StealthMode:       domain.StealthLight,
		TotalAmount:       2 * domain.LamportsPerSOL,
		WalletCount:       2,
		Confirmed:         1,
		Failed:            1,
		SuccessRate:       50,
		AvgConfirmationMs: 800,
		MinConfirmationMs: 800,
		MaxConfirmationMs: 800,
		TotalFees:         domain.LamportsPerSignature,
		DetectionRisk:     domain.RiskMedium,
		StartedAt:         started,
		FinishedAt:        started.Add(3 * time.Second),
		Outcomes: []domain.TransactionOutcome{
			{
				WalletIndex:        0,
				Wallet:             "wallet-0",
				Signature:          "sig-0",
				Status:             domain.StatusConfirmed,
				Amount:             domain.LamportsPerSOL,
				SubmittedAt:        started,
				ConfirmedAt:        started.Add(800 * time.Millisecond),
				ConfirmationTimeMs: 800,
				Slot:               4321,
				FeeLamports:        domain.LamportsPerSignature,
				EndpointID:         "rpc-1",
			},
			{
				WalletIndex: 1,
				Wallet:      "wallet-1",
				Group:       1,
				Status:      domain.StatusFailed,
				Amount:      domain.LamportsPerSOL,
				EndpointID:  "rpc-2",
				ErrKind:     domain.ErrKindTransaction,
				Err:         errors.New("transaction rejected: insufficient funds"),
			},
		},
	}
}
