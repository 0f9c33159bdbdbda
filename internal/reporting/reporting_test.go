package reporting

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-dispatch/internal/domain"
)

func testSummary() *domain.ExecutionSummary {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.ExecutionSummary{
		OperationID:       "op-1",
		PlanID:            "plan-1",
		State:             domain.StatePartialFailure,
		Shape:             domain.ShapeEven,
		StealthMode:       domain.StealthHybrid,
		TotalAmount:       domain.LamportsFromSOL(1),
		WalletCount:       2,
		Confirmed:         1,
		Failed:            1,
		SuccessRate:       50,
		AvgConfirmationMs: 420,
		MinConfirmationMs: 420,
		MaxConfirmationMs: 420,
		DetectionRisk:     domain.RiskMedium,
		StartedAt:         started,
		FinishedAt:        started.Add(1500 * time.Millisecond),
		Outcomes: []domain.TransactionOutcome{
			{WalletIndex: 0, Wallet: "A1", Status: domain.StatusConfirmed, Amount: domain.LamportsFromSOL(0.5),
				Signature: "sig-0", EndpointID: "rpc-1", Slot: 99, ConfirmationTimeMs: 420, FeeLamports: 5000},
			{WalletIndex: 1, Wallet: "B2", Group: 1, Status: domain.StatusFailed, Amount: domain.LamportsFromSOL(0.5),
				EndpointID: "rpc-1", ErrKind: domain.ErrKindSubmission, Err: errors.New(`node said "no", try later`)},
		},
	}
}

func TestRenderOutcomesCSV(t *testing.T) {
	out := RenderOutcomesCSV(testSummary().Outcomes)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)

	assert.True(t, strings.HasPrefix(lines[0], "wallet_index,wallet,group,status"))
	assert.Equal(t, "0,A1,0,confirmed,0.500000000,sig-0,,rpc-1,99,420,5000,0,,", lines[1])
	assert.True(t, strings.HasSuffix(lines[2], `SubmissionError,"node said ""no"", try later"`))
}

func TestRenderSummaryMarkdown(t *testing.T) {
	md := RenderSummaryMarkdown(testSummary())

	assert.Contains(t, md, "# Operation op-1")
	assert.Contains(t, md, "State: **PARTIAL_FAILURE**")
	assert.Contains(t, md, "| Success Rate | 50.00% |")
	assert.Contains(t, md, "| Duration | 1.5s |")
	assert.Contains(t, md, "avg 420.0 ms")
	assert.Contains(t, md, "| 1 | B2 | 1 | failed |")
	assert.NotContains(t, md, "Abort reason")
}

func TestRenderSummaryMarkdown_Aborted(t *testing.T) {
	s := &domain.ExecutionSummary{
		OperationID: "op-2",
		State:       domain.StateAborted,
		AbortReason: "kill-switch: manual",
	}
	md := RenderSummaryMarkdown(s)
	assert.Contains(t, md, "Abort reason: kill-switch: manual")
	assert.Contains(t, md, "No confirmed transactions.")
	assert.Contains(t, md, "No outcomes recorded.")
}
