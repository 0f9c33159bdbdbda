package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-dispatch/internal/clients"
	"solana-dispatch/internal/config"
	"solana-dispatch/internal/dispatch"
	"solana-dispatch/internal/domain"
	jitostub "solana-dispatch/internal/jito/stub"
	"solana-dispatch/internal/solana/stub"
	"solana-dispatch/internal/wallet/wallettest"
)

const testTOML = `
log_level = "debug"

[dispatch]
slot_duration = "1ms"
poll_interval = "2ms"
confirmation_timeout = "1s"
bundle_timeout = "1s"
retry_delay = "1ms"
health_check_enabled = false

[[endpoints]]
id = "rpc-1"
url = "http://rpc-1.invalid"
role = "direct"
priority = 1

[[endpoints]]
id = "jito-1"
url = "http://jito-1.invalid"
role = "blockEngine"
priority = 1

[operation]
destination = "%s"
`

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dispatch.toml")
	body := fmt.Sprintf(testTOML, wallettest.Keypair(99).Address())
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func stubRegistry(t *testing.T, cfg *config.Config) (*clients.Registry, *stub.RPCClient, *jitostub.Engine) {
	t.Helper()
	endpoints, err := cfg.DomainEndpoints()
	require.NoError(t, err)

	reg := clients.NewRegistry(nil)
	rpc := stub.NewRPCClient()
	engine := jitostub.NewEngine()
	for _, ep := range endpoints {
		if ep.Role == domain.RoleBlockEngine {
			reg.RegisterBlockEngine(ep, engine)
		} else {
			reg.RegisterRPC(ep, rpc)
		}
	}
	return reg, rpc, engine
}

func TestNew_RunsOperationThroughWiredEngine(t *testing.T) {
	cfg := loadConfig(t)
	reg, rpc, engine := stubRegistry(t, cfg)
	promReg := prometheus.NewRegistry()

	a, err := New(context.Background(), cfg, Options{Registerer: promReg, Registry: reg})
	require.NoError(t, err)
	defer a.Close()

	stealth, err := cfg.StealthParams()
	require.NoError(t, err)
	seed := int64(1)
	sum, err := a.Controller.SubmitOperation(context.Background(), dispatch.OperationRequest{
		TotalAmount: domain.LamportsFromSOL(6),
		Wallets:     wallettest.Signers(12),
		Shape:       domain.ShapeEven,
		Stealth:     stealth,
		Seed:        &seed,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, sum.State)
	assert.Equal(t, 12, sum.Confirmed)
	assert.Len(t, engine.Bundles(), 1)
	assert.Equal(t, 4, rpc.Calls("sendTransaction"))

	stored, err := a.Summaries.GetSummary(context.Background(), sum.OperationID)
	require.NoError(t, err)
	assert.Equal(t, sum.PlanID, stored.PlanID)

	families, err := promReg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_RequiresDestination(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Operation.Destination = ""

	_, err := New(context.Background(), cfg, Options{Registerer: prometheus.NewRegistry()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfig))
}

func TestNew_BadPostgresDSNClosesPartialEngine(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Storage.PostgresDSN = "://not a dsn"

	_, err := New(context.Background(), cfg, Options{Registerer: prometheus.NewRegistry()})
	assert.Error(t, err)
}

func TestSummaryView_JSON(t *testing.T) {
	sum := &domain.ExecutionSummary{
		OperationID: "op-1",
		State:       domain.StatePartialFailure,
		Shape:       domain.ShapeEven,
		StealthMode: domain.StealthLight,
		TotalAmount: domain.LamportsFromSOL(1),
		WalletCount: 2,
		Confirmed:   1,
		Failed:      1,
		Outcomes: []domain.TransactionOutcome{
			{WalletIndex: 0, Status: domain.StatusConfirmed, Amount: domain.LamportsFromSOL(0.5), Slot: 10},
			{WalletIndex: 1, Status: domain.StatusFailed, Amount: domain.LamportsFromSOL(0.5),
				ErrKind: domain.ErrKindSubmission, Err: errors.New("boom")},
		},
	}

	data, err := json.Marshal(NewSummaryView(sum))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "PARTIAL_FAILURE", got["state"])
	assert.Equal(t, 1.0, got["total_sol"])
	outcomes := got["outcomes"].([]any)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "boom", outcomes[1].(map[string]any)["error"])
	assert.NotContains(t, outcomes[0].(map[string]any), "error")
}

func TestPlanView(t *testing.T) {
	plan := &domain.Plan{
		ID:          "plan-1",
		TotalAmount: domain.LamportsFromSOL(3),
		WalletCount: 3,
		Shape:       domain.ShapeEven,
		Stealth:     domain.StealthConfig{Mode: domain.StealthNone},
		Groups: []domain.ExecutionGroup{{
			Index: 0,
			Kind:  domain.GroupAtomic,
			Allocations: []domain.WalletAllocation{
				{Index: 0, Amount: domain.LamportsFromSOL(1)},
				{Index: 1, Amount: domain.LamportsFromSOL(1)},
				{Index: 2, Amount: domain.LamportsFromSOL(1)},
			},
			TipAmount: domain.LamportsFromSOL(0.001),
		}},
	}

	v := NewPlanView(plan)
	require.Len(t, v.Groups, 1)
	assert.Equal(t, "atomic", v.Groups[0].Kind)
	assert.Equal(t, []int{0, 1, 2}, v.Groups[0].Wallets)
	assert.InDelta(t, 0.001, v.Groups[0].TipSOL, 1e-12)
}
