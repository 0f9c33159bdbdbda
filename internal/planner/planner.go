// Package planner splits an operation's total amount across wallets and groups
// the wallets into ordered execution groups according to the stealth mode.
package planner

import (
	"fmt"
	"math/rand/v2"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/idhash"
)

// Planning bounds.
const (
	MinWallets            = 1
	MaxWallets            = 250
	MinFirstBundlePercent = 50
	MaxFirstBundlePercent = 90
	MinSpreadBlocks       = 1
	MaxSpreadBlocks       = 20
	MaxAmountVariancePct  = 50
	MaxTimingVariancePct  = 100
	MaxWhaleFraction      = 0.9
)

// pcgIncrement is the fixed second PCG seed word; the plan seed is the first.
const pcgIncrement = 0x9e3779b97f4a7c15

// Planner builds plans. All randomness derives from Seed, so the same seed and
// inputs always produce the same plan.
type Planner struct {
	seed int64
}

// New creates a planner with the given random seed.
func New(seed int64) *Planner {
	return &Planner{seed: seed}
}

// Seed returns the planner's seed.
func (p *Planner) Seed() int64 {
	return p.seed
}

// Plan builds a plan for the given wallets.
func (p *Planner) Plan(total domain.Lamports, wallets []domain.Signer, shape domain.DistributionShape, stealth domain.StealthConfig) (*domain.Plan, error) {
	for i, w := range wallets {
		if w == nil {
			return nil, &domain.ConfigError{Field: "wallets", Reason: fmt.Sprintf("wallet %d has no signer", i)}
		}
	}
	return p.build(total, len(wallets), wallets, shape, stealth)
}

// PlanCount builds a plan for walletCount wallets without signers, for dry runs.
func (p *Planner) PlanCount(total domain.Lamports, walletCount int, shape domain.DistributionShape, stealth domain.StealthConfig) (*domain.Plan, error) {
	return p.build(total, walletCount, nil, shape, stealth)
}

func (p *Planner) build(total domain.Lamports, n int, wallets []domain.Signer, shape domain.DistributionShape, stealth domain.StealthConfig) (*domain.Plan, error) {
	if err := Validate(total, n, shape, stealth); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(uint64(p.seed), pcgIncrement))

	amounts := allocateAmounts(rng, total, n, shape, stealth)
	groups := buildGroups(n, stealth)
	if stealth.RandomizeTimings {
		jitterDelays(rng, groups, stealth.TimingVariancePct)
	}

	for gi := range groups {
		g := &groups[gi]
		for ai := range g.Allocations {
			a := &g.Allocations[ai]
			a.Amount = amounts[a.Index]
			if wallets != nil {
				a.Wallet = wallets[a.Index]
			}
		}
	}

	plan := &domain.Plan{
		TotalAmount: total,
		WalletCount: n,
		Shape:       shape,
		Stealth:     stealth,
		Seed:        p.seed,
		Groups:      groups,
	}
	plan.ID = idhash.ComputePlanID(plan)
	return plan, nil
}

// Validate checks planning parameters. Every failure is a *domain.ConfigError.
func Validate(total domain.Lamports, n int, shape domain.DistributionShape, s domain.StealthConfig) error {
	switch {
	case n < MinWallets || n > MaxWallets:
		return &domain.ConfigError{Field: "walletCount", Reason: fmt.Sprintf("must be in [%d,%d], got %d", MinWallets, MaxWallets, n)}
	case total == 0:
		return &domain.ConfigError{Field: "totalAmount", Reason: "must be positive"}
	case total < domain.Lamports(n):
		return &domain.ConfigError{Field: "totalAmount", Reason: fmt.Sprintf("%d lamports cannot fund %d wallets", total, n)}
	case !shape.IsValid():
		return &domain.ConfigError{Field: "distributionShape", Reason: fmt.Sprintf("unknown shape %q", shape)}
	case !s.Mode.IsValid():
		return &domain.ConfigError{Field: "stealthMode", Reason: fmt.Sprintf("unknown mode %q", s.Mode)}
	case s.AmountVariancePct < 0 || s.AmountVariancePct > MaxAmountVariancePct:
		return &domain.ConfigError{Field: "amountVariancePct", Reason: fmt.Sprintf("must be in [0,%d], got %g", MaxAmountVariancePct, s.AmountVariancePct)}
	case s.TimingVariancePct < 0 || s.TimingVariancePct > MaxTimingVariancePct:
		return &domain.ConfigError{Field: "timingVariancePct", Reason: fmt.Sprintf("must be in [0,%d], got %g", MaxTimingVariancePct, s.TimingVariancePct)}
	}

	if s.Mode == domain.StealthHybrid {
		if s.FirstBundlePercent < MinFirstBundlePercent || s.FirstBundlePercent > MaxFirstBundlePercent {
			return &domain.ConfigError{Field: "firstBundlePercent", Reason: fmt.Sprintf("must be in [%d,%d], got %d", MinFirstBundlePercent, MaxFirstBundlePercent, s.FirstBundlePercent)}
		}
		if s.SpreadBlocks < MinSpreadBlocks || s.SpreadBlocks > MaxSpreadBlocks {
			return &domain.ConfigError{Field: "spreadBlocks", Reason: fmt.Sprintf("must be in [%d,%d], got %d", MinSpreadBlocks, MaxSpreadBlocks, s.SpreadBlocks)}
		}
	}

	if shape == domain.ShapeWhale {
		if s.WhaleFraction < 0 || s.WhaleFraction > MaxWhaleFraction {
			return &domain.ConfigError{Field: "whaleFraction", Reason: fmt.Sprintf("must be in [0,%g], got %g", MaxWhaleFraction, s.WhaleFraction)}
		}
		if s.WhaleSmallSharePct <= 0 || s.WhaleSmallSharePct >= 100 {
			return &domain.ConfigError{Field: "whaleSmallSharePct", Reason: fmt.Sprintf("must be in (0,100), got %g", s.WhaleSmallSharePct)}
		}
		if small := smallWalletCount(n, s.WhaleFraction); float64(small)*s.WhaleSmallSharePct >= 100 {
			return &domain.ConfigError{Field: "whaleSmallSharePct", Reason: fmt.Sprintf("%d small wallets x %g%% leaves nothing for whales", small, s.WhaleSmallSharePct)}
		}
	}
	return nil
}
