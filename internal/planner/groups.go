package planner

import (
	"math/rand/v2"

	"solana-dispatch/internal/domain"
)

// spreadProfile is the batched grouping of a non-atomic stealth mode.
type spreadProfile struct {
	groups int
	step   float64 // delay of group k is k*step blocks
}

var spreadProfiles = map[domain.StealthMode]spreadProfile{
	domain.StealthLight:      {groups: 2, step: 1},
	domain.StealthMedium:     {groups: 3, step: 2},
	domain.StealthAggressive: {groups: 5, step: 3},
}

// buildGroups assigns wallet indices 0..n-1 to ordered execution groups.
// Amounts and signers are filled in by the caller.
func buildGroups(n int, s domain.StealthConfig) []domain.ExecutionGroup {
	spreadKind := domain.GroupBatched
	if s.Conservative {
		spreadKind = domain.GroupSequential
	}

	var groups []domain.ExecutionGroup
	add := func(kind domain.GroupKind, start, size int, delay float64, tip domain.Lamports) {
		g := domain.ExecutionGroup{
			Index:       len(groups),
			Kind:        kind,
			TipAmount:   tip,
			DelayBlocks: delay,
		}
		for i := start; i < start+size; i++ {
			g.Allocations = append(g.Allocations, domain.WalletAllocation{Index: i, Group: g.Index})
		}
		groups = append(groups, g)
	}

	switch s.Mode {
	case domain.StealthNone:
		add(domain.GroupAtomic, 0, n, 0, s.AtomicTip)

	case domain.StealthHybrid:
		atomicCount := roundHalfUpPercent(n, s.FirstBundlePercent)
		add(domain.GroupAtomic, 0, atomicCount, 0, s.AtomicTip)

		start := atomicCount
		for k, size := range splitSizes(n-atomicCount, s.SpreadBlocks) {
			add(spreadKind, start, size, float64(k+1), 0)
			start += size
		}

	default:
		profile := spreadProfiles[s.Mode]
		start := 0
		for k, size := range splitSizes(n, profile.groups) {
			add(spreadKind, start, size, float64(k)*profile.step, 0)
			start += size
		}
	}
	return groups
}

// roundHalfUpPercent returns round-half-up(n*pct/100), at least 1 and at most n.
func roundHalfUpPercent(n, pct int) int {
	c := (n*pct + 50) / 100
	if c < 1 {
		c = 1
	}
	if c > n {
		c = n
	}
	return c
}

// splitSizes splits n items into min(parts, n) sizes, larger sizes first.
func splitSizes(n, parts int) []int {
	if n <= 0 || parts <= 0 {
		return nil
	}
	if parts > n {
		parts = n
	}
	sizes := make([]int, parts)
	for i := range sizes {
		sizes[i] = n / parts
		if i < n%parts {
			sizes[i]++
		}
	}
	return sizes
}

// jitterDelays scales every non-zero delay by a uniform factor in [1-v, 1+v], never below zero.
func jitterDelays(rng *rand.Rand, groups []domain.ExecutionGroup, variancePct float64) {
	v := variancePct / 100
	for i := range groups {
		if groups[i].DelayBlocks == 0 {
			continue
		}
		d := groups[i].DelayBlocks * (1 + (rng.Float64()*2-1)*v)
		if d < 0 {
			d = 0
		}
		groups[i].DelayBlocks = d
	}
}
