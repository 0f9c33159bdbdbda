package metrics

import (
	"sort"

	"solana-dispatch/internal/domain"
)

// Risk scores per stealth mode, 0..100. Higher means more recognisable as one actor.
var modeRiskScore = map[domain.StealthMode]int{
	domain.StealthNone:       90,
	domain.StealthHybrid:     60,
	domain.StealthLight:      50,
	domain.StealthMedium:     35,
	domain.StealthAggressive: 20,
}

// Score reductions and classification thresholds.
const (
	randomizationRiskCredit = 10
	highRiskScore           = 70
	mediumRiskScore         = 40
)

// RiskScore returns the detection-risk score of a stealth configuration.
// Each enabled randomization lowers the mode's base score.
func RiskScore(s domain.StealthConfig) int {
	score, ok := modeRiskScore[s.Mode]
	if !ok {
		score = modeRiskScore[domain.StealthNone]
	}
	if s.RandomizeAmounts {
		score -= randomizationRiskCredit
	}
	if s.RandomizeTimings {
		score -= randomizationRiskCredit
	}
	if score < 0 {
		score = 0
	}
	return score
}

// ClassifyRisk maps a stealth configuration to a DetectionRisk.
func ClassifyRisk(s domain.StealthConfig) domain.DetectionRisk {
	score := RiskScore(s)
	switch {
	case score >= highRiskScore:
		return domain.RiskHigh
	case score >= mediumRiskScore:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// outcomeStats holds the counters derived from a set of terminal outcomes.
type outcomeStats struct {
	confirmed, failed, timedOut int
	avgMs                       float64
	minMs, maxMs                int64
	fees, tips                  domain.Lamports
}

// computeStats aggregates outcomes. Latency figures cover confirmed outcomes only.
func computeStats(outcomes []domain.TransactionOutcome) outcomeStats {
	var st outcomeStats
	var latencies []float64

	for _, o := range outcomes {
		st.fees += o.FeeLamports
		st.tips += o.TipLamports

		switch o.Status {
		case domain.StatusConfirmed:
			st.confirmed++
			ms := o.ConfirmationTimeMs
			latencies = append(latencies, float64(ms))
			if len(latencies) == 1 || ms < st.minMs {
				st.minMs = ms
			}
			if ms > st.maxMs {
				st.maxMs = ms
			}
		case domain.StatusTimedOut:
			st.timedOut++
		default:
			st.failed++
		}
	}

	st.avgMs = computeMean(latencies)
	return st
}

// computeSuccessRate returns confirmed / total as a percentage.
func computeSuccessRate(confirmed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(confirmed) / float64(total) * 100
}

// computeMean calculates the arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sortedOutcomes returns a copy ordered by wallet index.
func sortedOutcomes(outcomes []domain.TransactionOutcome) []domain.TransactionOutcome {
	out := make([]domain.TransactionOutcome, len(outcomes))
	copy(out, outcomes)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WalletIndex < out[j].WalletIndex
	})
	return out
}
