package planner

import (
	"math"
	"math/bits"
	"math/rand/v2"

	"solana-dispatch/internal/domain"
)

// weightScale is the integer resolution float weights are converted to.
const weightScale = 1e12

// allocateAmounts returns per-wallet amounts summing exactly to total.
func allocateAmounts(rng *rand.Rand, total domain.Lamports, n int, shape domain.DistributionShape, s domain.StealthConfig) []domain.Lamports {
	var amounts []domain.Lamports
	switch shape {
	case domain.ShapeEven:
		amounts = evenSplit(total, n)
	case domain.ShapeRandom:
		weights := make([]float64, n)
		for i := range weights {
			weights[i] = 1
		}
		return apportion(total, jitter(rng, weights, s.AmountVariancePct))
	case domain.ShapeFibonacci:
		amounts = apportion(total, fibonacciWeights(n))
	case domain.ShapeWhale:
		amounts = whaleSplit(total, n, s.WhaleFraction, s.WhaleSmallSharePct)
	}

	if s.RandomizeAmounts && s.AmountVariancePct > 0 {
		weights := make([]float64, n)
		for i, a := range amounts {
			weights[i] = float64(a)
		}
		amounts = apportion(total, jitter(rng, weights, s.AmountVariancePct))
	}
	return amounts
}

// evenSplit gives every wallet total/n and the remainder to the last wallet.
func evenSplit(total domain.Lamports, n int) []domain.Lamports {
	out := make([]domain.Lamports, n)
	base := total / domain.Lamports(n)
	for i := range out {
		out[i] = base
	}
	out[n-1] += total % domain.Lamports(n)
	return out
}

// fibonacciWeights returns F1..Fn = 1, 1, 2, 3, 5, ...
func fibonacciWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		if i < 2 {
			w[i] = 1
			continue
		}
		w[i] = w[i-1] + w[i-2]
	}
	return w
}

func smallWalletCount(n int, fraction float64) int {
	return int(math.Floor(float64(n) * fraction))
}

// whaleSplit gives the first floor(n*fraction) wallets sharePct% of the total each
// and splits the rest evenly over the remaining whale wallets.
func whaleSplit(total domain.Lamports, n int, fraction, sharePct float64) []domain.Lamports {
	small := smallWalletCount(n, fraction)
	smallShare := domain.Lamports(mulDiv(uint64(total), uint64(math.Round(sharePct*1e6)), 100*1e6))

	out := make([]domain.Lamports, n)
	for i := 0; i < small; i++ {
		out[i] = smallShare
	}
	rest := evenSplit(total-smallShare*domain.Lamports(small), n-small)
	copy(out[small:], rest)
	return out
}

// jitter scales each weight by a uniform factor in [1-v, 1+v], v = variancePct/100.
func jitter(rng *rand.Rand, weights []float64, variancePct float64) []float64 {
	v := variancePct / 100
	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = w * (1 + (rng.Float64()*2-1)*v)
	}
	return out
}

// apportion distributes total proportionally to weights using exact integer
// arithmetic: floor per wallet, rounding remainder to the last wallet.
func apportion(total domain.Lamports, weights []float64) []domain.Lamports {
	maxW := 0.0
	for _, w := range weights {
		maxW = math.Max(maxW, w)
	}

	ints := make([]uint64, len(weights))
	var sum uint64
	for i, w := range weights {
		iw := uint64(1)
		if maxW > 0 {
			iw = uint64(math.Round(w / maxW * weightScale))
			if iw == 0 {
				iw = 1
			}
		}
		ints[i] = iw
		sum += iw
	}

	out := make([]domain.Lamports, len(weights))
	var assigned domain.Lamports
	for i, iw := range ints {
		out[i] = domain.Lamports(mulDiv(uint64(total), iw, sum))
		assigned += out[i]
	}
	out[len(out)-1] += total - assigned
	return out
}

// mulDiv returns floor(a*b/c) without intermediate overflow. The result must fit in 64 bits.
func mulDiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, c)
	return q
}
