package domain

import "math"

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// LamportsPerSignature is the base network fee charged per transaction signature.
const LamportsPerSignature = 5000

// Lamports is an amount in the smallest SOL unit.
type Lamports uint64

// LamportsFromSOL converts a SOL amount to lamports, rounding to the nearest lamport.
// Negative and NaN inputs convert to zero.
func LamportsFromSOL(sol float64) Lamports {
	if math.IsNaN(sol) || sol <= 0 {
		return 0
	}
	return Lamports(math.Round(sol * LamportsPerSOL))
}

// SOL returns the amount expressed in SOL.
func (l Lamports) SOL() float64 {
	return float64(l) / LamportsPerSOL
}
