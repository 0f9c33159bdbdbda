package domain

import "fmt"

// StealthMode controls how wallet transactions are grouped and spaced in time.
type StealthMode string

const (
	StealthNone       StealthMode = "none"
	StealthLight      StealthMode = "light"
	StealthMedium     StealthMode = "medium"
	StealthAggressive StealthMode = "aggressive"
	StealthHybrid     StealthMode = "hybrid"
)

// String returns the string representation of StealthMode.
func (m StealthMode) String() string {
	return string(m)
}

// IsValid checks if the mode is a known value.
func (m StealthMode) IsValid() bool {
	switch m {
	case StealthNone, StealthLight, StealthMedium, StealthAggressive, StealthHybrid:
		return true
	}
	return false
}

// ParseStealthMode parses a configuration value into a StealthMode.
func ParseStealthMode(s string) (StealthMode, error) {
	m := StealthMode(s)
	if !m.IsValid() {
		return "", &ConfigError{Field: "stealth_mode", Reason: fmt.Sprintf("unknown stealth mode %q", s)}
	}
	return m, nil
}

// DistributionShape selects how the total amount is split across wallets.
type DistributionShape string

const (
	ShapeEven      DistributionShape = "even"
	ShapeRandom    DistributionShape = "random"
	ShapeFibonacci DistributionShape = "fibonacci"
	ShapeWhale     DistributionShape = "whale"
)

// String returns the string representation of DistributionShape.
func (s DistributionShape) String() string {
	return string(s)
}

// IsValid checks if the shape is a known value.
func (s DistributionShape) IsValid() bool {
	switch s {
	case ShapeEven, ShapeRandom, ShapeFibonacci, ShapeWhale:
		return true
	}
	return false
}

// ParseDistributionShape parses a configuration value into a DistributionShape.
func ParseDistributionShape(s string) (DistributionShape, error) {
	d := DistributionShape(s)
	if !d.IsValid() {
		return "", &ConfigError{Field: "distribution_shape", Reason: fmt.Sprintf("unknown distribution shape %q", s)}
	}
	return d, nil
}

// StealthConfig holds the grouping and randomization parameters of an operation.
type StealthConfig struct {
	Mode               StealthMode
	FirstBundlePercent int // hybrid only, [50, 90]
	SpreadBlocks       int // hybrid only
	RandomizeAmounts   bool
	AmountVariancePct  float64
	RandomizeTimings   bool
	TimingVariancePct  float64
	AtomicTip          Lamports
	Conservative       bool    // run spread groups sequentially instead of concurrently
	WhaleFraction      float64 // whale shape: fraction of wallets receiving the small share
	WhaleSmallSharePct float64 // whale shape: percent of the total each small wallet receives
}

// DefaultStealthConfig returns the stealth parameters used when none are configured.
func DefaultStealthConfig() StealthConfig {
	return StealthConfig{
		Mode:               StealthHybrid,
		FirstBundlePercent: 70,
		SpreadBlocks:       3,
		AmountVariancePct:  10,
		TimingVariancePct:  20,
		AtomicTip:          LamportsFromSOL(0.001),
		WhaleFraction:      0.2,
		WhaleSmallSharePct: 1,
	}
}
