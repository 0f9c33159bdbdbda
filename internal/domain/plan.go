package domain

import "fmt"

// GroupKind selects the submission strategy for an execution group.
type GroupKind string

const (
	GroupAtomic     GroupKind = "atomic"
	GroupBatched    GroupKind = "batched"
	GroupSequential GroupKind = "sequential"
)

// String returns the string representation of GroupKind.
func (k GroupKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k GroupKind) IsValid() bool {
	return k == GroupAtomic || k == GroupBatched || k == GroupSequential
}

// Role returns the endpoint role the group is routed through.
func (k GroupKind) Role() EndpointRole {
	if k == GroupAtomic {
		return RoleBlockEngine
	}
	return RoleDirect
}

// Signer is a wallet's signing capability. Key material never leaves the implementation.
type Signer interface {
	// PublicKey returns the 32-byte ed25519 public key.
	PublicKey() [32]byte
	// Address returns the base58 encoded public key.
	Address() string
	// Sign signs message and returns the 64-byte signature.
	Sign(message []byte) ([]byte, error)
}

// WalletAllocation assigns an amount to one wallet within a plan.
type WalletAllocation struct {
	Index  int // position in the operation's wallet list
	Wallet Signer
	Amount Lamports
	Group  int
}

// Address returns the wallet address, or a positional placeholder for dry-run plans.
func (a WalletAllocation) Address() string {
	if a.Wallet == nil {
		return fmt.Sprintf("wallet-%d", a.Index)
	}
	return a.Wallet.Address()
}

// ExecutionGroup is one submission unit of a plan.
type ExecutionGroup struct {
	Index       int
	Kind        GroupKind
	Allocations []WalletAllocation
	TipAmount   Lamports // atomic groups only
	DelayBlocks float64  // wait before submission, relative to the previous group
}

// Size returns the number of wallets in the group.
func (g ExecutionGroup) Size() int {
	return len(g.Allocations)
}

// Plan is the immutable result of distribution planning.
type Plan struct {
	ID          string // deterministic fingerprint of the plan contents
	TotalAmount Lamports
	WalletCount int
	Shape       DistributionShape
	Stealth     StealthConfig
	Seed        int64
	Groups      []ExecutionGroup
}

// Allocations returns all wallet allocations in wallet index order.
func (p *Plan) Allocations() []WalletAllocation {
	out := make([]WalletAllocation, p.WalletCount)
	for _, g := range p.Groups {
		for _, a := range g.Allocations {
			out[a.Index] = a
		}
	}
	return out
}

// AllocatedTotal returns the sum of all allocated amounts.
func (p *Plan) AllocatedTotal() Lamports {
	var sum Lamports
	for _, g := range p.Groups {
		for _, a := range g.Allocations {
			sum += a.Amount
		}
	}
	return sum
}
