package txbuild

import (
	"context"
	"errors"
	"fmt"

	"solana-dispatch/internal/domain"
)

// ErrNoWallet is returned when an allocation carries no signer (dry-run plans).
var ErrNoWallet = errors.New("allocation has no wallet signer")

// Instructor produces the instructions a wallet executes for its allocation.
// The wallet is always a signer of the instructions it returns.
type Instructor interface {
	Instructions(ctx context.Context, alloc domain.WalletAllocation) ([]Instruction, error)
}

// TransferInstructor transfers each allocation's amount to a fixed destination.
type TransferInstructor struct {
	Destination PublicKey
}

// Instructions implements Instructor.
func (t TransferInstructor) Instructions(_ context.Context, alloc domain.WalletAllocation) ([]Instruction, error) {
	if alloc.Wallet == nil {
		return nil, ErrNoWallet
	}
	return []Instruction{Transfer(PublicKey(alloc.Wallet.PublicKey()), t.Destination, alloc.Amount)}, nil
}

// Builder turns allocations into signed transactions.
type Builder struct {
	instructor Instructor
}

// NewBuilder creates a builder using instructor for per-wallet instructions.
func NewBuilder(instructor Instructor) *Builder {
	return &Builder{instructor: instructor}
}

// Build creates a transaction for a single wallet, paid and signed by that wallet.
func (b *Builder) Build(ctx context.Context, alloc domain.WalletAllocation, blockhash Hash) (*Transaction, error) {
	return b.BuildMulti(ctx, []domain.WalletAllocation{alloc}, blockhash)
}

// BuildMulti creates one transaction carrying the instructions of several wallets.
// The first wallet pays the fee; every wallet signs.
func (b *Builder) BuildMulti(ctx context.Context, allocs []domain.WalletAllocation, blockhash Hash) (*Transaction, error) {
	if len(allocs) == 0 {
		return nil, ErrNoInstructions
	}

	var instructions []Instruction
	signers := make([]domain.Signer, 0, len(allocs))
	for _, a := range allocs {
		if a.Wallet == nil {
			return nil, fmt.Errorf("wallet %d: %w", a.Index, ErrNoWallet)
		}
		ixs, err := b.instructor.Instructions(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("wallet %d instructions: %w", a.Index, err)
		}
		instructions = append(instructions, ixs...)
		signers = append(signers, a.Wallet)
	}

	msg, err := CompileMessage(PublicKey(allocs[0].Wallet.PublicKey()), instructions, blockhash)
	if err != nil {
		return nil, err
	}
	return Sign(msg, signers)
}

// BuildTip creates the tip transfer that pays the block engine for a bundle.
func BuildTip(payer domain.Signer, tipAccount PublicKey, amount domain.Lamports, blockhash Hash) (*Transaction, error) {
	if payer == nil {
		return nil, ErrNoWallet
	}
	from := PublicKey(payer.PublicKey())
	msg, err := CompileMessage(from, []Instruction{Transfer(from, tipAccount, amount)}, blockhash)
	if err != nil {
		return nil, err
	}
	return Sign(msg, []domain.Signer{payer})
}

// PackedBundle is an atomic group packed into block-engine transactions.
type PackedBundle struct {
	Transactions []*Transaction
	// Chunks[i] lists the allocations carried by Transactions[i]; the tip transaction carries none.
	Chunks [][]domain.WalletAllocation
	Tip    *Transaction
}

// Wire serializes every transaction of the bundle, tip last.
func (p *PackedBundle) Wire() ([][]byte, error) {
	out := make([][]byte, 0, len(p.Transactions)+1)
	for _, tx := range p.Transactions {
		raw, err := tx.Serialize()
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	if p.Tip != nil {
		raw, err := p.Tip.Serialize()
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// PackBundle spreads allocs over at most maxTxs-1 multi-signer transactions and
// appends a tip transaction paid by the first wallet, so the bundle never exceeds maxTxs.
func (b *Builder) PackBundle(ctx context.Context, allocs []domain.WalletAllocation, tipAccount PublicKey, tip domain.Lamports, blockhash Hash, maxTxs int) (*PackedBundle, error) {
	if len(allocs) == 0 {
		return nil, ErrNoInstructions
	}
	if maxTxs < 2 {
		return nil, fmt.Errorf("bundle size %d leaves no room for a tip transaction", maxTxs)
	}

	chunks := SplitEven(allocs, maxTxs-1)
	bundle := &PackedBundle{Chunks: chunks}
	for _, chunk := range chunks {
		tx, err := b.BuildMulti(ctx, chunk, blockhash)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Serialize(); err != nil {
			return nil, fmt.Errorf("pack %d wallets: %w", len(chunk), err)
		}
		bundle.Transactions = append(bundle.Transactions, tx)
	}

	tipTx, err := BuildTip(allocs[0].Wallet, tipAccount, tip, blockhash)
	if err != nil {
		return nil, fmt.Errorf("tip transaction: %w", err)
	}
	bundle.Tip = tipTx
	return bundle, nil
}

// SplitEven splits items into min(parts, len(items)) contiguous chunks, larger chunks first.
func SplitEven[T any](items []T, parts int) [][]T {
	if len(items) == 0 || parts < 1 {
		return nil
	}
	if parts > len(items) {
		parts = len(items)
	}

	base, extra := len(items)/parts, len(items)%parts
	out := make([][]T, 0, parts)
	start := 0
	for i := 0; i < parts; i++ {
		size := base
		if i < extra {
			size++
		}
		out = append(out, items[start:start+size])
		start += size
	}
	return out
}
