// Package wallettest provides deterministic signers for tests.
package wallettest

import (
	"encoding/binary"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/wallet"
)

// Keypair returns the deterministic keypair number i.
func Keypair(i int) *wallet.Keypair {
	seed := make([]byte, 32)
	binary.LittleEndian.PutUint64(seed, uint64(i)+1)
	seed[31] = 0x5a
	kp, err := wallet.FromSeed(seed)
	if err != nil {
		panic(err)
	}
	return kp
}

// Signers returns n distinct deterministic signers.
func Signers(n int) []domain.Signer {
	out := make([]domain.Signer, n)
	for i := range out {
		out[i] = Keypair(i)
	}
	return out
}
