// Package wallet adapts ed25519 keypairs to the dispatch engine's Signer.
package wallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"solana-dispatch/internal/domain"
)

var (
	ErrInvalidSecretKey = errors.New("invalid secret key")
	ErrInvalidAddress   = errors.New("invalid address")
)

// Keypair is an in-memory ed25519 signer.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  [32]byte
	addr string
}

// FromSeed derives a keypair from a 32-byte seed.
func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed is %d bytes", ErrInvalidSecretKey, len(seed))
	}
	return newKeypair(ed25519.NewKeyFromSeed(seed)), nil
}

// FromSecretKey builds a keypair from a 64-byte Solana secret key (seed || public key).
// The embedded public key must match the seed.
func FromSecretKey(secret []byte) (*Keypair, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: secret key is %d bytes", ErrInvalidSecretKey, len(secret))
	}
	kp := newKeypair(ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize]))
	if string(kp.pub[:]) != string(secret[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidSecretKey)
	}
	return kp, nil
}

func newKeypair(priv ed25519.PrivateKey) *Keypair {
	kp := &Keypair{priv: priv}
	copy(kp.pub[:], priv.Public().(ed25519.PublicKey))
	kp.addr = base58.Encode(kp.pub[:])
	return kp
}

// PublicKey returns the 32-byte public key.
func (k *Keypair) PublicKey() [32]byte {
	return k.pub
}

// Address returns the base58 public key.
func (k *Keypair) Address() string {
	return k.addr
}

// Sign signs message with the private key.
func (k *Keypair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, message), nil
}

// String returns the address; key material is never printed.
func (k *Keypair) String() string {
	return k.addr
}

// IsOnCurve reports whether pub is a valid ed25519 curve point, i.e. an address
// that can sign (program derived addresses are off-curve).
func IsOnCurve(pub [32]byte) bool {
	_, err := new(edwards25519.Point).SetBytes(pub[:])
	return err == nil
}

// ParseAddress decodes a base58 address and checks it is a signable on-curve key.
func ParseAddress(s string) ([32]byte, error) {
	var out [32]byte
	b, err := base58.Decode(s)
	if err != nil || len(b) != 32 {
		return out, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	copy(out[:], b)
	if !IsOnCurve(out) {
		return out, fmt.Errorf("%w: %q is not on the ed25519 curve", ErrInvalidAddress, s)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.Signer = (*Keypair)(nil)
