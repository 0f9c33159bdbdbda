// Package txbuild compiles and serializes legacy Solana transactions.
package txbuild

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKey is a 32-byte account address.
type PublicKey [32]byte

// String returns the base58 encoding.
func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// Hash is a 32-byte blockhash.
type Hash [32]byte

// SystemProgramID is the system program address (all zero bytes).
var SystemProgramID = PublicKey{}

var (
	ErrInvalidKey       = errors.New("invalid 32-byte base58 key")
	ErrNoInstructions   = errors.New("no instructions")
	ErrTooManyAccounts  = errors.New("too many accounts in message")
	ErrMissingSigner    = errors.New("missing signer for required signature")
	ErrTransactionSize  = errors.New("transaction exceeds max size")
	ErrInvalidSignature = errors.New("invalid signature length")
)

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	b, err := decode32(s)
	return PublicKey(b), err
}

// ParseHash decodes a base58 blockhash.
func ParseHash(s string) (Hash, error) {
	b, err := decode32(s)
	return Hash(b), err
}

func decode32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := base58.Decode(s)
	if err != nil {
		return out, fmt.Errorf("%w: %q: %v", ErrInvalidKey, s, err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidKey, s, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// AccountMeta references an account from an instruction.
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is an uncompiled program instruction.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// MessageHeader counts the signer and read-only sections of the account list.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into Message.AccountKeys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is a compiled legacy message.
type Message struct {
	Header          MessageHeader
	AccountKeys     []PublicKey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

// Signers returns the account keys that must sign, in signature order.
func (m *Message) Signers() []PublicKey {
	return m.AccountKeys[:m.Header.NumRequiredSignatures]
}

type accountFlags struct {
	key      PublicKey
	signer   bool
	writable bool
}

// CompileMessage orders accounts as writable signers (fee payer first),
// read-only signers, writable non-signers, read-only non-signers.
func CompileMessage(feePayer PublicKey, instructions []Instruction, blockhash Hash) (*Message, error) {
	if len(instructions) == 0 {
		return nil, ErrNoInstructions
	}

	var accounts []*accountFlags
	index := make(map[PublicKey]*accountFlags)
	add := func(key PublicKey, signer, writable bool) {
		if a, ok := index[key]; ok {
			a.signer = a.signer || signer
			a.writable = a.writable || writable
			return
		}
		a := &accountFlags{key: key, signer: signer, writable: writable}
		index[key] = a
		accounts = append(accounts, a)
	}

	add(feePayer, true, true)
	for _, ix := range instructions {
		for _, meta := range ix.Accounts {
			add(meta.PublicKey, meta.IsSigner, meta.IsWritable)
		}
	}
	for _, ix := range instructions {
		add(ix.ProgramID, false, false)
	}

	var ordered []PublicKey
	var header MessageHeader
	for _, pass := range []struct{ signer, writable bool }{
		{true, true}, {true, false}, {false, true}, {false, false},
	} {
		for _, a := range accounts {
			if a.signer != pass.signer || a.writable != pass.writable {
				continue
			}
			ordered = append(ordered, a.key)
			switch {
			case a.signer && !a.writable:
				header.NumReadonlySignedAccounts++
			case !a.signer && !a.writable:
				header.NumReadonlyUnsignedAccounts++
			}
			if a.signer {
				header.NumRequiredSignatures++
			}
		}
	}
	if len(ordered) > 256 {
		return nil, fmt.Errorf("%w: %d", ErrTooManyAccounts, len(ordered))
	}

	position := make(map[PublicKey]uint8, len(ordered))
	for i, k := range ordered {
		position[k] = uint8(i)
	}

	compiled := make([]CompiledInstruction, len(instructions))
	for i, ix := range instructions {
		idx := make([]uint8, len(ix.Accounts))
		for j, meta := range ix.Accounts {
			idx[j] = position[meta.PublicKey]
		}
		compiled[i] = CompiledInstruction{
			ProgramIDIndex: position[ix.ProgramID],
			Accounts:       idx,
			Data:           ix.Data,
		}
	}

	return &Message{
		Header:          header,
		AccountKeys:     ordered,
		RecentBlockhash: blockhash,
		Instructions:    compiled,
	}, nil
}

// Serialize encodes the message in the legacy wire format. The result is what signers sign.
func (m *Message) Serialize() []byte {
	b := make([]byte, 0, 3+1+32*len(m.AccountKeys)+32+64)
	b = append(b, m.Header.NumRequiredSignatures, m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts)

	b = appendCompactU16(b, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		b = append(b, k[:]...)
	}
	b = append(b, m.RecentBlockhash[:]...)

	b = appendCompactU16(b, len(m.Instructions))
	for _, ix := range m.Instructions {
		b = append(b, ix.ProgramIDIndex)
		b = appendCompactU16(b, len(ix.Accounts))
		b = append(b, ix.Accounts...)
		b = appendCompactU16(b, len(ix.Data))
		b = append(b, ix.Data...)
	}
	return b
}

// appendCompactU16 appends n in Solana's shortvec encoding.
func appendCompactU16(b []byte, n int) []byte {
	for {
		elem := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(b, elem)
		}
		b = append(b, elem|0x80)
	}
}
