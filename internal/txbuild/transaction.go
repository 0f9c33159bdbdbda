package txbuild

import (
	"fmt"

	"github.com/mr-tron/base58"

	"solana-dispatch/internal/domain"
)

// MaxTransactionSize is the packet limit for a serialized transaction.
const MaxTransactionSize = 1232

// Transaction is a signed legacy transaction.
type Transaction struct {
	Signatures [][64]byte
	Message    *Message
}

// Sign signs msg with signers. Every required signer of the message must be present.
func Sign(msg *Message, signers []domain.Signer) (*Transaction, error) {
	byKey := make(map[PublicKey]domain.Signer, len(signers))
	for _, s := range signers {
		if s == nil {
			continue
		}
		byKey[PublicKey(s.PublicKey())] = s
	}

	payload := msg.Serialize()
	required := msg.Signers()
	sigs := make([][64]byte, len(required))
	for i, key := range required {
		s, ok := byKey[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSigner, key)
		}
		raw, err := s.Sign(payload)
		if err != nil {
			return nil, fmt.Errorf("sign %s: %w", key, err)
		}
		if len(raw) != 64 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidSignature, len(raw))
		}
		copy(sigs[i][:], raw)
	}

	return &Transaction{Signatures: sigs, Message: msg}, nil
}

// Serialize encodes the transaction in wire format and enforces MaxTransactionSize.
func (tx *Transaction) Serialize() ([]byte, error) {
	msg := tx.Message.Serialize()
	b := make([]byte, 0, 1+64*len(tx.Signatures)+len(msg))
	b = appendCompactU16(b, len(tx.Signatures))
	for _, s := range tx.Signatures {
		b = append(b, s[:]...)
	}
	b = append(b, msg...)

	if len(b) > MaxTransactionSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTransactionSize, len(b), MaxTransactionSize)
	}
	return b, nil
}

// Signature returns the base58 transaction ID (the fee payer's signature).
func (tx *Transaction) Signature() string {
	if len(tx.Signatures) == 0 {
		return ""
	}
	return base58.Encode(tx.Signatures[0][:])
}

// Fee returns the base network fee of the transaction.
func (tx *Transaction) Fee() domain.Lamports {
	return domain.Lamports(len(tx.Signatures)) * domain.LamportsPerSignature
}
