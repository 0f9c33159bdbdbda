// Package stub provides in-memory fakes of the Solana transport for tests.
package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"

	"solana-dispatch/internal/solana"
)

// ErrUnhealthy is returned by GetHealth when the stub is marked unhealthy.
var ErrUnhealthy = errors.New("node unhealthy")

// DefaultBlockhash is a valid base58 32-byte blockhash.
const DefaultBlockhash = "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"

// RPCClient implements solana.RPCClient for testing.
// Sent transactions are confirmed immediately unless configured otherwise.
type RPCClient struct {
	mu sync.Mutex

	// SendErr is returned by every SendTransaction call when set.
	SendErr error
	// SendErrs are consumed one per SendTransaction call before SendErr applies; nil entries succeed.
	SendErrs []error
	// StatusFunc overrides the status reported for a signature. Returning nil means unknown.
	StatusFunc func(signature string) *solana.SignatureStatus
	// StatusErr is returned by GetSignatureStatuses when set.
	StatusErr error
	// HealthErr is returned by GetHealth when set.
	HealthErr error

	Slot      int64
	Blockhash string

	sent   map[string][]byte
	order  []string
	counts map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Slot:      1000,
		Blockhash: DefaultBlockhash,
		sent:      make(map[string][]byte),
		counts:    make(map[string]int),
	}
}

// SendTransaction records the transaction and returns its first signature.
func (c *RPCClient) SendTransaction(ctx context.Context, tx []byte, _ *solana.SendOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts["sendTransaction"]++

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(c.SendErrs) > 0 {
		err := c.SendErrs[0]
		c.SendErrs = c.SendErrs[1:]
		if err != nil {
			return "", err
		}
	} else if c.SendErr != nil {
		return "", c.SendErr
	}

	sig := signatureOf(tx, len(c.order))
	c.sent[sig] = append([]byte(nil), tx...)
	c.order = append(c.order, sig)
	return sig, nil
}

// GetLatestBlockhash returns the configured blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context, _ solana.Commitment) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts["getLatestBlockhash"]++

	return &solana.Blockhash{
		Blockhash:            c.Blockhash,
		LastValidBlockHeight: uint64(c.Slot) + 150,
		Slot:                 c.Slot,
	}, nil
}

// GetSignatureStatuses reports sent signatures as confirmed at the current slot.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts["getSignatureStatuses"]++

	if c.StatusErr != nil {
		return nil, c.StatusErr
	}

	statuses := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if c.StatusFunc != nil {
			statuses[i] = c.StatusFunc(sig)
			continue
		}
		if _, ok := c.sent[sig]; ok {
			statuses[i] = &solana.SignatureStatus{
				Slot:               c.Slot,
				ConfirmationStatus: solana.CommitmentConfirmed,
			}
		}
	}
	return statuses, nil
}

// GetHealth returns HealthErr.
func (c *RPCClient) GetHealth(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts["getHealth"]++
	return c.HealthErr
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts["getSlot"]++
	return c.Slot, nil
}

// SetHealthErr changes the health probe result.
func (c *RPCClient) SetHealthErr(err error) {
	c.mu.Lock()
	c.HealthErr = err
	c.mu.Unlock()
}

// Calls returns how many times method was invoked.
func (c *RPCClient) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[method]
}

// TotalCalls returns the number of calls across all methods.
func (c *RPCClient) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Sent returns the signatures of accepted transactions in submission order.
func (c *RPCClient) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Transaction returns the raw bytes of an accepted transaction.
func (c *RPCClient) Transaction(signature string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.sent[signature]
	return tx, ok
}

// signatureOf extracts the first signature of a wire transaction
// (compact-u16 count byte followed by 64-byte signatures).
func signatureOf(tx []byte, n int) string {
	if len(tx) >= 65 && tx[0] > 0 {
		return base58.Encode(tx[1:65])
	}
	return fmt.Sprintf("stub-sig-%d", n+1)
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)
