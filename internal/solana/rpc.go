package solana

import "context"

// RPCClient defines the Solana RPC HTTP methods used for dispatching transactions.
type RPCClient interface {
	// SendTransaction submits a fully signed, serialized transaction and returns its signature.
	SendTransaction(ctx context.Context, tx []byte, opts *SendOptions) (string, error)

	// GetLatestBlockhash returns a recent blockhash for transaction construction.
	GetLatestBlockhash(ctx context.Context, commitment Commitment) (*Blockhash, error)

	// GetSignatureStatuses returns the statuses of the given signatures.
	// Unknown signatures yield nil entries at their positions.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetHealth returns nil if the node reports itself healthy.
	GetHealth(ctx context.Context) error

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}
