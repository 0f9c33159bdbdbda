package solana

import "context"

// WSClient defines the Solana WebSocket subscriptions used by the confirmation tracker.
type WSClient interface {
	// SignatureSubscribe waits for a signature to reach the given commitment.
	// The returned channel yields at most one notification and is then closed.
	// Cancelling ctx ends the subscription and closes the channel.
	SignatureSubscribe(ctx context.Context, signature string, commitment Commitment) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification is the single message sent for a signatureSubscribe subscription.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       interface{}
}

// Failed reports whether the transaction landed with an error.
func (n SignatureNotification) Failed() bool {
	return n.Err != nil
}
