package solana

// Commitment is the level of cluster agreement requested for a query.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// Reaches reports whether c is at least as strong as target.
func (c Commitment) Reaches(target Commitment) bool {
	return commitmentRank(c) >= commitmentRank(target)
}

func commitmentRank(c Commitment) int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// SendOptions configures sendTransaction.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment Commitment
	MaxRetries          *uint // node-side rebroadcast attempts
}

// Blockhash from getLatestBlockhash.
type Blockhash struct {
	Blockhash            string // base58
	LastValidBlockHeight uint64
	Slot                 int64
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *uint64 // nil once rooted
	Err                interface{}
	ConfirmationStatus Commitment
}

// Failed reports whether the transaction landed with an on-chain error.
func (s *SignatureStatus) Failed() bool {
	return s != nil && s.Err != nil
}
