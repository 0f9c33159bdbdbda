package domain

import "time"

// OutcomeStatus is the terminal status of a wallet's transaction.
type OutcomeStatus string

const (
	// StatusPending is only used while a transaction is in flight and is never returned to callers.
	StatusPending   OutcomeStatus = "pending"
	StatusConfirmed OutcomeStatus = "confirmed"
	StatusFailed    OutcomeStatus = "failed"
	StatusTimedOut  OutcomeStatus = "timedOut"
)

// IsTerminal reports whether the status will not change further.
func (s OutcomeStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusTimedOut
}

// TransactionOutcome is the result for one wallet of an operation.
type TransactionOutcome struct {
	WalletIndex        int
	Wallet             string // base58 address
	Group              int
	Signature          string // empty if never submitted
	BundleID           string // atomic groups only
	Status             OutcomeStatus
	Amount             Lamports
	SubmittedAt        time.Time
	ConfirmedAt        time.Time
	ConfirmationTimeMs int64
	Slot               int64
	FeeLamports        Lamports
	TipLamports        Lamports
	EndpointID         string
	ErrKind            ErrorKind
	Err                error
}

// ErrorDetail returns the error message, or "" for successful outcomes.
func (o TransactionOutcome) ErrorDetail() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// FailOutcome builds a failed outcome for an allocation that never produced a signature.
func FailOutcome(a WalletAllocation, kind ErrorKind, err error) TransactionOutcome {
	return TransactionOutcome{
		WalletIndex: a.Index,
		Wallet:      a.Address(),
		Group:       a.Group,
		Status:      StatusFailed,
		Amount:      a.Amount,
		ErrKind:     kind,
		Err:         err,
	}
}
