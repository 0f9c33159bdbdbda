package dispatch

import (
	"log/slog"

	"solana-dispatch/internal/domain"
)

// operation is the mutable state of one SubmitOperation call. It is owned by
// the calling goroutine.
type operation struct {
	id       string
	plan     *domain.Plan
	state    domain.OperationState
	outcomes []domain.TransactionOutcome
	settled  []bool
	abort    string
	logger   *slog.Logger
}

func newOperation(id string, plan *domain.Plan, logger *slog.Logger) *operation {
	return &operation{
		id:       id,
		plan:     plan,
		state:    domain.StatePlanning,
		outcomes: make([]domain.TransactionOutcome, plan.WalletCount),
		settled:  make([]bool, plan.WalletCount),
		logger:   logger,
	}
}

// transition moves to next if the state machine allows it.
func (op *operation) transition(next domain.OperationState) {
	if op.state == next {
		return
	}
	if !op.state.CanTransition(next) {
		op.logger.Error("illegal state transition",
			slog.String("from", string(op.state)),
			slog.String("to", string(next)))
		return
	}
	op.logger.Debug("state transition",
		slog.String("from", string(op.state)),
		slog.String("to", string(next)))
	op.state = next
}

// record stores outcomes by wallet index, replacing earlier attempts.
func (op *operation) record(outcomes []domain.TransactionOutcome) {
	for _, o := range outcomes {
		if o.WalletIndex < 0 || o.WalletIndex >= len(op.outcomes) {
			continue
		}
		op.outcomes[o.WalletIndex] = o
		op.settled[o.WalletIndex] = true
	}
}

// failRemaining marks every wallet without an outcome failed.
func (op *operation) failRemaining(kind domain.ErrorKind, err error) int {
	n := 0
	for _, a := range op.plan.Allocations() {
		if op.settled[a.Index] {
			continue
		}
		op.record([]domain.TransactionOutcome{domain.FailOutcome(a, kind, err)})
		n++
	}
	return n
}

// abortWith fails the remaining wallets and ends the operation.
func (op *operation) abortWith(reason string, kind domain.ErrorKind, err error) {
	op.abort = reason
	skipped := op.failRemaining(kind, err)
	op.transition(domain.StateAborted)
	op.logger.Warn("operation aborted",
		slog.String("reason", reason),
		slog.Int("skipped_wallets", skipped))
}

// confirmed counts confirmed wallets.
func (op *operation) confirmed() int {
	n := 0
	for i, o := range op.outcomes {
		if op.settled[i] && o.Status == domain.StatusConfirmed {
			n++
		}
	}
	return n
}
