package domain

import "time"

// OperationState is the controller's state for one operation.
type OperationState string

const (
	StatePlanning       OperationState = "PLANNING"
	StateSubmitting     OperationState = "SUBMITTING"
	StateConfirming     OperationState = "CONFIRMING"
	StateCompleted      OperationState = "COMPLETED"
	StatePartialFailure OperationState = "PARTIAL_FAILURE"
	StateAborted        OperationState = "ABORTED"
)

// IsFinal reports whether no further transitions are possible.
func (s OperationState) IsFinal() bool {
	return s == StateCompleted || s == StatePartialFailure || s == StateAborted
}

var stateTransitions = map[OperationState][]OperationState{
	StatePlanning:   {StateSubmitting, StateAborted},
	StateSubmitting: {StateConfirming, StateAborted},
	StateConfirming: {StateSubmitting, StateCompleted, StatePartialFailure, StateAborted},
}

// CanTransition reports whether moving from s to next is legal.
func (s OperationState) CanTransition(next OperationState) bool {
	for _, allowed := range stateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DetectionRisk classifies how recognisable an operation is as one coordinated actor.
type DetectionRisk string

const (
	RiskLow    DetectionRisk = "low"
	RiskMedium DetectionRisk = "medium"
	RiskHigh   DetectionRisk = "high"
)

// ExecutionSummary aggregates the outcomes of one operation.
type ExecutionSummary struct {
	OperationID string
	PlanID      string
	State       OperationState
	Shape       DistributionShape
	StealthMode StealthMode
	TotalAmount Lamports

	WalletCount int
	Confirmed   int
	Failed      int
	TimedOut    int
	SuccessRate float64 // percent, confirmed / wallet count

	AvgConfirmationMs float64
	MinConfirmationMs int64
	MaxConfirmationMs int64

	TotalFees     Lamports
	TotalTips     Lamports
	DetectionRisk DetectionRisk
	AbortReason   string

	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []TransactionOutcome
}
