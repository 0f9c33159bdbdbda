package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy of the dispatch engine.
var (
	// ErrConfig is returned for invalid plan or configuration parameters, before any I/O.
	ErrConfig = errors.New("invalid configuration")

	// ErrEndpointUnavailable is returned when no healthy endpoint of the requested role exists.
	ErrEndpointUnavailable = errors.New("no healthy endpoint available")

	// ErrUnknownEndpoint is returned when an endpoint ID is not part of the pool.
	ErrUnknownEndpoint = errors.New("unknown endpoint")

	// ErrSubmission is a transport-level failure on a specific attempt.
	ErrSubmission = errors.New("submission failed")

	// ErrBundleRejected is returned when an atomic bundle did not land.
	ErrBundleRejected = errors.New("bundle rejected")

	// ErrConfirmationTimeout means the transaction was not observed before its deadline.
	// It may still land later.
	ErrConfirmationTimeout = errors.New("confirmation timeout")

	// ErrTransactionRejected is a transaction-level failure (simulation, slippage, on-chain error).
	ErrTransactionRejected = errors.New("transaction rejected")

	// ErrKillSwitchActive is returned when the kill-switch stopped an operation.
	ErrKillSwitchActive = errors.New("kill-switch active")
)

// ErrorKind labels the error recorded on a TransactionOutcome.
type ErrorKind string

const (
	ErrKindNone                ErrorKind = ""
	ErrKindEndpointUnavailable ErrorKind = "EndpointUnavailable"
	ErrKindSubmission          ErrorKind = "SubmissionError"
	ErrKindBundleRejected      ErrorKind = "BundleRejected"
	ErrKindConfirmationTimeout ErrorKind = "ConfirmationTimeout"
	ErrKindTransaction         ErrorKind = "TransactionRejected"
	ErrKindKillSwitch          ErrorKind = "KillSwitchActive"
)

// ConfigError describes an invalid parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrConfig) match any ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// SubmissionError is a transport-level failure against one endpoint.
type SubmissionError struct {
	EndpointID string
	Err        error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission via %s: %v", e.EndpointID, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSubmission) match any SubmissionError.
func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmission
}

// KindOf maps an error to the ErrorKind recorded on outcomes.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrKindNone
	case errors.Is(err, ErrKillSwitchActive):
		return ErrKindKillSwitch
	case errors.Is(err, ErrBundleRejected):
		return ErrKindBundleRejected
	case errors.Is(err, ErrConfirmationTimeout):
		return ErrKindConfirmationTimeout
	case errors.Is(err, ErrEndpointUnavailable):
		return ErrKindEndpointUnavailable
	case errors.Is(err, ErrSubmission):
		return ErrKindSubmission
	default:
		return ErrKindTransaction
	}
}
