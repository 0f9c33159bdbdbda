// Package jito is a JSON-RPC client for Jito block-engine bundle submission.
package jito

import (
	"context"
	"errors"
)

// MaxBundleSize is the block engine's limit on transactions per bundle.
const MaxBundleSize = 5

var (
	// ErrEmptyBundle is returned when a bundle has no transactions.
	ErrEmptyBundle = errors.New("empty bundle")
	// ErrBundleTooLarge is returned when a bundle exceeds MaxBundleSize.
	ErrBundleTooLarge = errors.New("bundle exceeds max size")
	// ErrNoTipAccounts is returned when neither the engine nor the fallback list yields a tip account.
	ErrNoTipAccounts = errors.New("no tip accounts available")
)

// BundleStatus is the in-flight status of a bundle.
type BundleStatus string

const (
	BundleInvalid BundleStatus = "Invalid"
	BundlePending BundleStatus = "Pending"
	BundleFailed  BundleStatus = "Failed"
	BundleLanded  BundleStatus = "Landed"
)

// IsTerminal reports whether the bundle will not change status anymore.
func (s BundleStatus) IsTerminal() bool {
	return s == BundleInvalid || s == BundleFailed || s == BundleLanded
}

// InflightStatus is one entry of getInflightBundleStatuses.
type InflightStatus struct {
	BundleID   string       `json:"bundle_id"`
	Status     BundleStatus `json:"status"`
	LandedSlot *int64       `json:"landed_slot"`
}

// BundleResult is one entry of getBundleStatuses for a landed bundle.
type BundleResult struct {
	BundleID           string      `json:"bundle_id"`
	Transactions       []string    `json:"transactions"`
	Slot               int64       `json:"slot"`
	ConfirmationStatus string      `json:"confirmation_status"`
	Err                interface{} `json:"err"`
}

// BlockEngine is the block-engine surface used by the atomic submitter.
type BlockEngine interface {
	// SendBundle submits signed wire transactions as one all-or-nothing bundle.
	SendBundle(ctx context.Context, txs [][]byte) (string, error)

	// GetInflightBundleStatuses reports the status of recently submitted bundles.
	// Unknown bundles are returned with status Invalid.
	GetInflightBundleStatuses(ctx context.Context, bundleIDs []string) ([]InflightStatus, error)

	// GetBundleStatuses reports landed bundles. Unknown bundles yield nil entries.
	GetBundleStatuses(ctx context.Context, bundleIDs []string) ([]*BundleResult, error)

	// GetTipAccounts lists the accounts that accept bundle tips.
	GetTipAccounts(ctx context.Context) ([]string, error)
}
