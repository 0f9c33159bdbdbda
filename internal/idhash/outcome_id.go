package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeOutcomeID computes a deterministic outcome_id for persisted wallet outcomes.
// Formula: SHA256(operation_id|wallet_index|wallet)
// Returns hex-encoded hash (64 characters).
func ComputeOutcomeID(operationID string, walletIndex int, wallet string) string {
	data := fmt.Sprintf("%s|%d|%s", operationID, walletIndex, wallet)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
