// Package idhash computes deterministic identifiers so that re-processing
// the same venue trade always maps onto the same records downstream.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeIntentID computes a deterministic intent_id using SHA256.
// Formula: SHA256(source_trade_id|whale|market_id)
// Returns hex-encoded hash (64 characters).
func ComputeIntentID(sourceTradeID, whale, marketID string) string {
	data := fmt.Sprintf("%s|%s|%s", sourceTradeID, whale, marketID)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeOutcomeID computes a deterministic outcome_id for a realized whale
// round trip. Formula: SHA256(whale|market_id|exit_trade_id)
func ComputeOutcomeID(whale, marketID, exitTradeID string) string {
	data := fmt.Sprintf("%s|%s|%s", whale, marketID, exitTradeID)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
