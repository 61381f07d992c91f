package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DedupEntry records how many times one logical submission has been seen.
// RepeatCount only increases.
type DedupEntry struct {
	Fingerprint string
	FirstJobID  string
	LastJobID   string
	RepeatCount int
	LastSeenAt  time.Time
}

// Fingerprint derives the dedup key for a submission. Identical inputs from
// the same user for the same matter hash to the same key, so a third party
// hammering retries collapses onto one fingerprint.
func Fingerprint(userID, matterID string, payload []byte, thirdPartyReqID string) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(matterID))
	h.Write([]byte{0})
	h.Write(payload)
	h.Write([]byte{0})
	h.Write([]byte(thirdPartyReqID))
	return hex.EncodeToString(h.Sum(nil))
}

// DedupDecision is the outcome of a dedup check.
type DedupDecision struct {
	ReuseExisting bool
	JobID         string // set when ReuseExisting
	RepeatCount   int
}
