package presence

import (
	"time"

	"beacon/pkg/types"
)

// Presence thresholds for remote users, measured against last-active age.
const (
	OnlineThreshold = 2 * time.Minute
	AwayThreshold   = 10 * time.Minute
	ActiveThreshold = 5 * time.Minute
)

// DetermineStatus buckets a last-active age into online/away/offline.
// Boundaries are inclusive on the lower bound: an age of exactly
// OnlineThreshold is away, exactly AwayThreshold is offline.
func DetermineStatus(age time.Duration) types.Status {
	if age < OnlineThreshold {
		return types.StatusOnline
	}
	if age < AwayThreshold {
		return types.StatusAway
	}
	return types.StatusOffline
}

// IsUserActive reports whether a last-active age counts as active. This is
// a separate computation from DetermineStatus with its own threshold; a user
// can be online but not active.
func IsUserActive(age time.Duration) bool {
	return age < ActiveThreshold
}
