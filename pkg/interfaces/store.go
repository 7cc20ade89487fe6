package interfaces

import (
	"context"

	"beacon/pkg/types"
)

// PresenceStore is the server-side view of user presence, fronted by the HTTP
// sync endpoints. Implementations are simple key-value stores; rows are never
// deleted, stale entries just age into offline on the reading side.
type PresenceStore interface {
	// RecordHeartbeat upserts the user's row, refreshing last_active and the
	// current page/active flag. Non-empty profile fields overwrite stored
	// values; empty ones are left untouched.
	RecordHeartbeat(ctx context.Context, hb *types.Heartbeat) error

	// SetStatus records an explicit status transition for the user.
	SetStatus(ctx context.Context, userID string, status types.Status) error

	// Snapshot returns every known user with last-active timestamps.
	Snapshot(ctx context.Context) ([]*types.UserPresence, error)

	// Close releases the underlying store resources.
	Close() error
}
