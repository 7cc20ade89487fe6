package presence

import "errors"

var (
	// ErrNilSyncClient is returned when a service is built without a sync client.
	ErrNilSyncClient = errors.New("sync client is required")
	// ErrMissingIdentity is returned when Initialize is called without a user id.
	ErrMissingIdentity = errors.New("identity user id is required")
)
