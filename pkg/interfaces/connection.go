package interfaces

// Connection abstracts one live relay connection so fan-out logic and tests
// are not coupled to the websocket implementation.
type Connection interface {
	// ID returns the transport-assigned connection id.
	ID() string

	// WriteFrame sends an event frame to the client. Implementations must be
	// safe for concurrent use; the relay fans out from multiple paths.
	WriteFrame(event string, payload interface{}) error

	// Close tears down the connection and releases its resources. Safe to
	// call more than once.
	Close() error

	// UserID returns the announced identity, or "" while anonymous.
	UserID() string

	// DisplayName returns the announced display name, or "".
	DisplayName() string

	// Identified reports whether the client has announced an identity.
	Identified() bool

	// Rooms returns the room ids this connection has joined.
	Rooms() []string

	// InRoom reports room membership for a single room id.
	InRoom(roomID string) bool
}
