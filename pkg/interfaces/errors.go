package interfaces

import "errors"

// ErrStoreClosed is returned by store operations after Close.
var ErrStoreClosed = errors.New("presence store is closed")
