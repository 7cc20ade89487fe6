package types

import "errors"

// Validation errors shared across the relay and presence layers.
var (
	ErrInvalidUserID         = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRoomID         = errors.New("room ID must be 1-100 characters, alphanumeric + colon/underscore/hyphen")
	ErrInvalidDisplayName    = errors.New("display name must be at most 200 characters")
	ErrEmptyContent          = errors.New("message content cannot be empty")
	ErrContentTooLarge       = errors.New("message content exceeds 64KB limit")
	ErrInvalidMessageTypeTag = errors.New("invalid message type tag")
	ErrInvalidStatus         = errors.New("status must be online, away or offline")
)
