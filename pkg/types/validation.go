package types

import "regexp"

// Compiled once at package initialization; identifier validation runs on
// every inbound event.
var (
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	roomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9:_-]+$`)
)

// maxContentBytes bounds chat message content (64KB).
const maxContentBytes = 65536

// IsValidUserID checks if a user ID meets format requirements.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidRoomID checks if a room identifier meets format requirements.
// Room ids are opaque strings chosen by clients, typically the persisted
// id of a chat room.
func IsValidRoomID(roomID string) bool {
	if len(roomID) < 1 || len(roomID) > 100 {
		return false
	}
	return roomIDRegex.MatchString(roomID)
}

// IsValidMessageTypeTag checks if a chat message type tag is known.
func IsValidMessageTypeTag(tag string) bool {
	switch tag {
	case MessageTypeText, MessageTypeStatus, MessageTypePrivate:
		return true
	default:
		return false
	}
}

// Validate ensures a room message payload meets all requirements. An empty
// type tag defaults to "text" so all relayed messages carry a known tag.
func (p *RoomMessagePayload) Validate() error {
	if !IsValidRoomID(p.RoomID) {
		return ErrInvalidRoomID
	}
	if p.Content == "" {
		return ErrEmptyContent
	}
	if len(p.Content) > maxContentBytes {
		return ErrContentTooLarge
	}
	if p.Type == "" {
		p.Type = MessageTypeText
	}
	if !IsValidMessageTypeTag(p.Type) {
		return ErrInvalidMessageTypeTag
	}
	return nil
}

// Validate ensures a private message payload meets all requirements.
func (p *PrivateMessagePayload) Validate() error {
	if !IsValidUserID(p.RecipientID) {
		return ErrInvalidUserID
	}
	if p.Content == "" {
		return ErrEmptyContent
	}
	if len(p.Content) > maxContentBytes {
		return ErrContentTooLarge
	}
	return nil
}

// Validate ensures an identity announcement meets all requirements.
func (p *IdentifyPayload) Validate() error {
	if !IsValidUserID(p.UserID) {
		return ErrInvalidUserID
	}
	if len(p.Name) > 200 {
		return ErrInvalidDisplayName
	}
	return nil
}
