package types

import (
	"encoding/json"
	"time"
)

// Client-to-server event names.
const (
	EventIdentify         = "identify"
	EventJoinRoom         = "join_room"
	EventLeaveRoom        = "leave_room"
	EventRoomMessage      = "room_message"
	EventPrivateMessage   = "private_message"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
	EventTaskEvent        = "task_event"
	EventProjectEvent     = "project_event"
	EventMessageDelivered = "message_delivered"
	EventMessageRead      = "message_read"
	EventPing             = "ping"
)

// Server-to-client event names.
const (
	EventConnected            = "connected"
	EventUserOnline           = "user_online"
	EventUserOffline          = "user_offline"
	EventRoomJoined           = "room_joined"
	EventRoomLeft             = "room_left"
	EventMessageAck           = "message_ack"
	EventPrivateMessageNotice = "private_message_notice"
	EventPong                 = "pong"
)

// Message type tags carried by chat messages.
const (
	MessageTypeText    = "text"
	MessageTypeStatus  = "status"
	MessageTypePrivate = "private"
)

// Envelope is the wire frame for all client-to-relay traffic. Payload shape
// depends on the event name; unknown fields are ignored on decode.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Frame is the relay-to-client wire frame. The relay stamps every outbound
// frame with its own timestamp.
type Frame struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// IdentifyPayload announces a connection's identity after connect.
type IdentifyPayload struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// RoomPayload addresses a single room.
type RoomPayload struct {
	RoomID string `json:"room_id"`
}

// RoomMessagePayload is a chat message addressed to a room.
type RoomMessagePayload struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

// PrivateMessagePayload is a chat message addressed to a single user.
type PrivateMessagePayload struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

// ReceiptPayload relays a delivered/read receipt to a message's original sender.
type ReceiptPayload struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// TypingPayload notifies a room that a user started or stopped typing.
type TypingPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// RoomEventPayload notifies room members of a membership change.
type RoomEventPayload struct {
	RoomID      string `json:"room_id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name,omitempty"`
	MemberCount int    `json:"member_count"`
}

// PresenceEventPayload carries user_online / user_offline broadcasts.
type PresenceEventPayload struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// ConnectedPayload confirms a new connection and reports its assigned id.
type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
}

// AckPayload confirms relay receipt of a sent message. It confirms receipt by
// the relay only, not delivery to any recipient.
type AckPayload struct {
	MessageID string `json:"message_id"`
}

// ChatMessage is the ephemeral wire representation of a relayed message.
// The relay assigns the id and timestamp on receipt and retains nothing;
// durable storage is the persistence layer's job.
type ChatMessage struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id,omitempty"`
	RecipientID string    `json:"recipient_id,omitempty"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name,omitempty"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
}

// Status is a user's derived presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// Rank orders statuses for display: online < away < offline.
func (s Status) Rank() int {
	switch s {
	case StatusOnline:
		return 0
	case StatusAway:
		return 1
	default:
		return 2
	}
}

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	return s == StatusOnline || s == StatusAway || s == StatusOffline
}

// PresenceRecord is the client-side view of one user's presence.
type PresenceRecord struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	AvatarRef   string    `json:"avatar_ref,omitempty"`
	Role        string    `json:"role,omitempty"`
	Department  string    `json:"department,omitempty"`
	Status      Status    `json:"status"`
	LastSeen    time.Time `json:"last_seen"`
	CurrentPage string    `json:"current_page,omitempty"`
	IsActive    bool      `json:"is_active"`
}

// UserPresence is one row of the server-side presence snapshot. Clients derive
// display status from LastActive; the stored Status reflects the last explicit
// transition the user pushed.
type UserPresence struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	AvatarRef   string    `json:"avatar_ref,omitempty"`
	Role        string    `json:"role,omitempty"`
	Department  string    `json:"department,omitempty"`
	CurrentPage string    `json:"current_page,omitempty"`
	IsActive    bool      `json:"is_active"`
	Status      Status    `json:"status"`
	LastActive  time.Time `json:"last_active"`
}

// Heartbeat is a periodic liveness push for a single user. Profile fields are
// optional; empty values leave the stored profile untouched.
type Heartbeat struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
	Role        string `json:"role,omitempty"`
	Department  string `json:"department,omitempty"`
	CurrentPage string `json:"current_page,omitempty"`
	IsActive    bool   `json:"is_active"`
}
