package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestStatus_Rank(t *testing.T) {
	if StatusOnline.Rank() >= StatusAway.Rank() {
		t.Error("online should rank before away")
	}
	if StatusAway.Rank() >= StatusOffline.Rank() {
		t.Error("away should rank before offline")
	}
	if Status("bogus").Rank() != StatusOffline.Rank() {
		t.Error("unknown status should rank with offline")
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusOnline, StatusAway, StatusOffline} {
		if !s.Valid() {
			t.Errorf("Expected %q to be valid", s)
		}
	}
	if Status("busy").Valid() {
		t.Error("Expected unknown status to be invalid")
	}
}

func TestIsValidUserID(t *testing.T) {
	valid := []string{"alice", "user_1", "a-b-c", "X"}
	for _, id := range valid {
		if !IsValidUserID(id) {
			t.Errorf("Expected %q to be a valid user ID", id)
		}
	}

	invalid := []string{"", "has space", "semi;colon", strings.Repeat("a", 51)}
	for _, id := range invalid {
		if IsValidUserID(id) {
			t.Errorf("Expected %q to be an invalid user ID", id)
		}
	}
}

func TestIsValidRoomID(t *testing.T) {
	if !IsValidRoomID("room-42") {
		t.Error("Expected room-42 to be valid")
	}
	if !IsValidRoomID("project:7:general") {
		t.Error("Expected colon-separated room id to be valid")
	}
	if IsValidRoomID("") {
		t.Error("Expected empty room id to be invalid")
	}
	if IsValidRoomID(strings.Repeat("r", 101)) {
		t.Error("Expected oversized room id to be invalid")
	}
}

func TestRoomMessagePayload_Validate(t *testing.T) {
	p := &RoomMessagePayload{RoomID: "room-1", Content: "hello"}
	if err := p.Validate(); err != nil {
		t.Errorf("Expected valid payload, got %v", err)
	}
	if p.Type != MessageTypeText {
		t.Errorf("Expected empty type to default to text, got %q", p.Type)
	}

	p = &RoomMessagePayload{RoomID: "room-1", Content: ""}
	if err := p.Validate(); err != ErrEmptyContent {
		t.Errorf("Expected ErrEmptyContent, got %v", err)
	}

	p = &RoomMessagePayload{RoomID: "room-1", Content: strings.Repeat("x", maxContentBytes+1)}
	if err := p.Validate(); err != ErrContentTooLarge {
		t.Errorf("Expected ErrContentTooLarge, got %v", err)
	}

	p = &RoomMessagePayload{RoomID: "room-1", Content: "hi", Type: "weird"}
	if err := p.Validate(); err != ErrInvalidMessageTypeTag {
		t.Errorf("Expected ErrInvalidMessageTypeTag, got %v", err)
	}
}

func TestPrivateMessagePayload_Validate(t *testing.T) {
	p := &PrivateMessagePayload{RecipientID: "bob", Content: "psst"}
	if err := p.Validate(); err != nil {
		t.Errorf("Expected valid payload, got %v", err)
	}

	p = &PrivateMessagePayload{RecipientID: "", Content: "psst"}
	if err := p.Validate(); err != ErrInvalidUserID {
		t.Errorf("Expected ErrInvalidUserID, got %v", err)
	}
}

func TestEnvelope_Decode(t *testing.T) {
	raw := `{"event":"room_message","payload":{"room_id":"room-42","content":"hello","extra":"ignored"}}`

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	if env.Event != EventRoomMessage {
		t.Errorf("Expected event %q, got %q", EventRoomMessage, env.Event)
	}

	var p RoomMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if p.RoomID != "room-42" || p.Content != "hello" {
		t.Errorf("Unexpected payload: %+v", p)
	}
}
