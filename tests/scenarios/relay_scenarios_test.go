package scenarios

import (
	"encoding/json"
	"testing"
	"time"

	"beacon/pkg/types"
	"beacon/tests/fixtures"
)

// Two clients share a room, a third never joins it. The message reaches the
// room members exactly once each and the outsider not at all.
func TestRoomMessageDelivery(t *testing.T) {
	server := fixtures.StartTestServer(t)

	client1 := fixtures.ConnectClient(t, server.WSURL(), "alice", "Alice")
	client1.Identify(t)
	client2 := fixtures.ConnectClient(t, server.WSURL(), "bob", "Bob")
	client2.Identify(t)
	client3 := fixtures.ConnectClient(t, server.WSURL(), "carol", "Carol")
	client3.Identify(t)

	client1.JoinRoom(t, "room-42")
	client2.JoinRoom(t, "room-42")

	client1.SendRoomMessage(t, "room-42", "hello")

	frame, err := client2.WaitForEvent(types.EventRoomMessage, 2*time.Second)
	if err != nil {
		t.Fatalf("Room member did not receive message: %v", err)
	}
	var msg types.ChatMessage
	if err := json.Unmarshal(frame.Payload, &msg); err != nil {
		t.Fatalf("Failed to decode message: %v", err)
	}
	if msg.Content != "hello" {
		t.Errorf("Expected content 'hello', got %q", msg.Content)
	}
	if msg.SenderID != "alice" {
		t.Errorf("Expected message attributed to alice, got %s", msg.SenderID)
	}

	// Drain everything pending on all clients, then check exact counts.
	client1.Sync(t)
	client2.Sync(t)
	client3.Sync(t)

	if n := client2.CountEvents(types.EventRoomMessage); n != 1 {
		t.Errorf("Expected member to receive exactly 1 message, got %d", n)
	}
	if n := client1.CountEvents(types.EventRoomMessage); n != 1 {
		t.Errorf("Expected sender to receive its own copy exactly once, got %d", n)
	}
	if n := client1.CountEvents(types.EventMessageAck); n != 1 {
		t.Errorf("Expected exactly 1 ack to sender, got %d", n)
	}
	if n := client3.CountEvents(types.EventRoomMessage); n != 0 {
		t.Errorf("Expected non-member to receive nothing, got %d messages", n)
	}
}

// A private message to a user with two open connections reaches both exactly
// once each.
func TestPrivateMessageMultiTab(t *testing.T) {
	server := fixtures.StartTestServer(t)

	sender := fixtures.ConnectClient(t, server.WSURL(), "alice", "Alice")
	sender.Identify(t)
	bobTab1 := fixtures.ConnectClient(t, server.WSURL(), "bob", "Bob")
	bobTab1.Identify(t)
	bobTab2 := fixtures.ConnectClient(t, server.WSURL(), "bob", "Bob")
	bobTab2.Identify(t)

	sender.SendPrivateMessage(t, "bob", "psst")

	for i, tab := range []*fixtures.RelayClient{bobTab1, bobTab2} {
		frame, err := tab.WaitForEvent(types.EventPrivateMessage, 2*time.Second)
		if err != nil {
			t.Fatalf("Tab %d did not receive private message: %v", i+1, err)
		}
		var msg types.ChatMessage
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			t.Fatalf("Failed to decode message: %v", err)
		}
		if msg.Content != "psst" || msg.SenderID != "alice" {
			t.Errorf("Tab %d: expected 'psst' from alice, got %q from %s",
				i+1, msg.Content, msg.SenderID)
		}
	}

	bobTab1.Sync(t)
	bobTab2.Sync(t)
	sender.Sync(t)

	if n := bobTab1.CountEvents(types.EventPrivateMessage); n != 1 {
		t.Errorf("Expected tab 1 to receive exactly 1 message, got %d", n)
	}
	if n := bobTab2.CountEvents(types.EventPrivateMessage); n != 1 {
		t.Errorf("Expected tab 2 to receive exactly 1 message, got %d", n)
	}
	if n := sender.CountEvents(types.EventMessageAck); n != 1 {
		t.Errorf("Expected exactly 1 ack to sender, got %d", n)
	}
	if n := sender.CountEvents(types.EventPrivateMessage); n != 0 {
		t.Errorf("Expected sender to receive no private message copy, got %d", n)
	}
}

// A private message to a user with no live connections is dropped silently
// but still acked.
func TestPrivateMessageToOfflineUser(t *testing.T) {
	server := fixtures.StartTestServer(t)

	sender := fixtures.ConnectClient(t, server.WSURL(), "alice", "Alice")
	sender.Identify(t)

	sender.SendPrivateMessage(t, "nobody-home", "hello?")

	if _, err := sender.WaitForEvent(types.EventMessageAck, 2*time.Second); err != nil {
		t.Fatalf("Expected ack even with no recipient online: %v", err)
	}
}

// Disconnecting an identified client broadcasts exactly one user_offline to
// the remaining connections.
func TestDisconnectBroadcast(t *testing.T) {
	server := fixtures.StartTestServer(t)

	observer := fixtures.ConnectClient(t, server.WSURL(), "alice", "Alice")
	observer.Identify(t)
	leaver := fixtures.ConnectClient(t, server.WSURL(), "bob", "Bob")
	leaver.Identify(t)

	leaver.Close()

	frame, err := observer.WaitForEvent(types.EventUserOffline, 2*time.Second)
	if err != nil {
		t.Fatalf("No user_offline broadcast: %v", err)
	}
	var p types.PresenceEventPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if p.UserID != "bob" {
		t.Errorf("Expected user_offline for bob, got %s", p.UserID)
	}
	if frame.Timestamp.IsZero() {
		t.Error("Expected timestamp on user_offline broadcast")
	}

	observer.Sync(t)
	if n := observer.CountEvents(types.EventUserOffline); n != 1 {
		t.Errorf("Expected exactly 1 user_offline broadcast, got %d", n)
	}
}

// Typing indicators reach room peers but never echo back to the typist.
func TestTypingIndicatorFanout(t *testing.T) {
	server := fixtures.StartTestServer(t)

	typist := fixtures.ConnectClient(t, server.WSURL(), "alice", "Alice")
	typist.Identify(t)
	peer := fixtures.ConnectClient(t, server.WSURL(), "bob", "Bob")
	peer.Identify(t)

	typist.JoinRoom(t, "room-1")
	peer.JoinRoom(t, "room-1")

	typist.SendTypingStart(t, "room-1")

	frame, err := peer.WaitForEvent(types.EventTypingStart, 2*time.Second)
	if err != nil {
		t.Fatalf("Peer did not receive typing indicator: %v", err)
	}
	var p types.TypingPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if p.UserID != "alice" {
		t.Errorf("Expected typing attributed to alice, got %s", p.UserID)
	}

	typist.Sync(t)
	if n := typist.CountEvents(types.EventTypingStart); n != 0 {
		t.Errorf("Expected typist to receive no echo, got %d", n)
	}
}

// Leaving a room stops delivery to the departed connection.
func TestLeaveRoomStopsDelivery(t *testing.T) {
	server := fixtures.StartTestServer(t)

	sender := fixtures.ConnectClient(t, server.WSURL(), "alice", "Alice")
	sender.Identify(t)
	member := fixtures.ConnectClient(t, server.WSURL(), "bob", "Bob")
	member.Identify(t)

	sender.JoinRoom(t, "room-1")
	member.JoinRoom(t, "room-1")

	member.LeaveRoom(t, "room-1")
	member.Sync(t)

	sender.SendRoomMessage(t, "room-1", "after departure")
	sender.Sync(t)
	member.Sync(t)

	if n := member.CountEvents(types.EventRoomMessage); n != 0 {
		t.Errorf("Expected no delivery after leaving, got %d messages", n)
	}
}
