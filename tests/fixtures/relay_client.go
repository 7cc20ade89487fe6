package fixtures

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"beacon/pkg/types"
)

// Frame is a decoded relay-to-client frame with its raw payload preserved.
type Frame struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// RelayClient is a websocket client for scenario tests. A background reader
// collects every inbound frame so tests can assert on exact delivery counts.
type RelayClient struct {
	UserID string
	Name   string

	conn   *websocket.Conn
	doneCh chan struct{}

	mu       sync.Mutex
	frames   []Frame
	consumed map[string]int
	closed   bool
}

// ConnectClient dials the relay, waits for the connection confirmation, and
// starts collecting frames.
func ConnectClient(t testing.TB, wsURL, userID, name string) *RelayClient {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial relay: %v", err)
	}

	c := &RelayClient{
		UserID:   userID,
		Name:     name,
		conn:     conn,
		doneCh:   make(chan struct{}),
		consumed: make(map[string]int),
	}
	go c.readLoop()
	t.Cleanup(c.Close)

	if _, err := c.WaitForEvent(types.EventConnected, 2*time.Second); err != nil {
		t.Fatalf("No connection confirmation: %v", err)
	}
	return c
}

func (c *RelayClient) readLoop() {
	defer close(c.doneCh)
	for {
		c.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		c.mu.Lock()
		c.frames = append(c.frames, frame)
		c.mu.Unlock()
	}
}

// Close tears down the connection and waits for the reader to finish.
func (c *RelayClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.conn.Close()
	select {
	case <-c.doneCh:
	case <-time.After(2 * time.Second):
	}
}

func (c *RelayClient) send(t testing.TB, event string, payload interface{}) {
	t.Helper()
	env := map[string]interface{}{"event": event}
	if payload != nil {
		env["payload"] = payload
	}
	if err := c.conn.WriteJSON(env); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// Identify announces the client's identity and waits for the relay to
// process it by round-tripping a ping.
func (c *RelayClient) Identify(t testing.TB) {
	t.Helper()
	c.send(t, types.EventIdentify, types.IdentifyPayload{UserID: c.UserID, Name: c.Name})
	c.Sync(t)
}

// JoinRoom joins a room and waits for the membership notification.
func (c *RelayClient) JoinRoom(t testing.TB, roomID string) {
	t.Helper()
	c.send(t, types.EventJoinRoom, types.RoomPayload{RoomID: roomID})
	if _, err := c.WaitForEvent(types.EventRoomJoined, 2*time.Second); err != nil {
		t.Fatalf("No room_joined notification: %v", err)
	}
}

// LeaveRoom leaves a room.
func (c *RelayClient) LeaveRoom(t testing.TB, roomID string) {
	t.Helper()
	c.send(t, types.EventLeaveRoom, types.RoomPayload{RoomID: roomID})
}

// SendRoomMessage sends a chat message to a room.
func (c *RelayClient) SendRoomMessage(t testing.TB, roomID, content string) {
	t.Helper()
	c.send(t, types.EventRoomMessage, types.RoomMessagePayload{RoomID: roomID, Content: content})
}

// SendPrivateMessage sends a direct message to a user.
func (c *RelayClient) SendPrivateMessage(t testing.TB, recipientID, content string) {
	t.Helper()
	c.send(t, types.EventPrivateMessage, types.PrivateMessagePayload{
		RecipientID: recipientID, Content: content,
	})
}

// SendTypingStart emits a typing indicator for a room.
func (c *RelayClient) SendTypingStart(t testing.TB, roomID string) {
	t.Helper()
	c.send(t, types.EventTypingStart, types.TypingPayload{RoomID: roomID})
}

// Sync round-trips a ping so every event sent before it is fully processed
// and every resulting frame for this client has been delivered.
func (c *RelayClient) Sync(t testing.TB) {
	t.Helper()
	c.send(t, types.EventPing, nil)
	if _, err := c.WaitForEvent(types.EventPong, 2*time.Second); err != nil {
		t.Fatalf("No pong: %v", err)
	}
}

// WaitForEvent blocks until a not-yet-consumed frame with the given event
// arrives. Each call consumes one matching frame, so repeated waits step
// through successive frames of the same event. Consumed frames remain in
// the collected list for CountEvents.
func (c *RelayClient) WaitForEvent(event string, timeout time.Duration) (*Frame, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		skip := c.consumed[event]
		matched := 0
		for i := range c.frames {
			if c.frames[i].Event != event {
				continue
			}
			if matched == skip {
				frame := c.frames[i]
				c.consumed[event] = skip + 1
				c.mu.Unlock()
				return &frame, nil
			}
			matched++
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	return nil, fmt.Errorf("timed out waiting for %s", event)
}

// CountEvents returns how many collected frames carry the given event.
func (c *RelayClient) CountEvents(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if f.Event == event {
			n++
		}
	}
	return n
}

// Frames returns a copy of every frame collected so far.
func (c *RelayClient) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}
