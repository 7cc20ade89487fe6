package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"beacon/internal/websocket"
	"beacon/pkg/types"
)

// Hub is the relay's coordination point. Inbound events and disconnects are
// queued onto channels and processed by a single goroutine, so fan-out
// decisions never race; the per-connection writer goroutines keep slow
// clients from stalling the loop.
type Hub struct {
	eventCh      chan *eventContext
	disconnectCh chan *websocket.Connection
	shutdownCh   chan struct{}

	registry *websocket.Registry
	logger   *zap.Logger

	running bool
	mu      sync.RWMutex
}

// eventContext pairs a decoded client event with its originating connection.
type eventContext struct {
	conn     *websocket.Connection
	envelope *types.Envelope
	received time.Time
}

// NewHub creates a hub over the given connection registry.
func NewHub(registry *websocket.Registry, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		eventCh:      make(chan *eventContext, 1000),
		disconnectCh: make(chan *websocket.Connection, 100),
		shutdownCh:   make(chan struct{}),
		registry:     registry,
		logger:       logger,
	}
}

// Start begins hub processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	h.logger.Info("starting relay hub")
	go h.run(ctx)
	return nil
}

// Stop shuts down hub processing.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdownCh:
	default:
		close(h.shutdownCh)
	}

	h.logger.Info("relay hub stopped")
	return nil
}

// Running reports whether the hub loop is active.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Dispatch queues a client event for processing. Events arriving faster than
// the loop drains them are dropped with a log line rather than blocking the
// transport read pump.
func (h *Hub) Dispatch(conn *websocket.Connection, env *types.Envelope) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return
	}

	select {
	case h.eventCh <- &eventContext{conn: conn, envelope: env, received: time.Now()}:
	default:
		h.logger.Warn("event channel full, dropping event",
			zap.String("event", env.Event),
			zap.String("connection_id", conn.ID()))
	}
}

// Disconnect queues a connection teardown. Unlike Dispatch this blocks until
// accepted: losing a disconnect would leak registry entries and suppress the
// offline broadcast.
func (h *Hub) Disconnect(conn *websocket.Connection) {
	select {
	case h.disconnectCh <- conn:
	case <-h.shutdownCh:
		// Hub already stopped; clean the registry directly.
		h.registry.Remove(conn)
	}
}

func (h *Hub) run(ctx context.Context) {
	defer h.logger.Info("relay hub processing stopped")

	for {
		select {
		case evt := <-h.eventCh:
			h.handleEvent(evt)

		case conn := <-h.disconnectCh:
			h.handleDisconnect(conn)

		case <-h.shutdownCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

// handleEvent routes one client event. Malformed or out-of-order events are
// logged and swallowed; the connection always stays open.
func (h *Hub) handleEvent(evt *eventContext) {
	conn := evt.conn
	env := evt.envelope

	switch env.Event {
	case types.EventIdentify:
		h.handleIdentify(conn, env.Payload)
		return
	case types.EventPing:
		h.writeTo(conn, types.EventPong, nil)
		return
	}

	// Everything past this point is layered on the identified state.
	if !conn.Identified() {
		h.logger.Warn("event from anonymous connection ignored",
			zap.String("event", env.Event),
			zap.String("connection_id", conn.ID()))
		return
	}

	switch env.Event {
	case types.EventJoinRoom:
		h.handleJoinRoom(conn, env.Payload)
	case types.EventLeaveRoom:
		h.handleLeaveRoom(conn, env.Payload)
	case types.EventRoomMessage:
		h.handleRoomMessage(conn, env.Payload)
	case types.EventPrivateMessage:
		h.handlePrivateMessage(conn, env.Payload)
	case types.EventTypingStart, types.EventTypingStop:
		h.handleTyping(conn, env.Event, env.Payload)
	case types.EventMessageDelivered, types.EventMessageRead:
		h.handleReceipt(conn, env.Event, env.Payload)
	case types.EventTaskEvent, types.EventProjectEvent:
		h.handleBroadcast(conn, env.Event, env.Payload)
	default:
		h.logger.Warn("unknown event ignored",
			zap.String("event", env.Event),
			zap.String("connection_id", conn.ID()))
	}
}

// handleIdentify stores the announced identity and broadcasts user_online to
// everyone else.
func (h *Hub) handleIdentify(conn *websocket.Connection, payload json.RawMessage) {
	var p types.IdentifyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.logMalformed(conn, types.EventIdentify, err)
		return
	}
	if err := p.Validate(); err != nil {
		h.logMalformed(conn, types.EventIdentify, err)
		return
	}

	conn.SetIdentity(p.UserID, p.Name)
	if err := h.registry.Identify(conn); err != nil {
		h.logger.Error("failed to index identified connection",
			zap.String("connection_id", conn.ID()), zap.Error(err))
		return
	}

	h.logger.Info("connection identified",
		zap.String("connection_id", conn.ID()),
		zap.String("user_id", p.UserID))

	h.deliver(h.registry.All(), types.EventUserOnline,
		&types.PresenceEventPayload{UserID: p.UserID, Name: p.Name}, conn.ID())
}

// handleDisconnect removes the connection and, when it had announced an
// identity, broadcasts user_offline to everyone still connected.
func (h *Hub) handleDisconnect(conn *websocket.Connection) {
	identified := conn.Identified()
	userID := conn.UserID()
	name := conn.DisplayName()

	h.registry.Remove(conn)

	h.logger.Info("connection closed",
		zap.String("connection_id", conn.ID()),
		zap.String("user_id", userID))

	if identified {
		h.deliver(h.registry.All(), types.EventUserOffline,
			&types.PresenceEventPayload{UserID: userID, Name: name}, "")
	}
}

func (h *Hub) handleJoinRoom(conn *websocket.Connection, payload json.RawMessage) {
	var p types.RoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.logMalformed(conn, types.EventJoinRoom, err)
		return
	}
	if !types.IsValidRoomID(p.RoomID) {
		h.logMalformed(conn, types.EventJoinRoom, types.ErrInvalidRoomID)
		return
	}

	// Idempotent: joining a room twice emits nothing the second time.
	if !h.registry.JoinRoom(conn, p.RoomID) {
		return
	}

	h.deliver(h.registry.RoomConnections(p.RoomID), types.EventRoomJoined, &types.RoomEventPayload{
		RoomID:      p.RoomID,
		UserID:      conn.UserID(),
		Name:        conn.DisplayName(),
		MemberCount: h.registry.RoomSize(p.RoomID),
	}, "")
}

func (h *Hub) handleLeaveRoom(conn *websocket.Connection, payload json.RawMessage) {
	var p types.RoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.logMalformed(conn, types.EventLeaveRoom, err)
		return
	}

	if !h.registry.LeaveRoom(conn, p.RoomID) {
		return
	}

	h.deliver(h.registry.RoomConnections(p.RoomID), types.EventRoomLeft, &types.RoomEventPayload{
		RoomID:      p.RoomID,
		UserID:      conn.UserID(),
		Name:        conn.DisplayName(),
		MemberCount: h.registry.RoomSize(p.RoomID),
	}, "")
}

// handleRoomMessage relays a chat message to every member of the room,
// the sender included, then acks receipt to the sender. Senders that render
// an optimistic local echo reconcile it against the relayed copy by id.
func (h *Hub) handleRoomMessage(conn *websocket.Connection, payload json.RawMessage) {
	var p types.RoomMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.logMalformed(conn, types.EventRoomMessage, err)
		return
	}
	if err := p.Validate(); err != nil {
		h.logMalformed(conn, types.EventRoomMessage, err)
		return
	}

	msg := &types.ChatMessage{
		ID:         uuid.New().String(),
		RoomID:     p.RoomID,
		SenderID:   conn.UserID(),
		SenderName: conn.DisplayName(),
		Content:    p.Content,
		Type:       p.Type,
		Timestamp:  time.Now(),
	}

	h.deliver(h.registry.RoomConnections(p.RoomID), types.EventRoomMessage, msg, "")

	// The ack confirms relay receipt, not delivery.
	h.writeTo(conn, types.EventMessageAck, &types.AckPayload{MessageID: msg.ID})
}

// handlePrivateMessage relays a direct message to every live connection of
// the recipient. With no live connections the message is silently dropped;
// durable delivery is the persistence layer's concern, not the relay's.
func (h *Hub) handlePrivateMessage(conn *websocket.Connection, payload json.RawMessage) {
	var p types.PrivateMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.logMalformed(conn, types.EventPrivateMessage, err)
		return
	}
	if err := p.Validate(); err != nil {
		h.logMalformed(conn, types.EventPrivateMessage, err)
		return
	}

	msg := &types.ChatMessage{
		ID:          uuid.New().String(),
		RecipientID: p.RecipientID,
		SenderID:    conn.UserID(),
		SenderName:  conn.DisplayName(),
		Content:     p.Content,
		Type:        types.MessageTypePrivate,
		Timestamp:   time.Now(),
	}

	targets := h.registry.UserConnections(p.RecipientID)
	h.deliver(targets, types.EventPrivateMessage, msg, "")
	h.deliver(targets, types.EventPrivateMessageNotice, &types.ChatMessage{
		ID:          msg.ID,
		RecipientID: msg.RecipientID,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		Type:        types.MessageTypePrivate,
		Timestamp:   msg.Timestamp,
	}, "")

	h.writeTo(conn, types.EventMessageAck, &types.AckPayload{MessageID: msg.ID})
}

// handleTyping relays typing indicators to the room, excluding the
// originating connection: peers see "X is typing", the typist sees nothing.
func (h *Hub) handleTyping(conn *websocket.Connection, event string, payload json.RawMessage) {
	var p types.TypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.logMalformed(conn, event, err)
		return
	}
	if !conn.InRoom(p.RoomID) {
		h.logger.Warn("typing event for room the sender has not joined",
			zap.String("room_id", p.RoomID),
			zap.String("connection_id", conn.ID()))
		return
	}

	out := &types.TypingPayload{
		RoomID: p.RoomID,
		UserID: conn.UserID(),
		Name:   conn.DisplayName(),
	}
	h.deliver(h.registry.RoomConnections(p.RoomID), event, out, conn.ID())
}

// handleReceipt relays delivered/read receipts to the original sender's live
// connections. No live connection means the receipt is silently dropped.
func (h *Hub) handleReceipt(conn *websocket.Connection, event string, payload json.RawMessage) {
	var p types.ReceiptPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.logMalformed(conn, event, err)
		return
	}
	if !types.IsValidUserID(p.RecipientID) {
		h.logMalformed(conn, event, types.ErrInvalidUserID)
		return
	}

	h.deliver(h.registry.UserConnections(p.RecipientID), event, &types.ReceiptPayload{
		RecipientID: conn.UserID(),
		MessageID:   p.MessageID,
	}, "")
}

// handleBroadcast relays task/project lifecycle events to every connection,
// originator included; each client reconciles its own echo.
func (h *Hub) handleBroadcast(conn *websocket.Connection, event string, payload json.RawMessage) {
	if len(payload) == 0 || !json.Valid(payload) {
		h.logMalformed(conn, event, types.ErrEmptyContent)
		return
	}
	h.deliver(h.registry.All(), event, payload, "")
}

// deliver writes a frame to every connection in the target set, optionally
// excluding one connection id. Individual write failures are logged and do
// not stop delivery to the rest of the set.
func (h *Hub) deliver(targets []*websocket.Connection, event string, payload interface{}, excludeConnID string) {
	for _, target := range targets {
		if excludeConnID != "" && target.ID() == excludeConnID {
			continue
		}
		if err := target.WriteFrame(event, payload); err != nil {
			h.logger.Warn("frame delivery failed",
				zap.String("event", event),
				zap.String("connection_id", target.ID()),
				zap.Error(err))
		}
	}
}

func (h *Hub) writeTo(conn *websocket.Connection, event string, payload interface{}) {
	if err := conn.WriteFrame(event, payload); err != nil {
		h.logger.Warn("frame delivery failed",
			zap.String("event", event),
			zap.String("connection_id", conn.ID()),
			zap.Error(err))
	}
}

func (h *Hub) logMalformed(conn *websocket.Connection, event string, err error) {
	h.logger.Warn("malformed payload ignored",
		zap.String("event", event),
		zap.String("connection_id", conn.ID()),
		zap.Error(err))
}
