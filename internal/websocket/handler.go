package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"beacon/pkg/types"
)

// EventSink receives decoded client events and disconnect notifications.
// Implemented by the relay hub; declared here so the transport layer does not
// depend on routing logic.
type EventSink interface {
	Dispatch(conn *Connection, env *types.Envelope)
	Disconnect(conn *Connection)
}

// Options tunes connection handling; zero values fall back to defaults that
// match the relay's websocket configuration defaults.
type Options struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	AllowedOrigins []string
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}
	return opts
}

// Handler accepts websocket connections and feeds their events to the sink.
type Handler struct {
	registry *Registry
	sink     EventSink
	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a websocket handler. Origin checking admits everything
// when the allowed list is empty or contains "*".
func NewHandler(registry *Registry, sink EventSink, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	resolved := opts.withDefaults()

	h := &Handler{
		registry: registry,
		sink:     sink,
		opts:     resolved,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients send no Origin header.
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleWebSocket(w, r)
}

// HandleWebSocket upgrades the request and runs the connection lifecycle.
// Connections start anonymous; identity arrives as an event on the socket.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	wsConn := NewConnection(uuid.New().String(), conn, h.opts.BufferSize, h.opts.WriteTimeout)

	if err := h.registry.Add(wsConn); err != nil {
		h.logger.Error("connection registration failed", zap.Error(err))
		_ = wsConn.Close()
		return
	}

	// Confirm the connection immediately with its assigned id.
	if err := wsConn.WriteFrame(types.EventConnected, &types.ConnectedPayload{ConnectionID: wsConn.ID()}); err != nil {
		h.logger.Warn("failed to send connection confirmation",
			zap.String("connection_id", wsConn.ID()), zap.Error(err))
	}

	h.logger.Info("connection accepted", zap.String("connection_id", wsConn.ID()))

	go h.handleConnection(wsConn)
}

// handleConnection runs the read pump and heartbeat for one connection.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.sink.Disconnect(conn)
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		h.logger.Warn("failed to set read deadline", zap.Error(err))
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.opts.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error",
					zap.String("connection_id", conn.ID()), zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// Malformed input never kills the connection.
			h.logger.Warn("malformed event frame",
				zap.String("connection_id", conn.ID()), zap.Error(err))
			continue
		}
		if env.Event == "" {
			h.logger.Warn("event frame missing event name",
				zap.String("connection_id", conn.ID()))
			continue
		}

		h.sink.Dispatch(conn, &env)
	}
}
