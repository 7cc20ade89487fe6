package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"beacon/pkg/interfaces"
	"beacon/pkg/types"
)

// RelayStats reports live connection counters without coupling the HTTP
// layer to the websocket registry implementation.
type RelayStats interface {
	Stats() map[string]int
}

// Server exposes the presence REST endpoints and operational probes. It
// holds no business logic, only HTTP handling and JSON serialization.
type Server struct {
	store     interfaces.PresenceStore
	relay     RelayStats
	logger    *zap.Logger
	router    *http.ServeMux
	jwtSecret string
	startedAt time.Time
}

func NewServer(store interfaces.PresenceStore, relay RelayStats, jwtSecret string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:     store,
		relay:     relay,
		logger:    logger,
		router:    http.NewServeMux(),
		jwtSecret: jwtSecret,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/presence", s.wrap(s.handlePresence, true))
	s.router.Handle("/api/presence/heartbeat", s.wrap(s.handleHeartbeat, true))
	s.router.Handle("/api/presence/status", s.wrap(s.handleStatus, true))
	s.router.Handle("/health", s.wrap(s.handleHealth, false))
	s.router.Handle("/diagnostics", s.wrap(s.handleDiagnostics, false))
}

// wrap applies the middleware chain. Probe endpoints stay unauthenticated
// so load balancers can reach them.
func (s *Server) wrap(h http.HandlerFunc, authenticated bool) http.Handler {
	var handler http.Handler = h
	if authenticated && s.jwtSecret != "" {
		handler = JWTAuth(s.jwtSecret, handler)
	}
	return corsMiddleware(jsonMiddleware(handler))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type PresenceListResponse struct {
	Users []*types.UserPresence `json:"users"`
	Count int                   `json:"count"`
}

type StatusRequest struct {
	UserID string       `json:"user_id"`
	Status types.Status `json:"status"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Store     string    `json:"store"`
}

type DiagnosticsResponse struct {
	Timestamp    time.Time      `json:"timestamp"`
	UptimeSec    int64          `json:"uptime_seconds"`
	Goroutines   int            `json:"goroutines"`
	HeapBytes    uint64         `json:"heap_bytes"`
	Connections  map[string]int `json:"connections"`
	TrackedUsers int            `json:"tracked_users"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handlePresence serves GET /api/presence with the full stored snapshot.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users, err := s.store.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("presence snapshot failed", zap.Error(err))
		s.sendError(w, "Failed to load presence", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(PresenceListResponse{Users: users, Count: len(users)})
}

// handleHeartbeat serves POST /api/presence/heartbeat.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var hb types.Heartbeat
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidUserID(hb.UserID) {
		s.sendError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if err := s.store.RecordHeartbeat(r.Context(), &hb); err != nil {
		s.logger.Error("heartbeat write failed",
			zap.String("user_id", hb.UserID), zap.Error(err))
		s.sendError(w, "Failed to record heartbeat", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
}

// handleStatus serves POST /api/presence/status for explicit transitions
// such as a client marking itself offline on page unload.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidUserID(req.UserID) {
		s.sendError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	if !req.Status.Valid() {
		s.sendError(w, "Invalid status", http.StatusBadRequest)
		return
	}

	if err := s.store.SetStatus(r.Context(), req.UserID, req.Status); err != nil {
		s.logger.Error("status write failed",
			zap.String("user_id", req.UserID), zap.Error(err))
		s.sendError(w, "Failed to set status", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
}

// handleHealth serves GET /health and verifies the store answers reads.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	storeStatus := "healthy"

	if _, err := s.store.Snapshot(r.Context()); err != nil {
		status = "unhealthy"
		storeStatus = err.Error()
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Store:     storeStatus,
	})
}

// handleDiagnostics serves GET /diagnostics with runtime and relay counters.
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	tracked := 0
	if users, err := s.store.Snapshot(r.Context()); err == nil {
		tracked = len(users)
	}

	var connStats map[string]int
	if s.relay != nil {
		connStats = s.relay.Stats()
	}

	json.NewEncoder(w).Encode(DiagnosticsResponse{
		Timestamp:    time.Now(),
		UptimeSec:    int64(time.Since(s.startedAt).Seconds()),
		Goroutines:   runtime.NumGoroutine(),
		HeapBytes:    mem.HeapAlloc,
		Connections:  connStats,
		TrackedUsers: tracked,
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
