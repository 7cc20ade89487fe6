package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"beacon/pkg/types"
)

// fakeStore is an in-memory PresenceStore for handler tests.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*types.UserPresence
	snapErr  error
	writeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]*types.UserPresence)}
}

func (f *fakeStore) RecordHeartbeat(ctx context.Context, hb *types.Heartbeat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.users[hb.UserID] = &types.UserPresence{
		UserID:      hb.UserID,
		Name:        hb.Name,
		CurrentPage: hb.CurrentPage,
		IsActive:    hb.IsActive,
		Status:      types.StatusOnline,
		LastActive:  time.Now(),
	}
	return nil
}

func (f *fakeStore) SetStatus(ctx context.Context, userID string, status types.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	u, ok := f.users[userID]
	if !ok {
		u = &types.UserPresence{UserID: userID}
		f.users[userID] = u
	}
	u.Status = status
	return nil
}

func (f *fakeStore) Snapshot(ctx context.Context) ([]*types.UserPresence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	out := make([]*types.UserPresence, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

type fakeRelay struct{}

func (fakeRelay) Stats() map[string]int {
	return map[string]int{"connections": 2, "identified_users": 1, "active_rooms": 1}
}

func newTestServer(store *fakeStore, jwtSecret string) *Server {
	return NewServer(store, fakeRelay{}, jwtSecret, zap.NewNop())
}

func TestHeartbeatEndpoint(t *testing.T) {
	store := newFakeStore()
	server := newTestServer(store, "")

	body, _ := json.Marshal(types.Heartbeat{
		UserID:      "user-1",
		Name:        "Alice",
		CurrentPage: "/dashboard",
		IsActive:    true,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/presence/heartbeat", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, ok := store.users["user-1"]; !ok {
		t.Error("Expected heartbeat to be recorded")
	}
}

func TestHeartbeatRejectsInvalidUserID(t *testing.T) {
	server := newTestServer(newFakeStore(), "")

	body, _ := json.Marshal(types.Heartbeat{UserID: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/presence/heartbeat", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestHeartbeatRejectsInvalidJSON(t *testing.T) {
	server := newTestServer(newFakeStore(), "")

	req := httptest.NewRequest(http.MethodPost, "/api/presence/heartbeat", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestHeartbeatMethodNotAllowed(t *testing.T) {
	server := newTestServer(newFakeStore(), "")

	req := httptest.NewRequest(http.MethodGet, "/api/presence/heartbeat", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestPresenceListEndpoint(t *testing.T) {
	store := newFakeStore()
	store.users["user-1"] = &types.UserPresence{UserID: "user-1", Name: "Alice", Status: types.StatusOnline}
	server := newTestServer(store, "")

	req := httptest.NewRequest(http.MethodGet, "/api/presence", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp PresenceListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("Expected count 1, got %d", resp.Count)
	}
	if len(resp.Users) != 1 || resp.Users[0].UserID != "user-1" {
		t.Errorf("Expected user-1 in response, got %+v", resp.Users)
	}
}

func TestStatusEndpoint(t *testing.T) {
	store := newFakeStore()
	store.users["user-1"] = &types.UserPresence{UserID: "user-1", Status: types.StatusOnline}
	server := newTestServer(store, "")

	body, _ := json.Marshal(StatusRequest{UserID: "user-1", Status: types.StatusOffline})
	req := httptest.NewRequest(http.MethodPost, "/api/presence/status", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if store.users["user-1"].Status != types.StatusOffline {
		t.Errorf("Expected status offline, got %s", store.users["user-1"].Status)
	}
}

func TestStatusEndpointRejectsUnknownStatus(t *testing.T) {
	server := newTestServer(newFakeStore(), "")

	body, _ := json.Marshal(map[string]string{"user_id": "user-1", "status": "sleeping"})
	req := httptest.NewRequest(http.MethodPost, "/api/presence/status", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(newFakeStore(), "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Expected healthy status, got %s", resp.Status)
	}
}

func TestHealthEndpointReportsStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.snapErr = errors.New("database locked")
	server := newTestServer(store, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	server := newTestServer(newFakeStore(), "")

	req := httptest.NewRequest(http.MethodGet, "/diagnostics", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp DiagnosticsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Goroutines <= 0 {
		t.Errorf("Expected positive goroutine count, got %d", resp.Goroutines)
	}
	if resp.Connections["connections"] != 2 {
		t.Errorf("Expected 2 connections in stats, got %d", resp.Connections["connections"])
	}
}

func TestCORSPreflight(t *testing.T) {
	server := newTestServer(newFakeStore(), "")

	req := httptest.NewRequest(http.MethodOptions, "/api/presence", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS headers on preflight response")
	}
}

func signTestToken(t *testing.T, secret, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func TestJWTRequiredWhenSecretConfigured(t *testing.T) {
	server := newTestServer(newFakeStore(), "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/presence", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without token, got %d", w.Code)
	}
}

func TestJWTValidTokenAccepted(t *testing.T) {
	server := newTestServer(newFakeStore(), "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/presence", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "test-secret", "user-1"))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 with valid token, got %d: %s", w.Code, w.Body.String())
	}
}

func TestJWTWrongSecretRejected(t *testing.T) {
	server := newTestServer(newFakeStore(), "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/presence", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "other-secret", "user-1"))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 with wrong secret, got %d", w.Code)
	}
}

func TestJWTTokenViaQueryParameter(t *testing.T) {
	server := newTestServer(newFakeStore(), "test-secret")

	token := signTestToken(t, "test-secret", "user-1")
	req := httptest.NewRequest(http.MethodGet, "/api/presence?token="+token, nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 with query token, got %d", w.Code)
	}
}

func TestHealthSkipsAuth(t *testing.T) {
	server := newTestServer(newFakeStore(), "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for unauthenticated health check, got %d", w.Code)
	}
}
