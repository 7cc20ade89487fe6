package fixtures

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"beacon/internal/api"
	"beacon/internal/relay"
	"beacon/internal/store"
	"beacon/internal/websocket"
)

// TestServer runs the full beacond stack over httptest: sqlite presence
// store, connection registry, relay hub, websocket handler, and the
// presence API, all behind one mux.
type TestServer struct {
	Registry *websocket.Registry
	Hub      *relay.Hub
	Store    *store.SQLiteStore

	dbPath string
	server *httptest.Server
}

// StartTestServer boots the stack with a temp database and tears everything
// down with the test.
func StartTestServer(t testing.TB) *TestServer {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "beacon-test.db")
	presenceStore, err := store.NewSQLiteStore(dbPath, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create presence store: %v", err)
	}

	registry := websocket.NewRegistry()
	hub := relay.NewHub(registry, zap.NewNop())
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}

	wsHandler := websocket.NewHandler(registry, hub, websocket.Options{
		PingInterval: time.Hour,
		ReadTimeout:  2 * time.Hour,
		WriteTimeout: 2 * time.Second,
		BufferSize:   100,
	}, zap.NewNop())

	apiServer := api.NewServer(presenceStore, registry, "", zap.NewNop())

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.Handle("/diagnostics", apiServer)
	mux.Handle("/ws", wsHandler)

	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		hub.Stop()
		presenceStore.Close()
	})

	return &TestServer{
		Registry: registry,
		Hub:      hub,
		Store:    presenceStore,
		dbPath:   dbPath,
		server:   server,
	}
}

// URL returns the HTTP base URL of the test server.
func (ts *TestServer) URL() string {
	return ts.server.URL
}

// WSURL returns the websocket endpoint URL.
func (ts *TestServer) WSURL() string {
	return "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/ws"
}

// ForceLastActive rewrites a user's last-active timestamp directly in the
// database, letting scenarios simulate the passage of time.
func (ts *TestServer) ForceLastActive(t testing.TB, userID string, lastActive time.Time) {
	t.Helper()

	db, err := sql.Open("sqlite3", ts.dbPath+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer db.Close()

	result, err := db.Exec("UPDATE presence SET last_active = ? WHERE user_id = ?",
		lastActive.UnixMilli(), userID)
	if err != nil {
		t.Fatalf("Failed to force last_active: %v", err)
	}
	rows, _ := result.RowsAffected()
	if rows != 1 {
		t.Fatalf("Expected to update 1 presence row for %s, updated %d", userID, rows)
	}
}

// WaitUntil polls the condition until it holds or the deadline passes.
func WaitUntil(t testing.TB, timeout time.Duration, condition func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for condition: %s", message)
}
