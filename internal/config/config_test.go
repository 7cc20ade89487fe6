package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Expected default port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Store.Backend != StoreBackendSQLite {
		t.Errorf("Expected sqlite backend by default, got %s", cfg.Store.Backend)
	}
	if cfg.Presence.HeartbeatInterval != 30*time.Second {
		t.Errorf("Expected 30s heartbeat interval, got %v", cfg.Presence.HeartbeatInterval)
	}
	if cfg.Presence.InactivityTimeout != 5*time.Minute {
		t.Errorf("Expected 5m inactivity timeout, got %v", cfg.Presence.InactivityTimeout)
	}
	if cfg.Auth.JWTSecret != "" {
		t.Error("Expected auth disabled by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BEACON_PORT", "4100")
	t.Setenv("BEACON_ENV", "production")
	t.Setenv("BEACON_STORE_BACKEND", "redis")
	t.Setenv("BEACON_REDIS_ADDR", "redis:6379")
	t.Setenv("BEACON_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("BEACON_HEARTBEAT_INTERVAL", "10s")

	cfg := LoadFromEnv()

	if cfg.Server.Port != 4100 {
		t.Errorf("Expected port 4100, got %d", cfg.Server.Port)
	}
	if cfg.Server.Environment != "production" {
		t.Errorf("Expected production environment, got %s", cfg.Server.Environment)
	}
	if cfg.Store.Backend != StoreBackendRedis || cfg.Store.RedisAddr != "redis:6379" {
		t.Errorf("Expected redis backend at redis:6379, got %s %s", cfg.Store.Backend, cfg.Store.RedisAddr)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 allowed origins, got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Presence.HeartbeatInterval != 10*time.Second {
		t.Errorf("Expected 10s heartbeat interval, got %v", cfg.Presence.HeartbeatInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Env config should validate, got %v", err)
	}
}

func TestLoadFromEnv_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("BEACON_PORT", "not-a-number")
	t.Setenv("BEACON_HEARTBEAT_INTERVAL", "garbage")

	cfg := LoadFromEnv()

	if cfg.Server.Port != 3000 {
		t.Errorf("Expected default port on bad value, got %d", cfg.Server.Port)
	}
	if cfg.Presence.HeartbeatInterval != 30*time.Second {
		t.Errorf("Expected default heartbeat interval on bad value, got %v", cfg.Presence.HeartbeatInterval)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"bad environment", func(c *Config) { c.Server.Environment = "staging" }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }},
		{"empty sqlite path", func(c *Config) { c.Store.SQLitePath = "" }},
		{"ping >= read timeout", func(c *Config) { c.WebSocket.PingInterval = c.WebSocket.ReadTimeout }},
		{"zero inactivity timeout", func(c *Config) { c.Presence.InactivityTimeout = 0 }},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beacon.json")
	content := `{
		"server": {"port": 8088, "environment": "production", "read_timeout": "45s"},
		"store": {"backend": "sqlite", "sqlite_path": "/tmp/p.db"},
		"presence": {"inactivity_timeout": "2m"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Server.Port != 8088 {
		t.Errorf("Expected port 8088, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("Expected 45s read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Store.SQLitePath != "/tmp/p.db" {
		t.Errorf("Expected sqlite path override, got %s", cfg.Store.SQLitePath)
	}
	if cfg.Presence.InactivityTimeout != 2*time.Minute {
		t.Errorf("Expected 2m inactivity timeout, got %v", cfg.Presence.InactivityTimeout)
	}
}

func TestLoadWithPrecedence_MissingFile(t *testing.T) {
	t.Setenv("BEACON_PORT", "5005")

	cfg := LoadWithPrecedence("/nonexistent/beacon.json")

	if cfg.Server.Port != 5005 {
		t.Errorf("Expected env fallback when file missing, got port %d", cfg.Server.Port)
	}
}
