package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backend selectors.
const (
	StoreBackendSQLite = "sqlite"
	StoreBackendRedis  = "redis"
)

// Config holds all runtime settings for the beacond process.
type Config struct {
	Server    *ServerConfig    `json:"server"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Store     *StoreConfig     `json:"store"`
	Auth      *AuthConfig      `json:"auth"`
	Presence  *PresenceConfig  `json:"presence"`
}

// ServerConfig covers the HTTP listener shared by the relay and the presence API.
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	Environment    string        `json:"environment"`
	AllowedOrigins []string      `json:"allowed_origins"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
}

// WebSocketConfig covers relay connection tuning.
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// StoreConfig selects and configures the presence store backend.
type StoreConfig struct {
	Backend       string        `json:"backend"`
	SQLitePath    string        `json:"sqlite_path"`
	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"redis_password"`
	RedisDB       int           `json:"redis_db"`
	RetentionTTL  time.Duration `json:"retention_ttl"`
}

// AuthConfig configures the optional JWT gate on the relay and presence API.
// An empty secret disables authentication entirely; identity is then taken
// from request payloads as an opaque caller-supplied value.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// PresenceConfig carries the client tracker defaults served to embedding code.
type PresenceConfig struct {
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	InactivityTimeout time.Duration `json:"inactivity_timeout"`
	PagePollInterval  time.Duration `json:"page_poll_interval"`
}

// DefaultConfig returns production-ready defaults: relay on port 3000,
// sqlite-backed presence, auth disabled.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Host:           "0.0.0.0",
			Port:           3000,
			Environment:    "development",
			AllowedOrigins: []string{"*"},
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Store: &StoreConfig{
			Backend:      StoreBackendSQLite,
			SQLitePath:   "./beacon.db",
			RedisAddr:    "localhost:6379",
			RetentionTTL: 24 * time.Hour,
		},
		Auth: &AuthConfig{},
		Presence: &PresenceConfig{
			HeartbeatInterval: 30 * time.Second,
			InactivityTimeout: 5 * time.Minute,
			PagePollInterval:  2 * time.Second,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Server == nil {
		return fmt.Errorf("server configuration is required")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if c.Server.Environment != "development" && c.Server.Environment != "production" {
		return fmt.Errorf("environment must be development or production")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket intervals must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		return fmt.Errorf("websocket ping interval must be shorter than read timeout")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("websocket buffer size must be positive")
	}

	if c.Store == nil {
		return fmt.Errorf("store configuration is required")
	}
	switch c.Store.Backend {
	case StoreBackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path cannot be empty")
		}
	case StoreBackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
	default:
		return fmt.Errorf("store backend must be %s or %s", StoreBackendSQLite, StoreBackendRedis)
	}
	if c.Store.RetentionTTL <= 0 {
		return fmt.Errorf("store retention TTL must be positive")
	}

	if c.Presence == nil {
		return fmt.Errorf("presence configuration is required")
	}
	if c.Presence.HeartbeatInterval <= 0 || c.Presence.InactivityTimeout <= 0 || c.Presence.PagePollInterval <= 0 {
		return fmt.Errorf("presence intervals must be positive")
	}

	return nil
}

// LoadFromEnv applies BEACON_* environment variables on top of defaults.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if port := os.Getenv("BEACON_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("BEACON_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if env := os.Getenv("BEACON_ENV"); env != "" {
		cfg.Server.Environment = env
	}
	if origins := os.Getenv("BEACON_ALLOWED_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		cfg.Server.AllowedOrigins = cfg.Server.AllowedOrigins[:0]
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, trimmed)
			}
		}
	}

	if backend := os.Getenv("BEACON_STORE_BACKEND"); backend != "" {
		cfg.Store.Backend = backend
	}
	if path := os.Getenv("BEACON_SQLITE_PATH"); path != "" {
		cfg.Store.SQLitePath = path
	}
	if addr := os.Getenv("BEACON_REDIS_ADDR"); addr != "" {
		cfg.Store.RedisAddr = addr
	}
	if pass := os.Getenv("BEACON_REDIS_PASSWORD"); pass != "" {
		cfg.Store.RedisPassword = pass
	}
	if db := os.Getenv("BEACON_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Store.RedisDB = n
		}
	}

	if secret := os.Getenv("BEACON_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	applyDuration := func(key string, dst *time.Duration) {
		if raw := os.Getenv(key); raw != "" {
			if d, err := time.ParseDuration(raw); err == nil {
				*dst = d
			}
		}
	}
	applyDuration("BEACON_HTTP_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	applyDuration("BEACON_HTTP_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	applyDuration("BEACON_WS_PING_INTERVAL", &cfg.WebSocket.PingInterval)
	applyDuration("BEACON_WS_READ_TIMEOUT", &cfg.WebSocket.ReadTimeout)
	applyDuration("BEACON_WS_WRITE_TIMEOUT", &cfg.WebSocket.WriteTimeout)
	applyDuration("BEACON_STORE_RETENTION_TTL", &cfg.Store.RetentionTTL)
	applyDuration("BEACON_HEARTBEAT_INTERVAL", &cfg.Presence.HeartbeatInterval)
	applyDuration("BEACON_INACTIVITY_TIMEOUT", &cfg.Presence.InactivityTimeout)
	applyDuration("BEACON_PAGE_POLL_INTERVAL", &cfg.Presence.PagePollInterval)

	if size := os.Getenv("BEACON_WS_BUFFER_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			cfg.WebSocket.BufferSize = n
		}
	}

	return cfg
}

// fileConfig mirrors Config with string durations for JSON parsing.
type fileConfig struct {
	Server *struct {
		Host           string   `json:"host"`
		Port           int      `json:"port"`
		Environment    string   `json:"environment"`
		AllowedOrigins []string `json:"allowed_origins"`
		ReadTimeout    string   `json:"read_timeout"`
		WriteTimeout   string   `json:"write_timeout"`
	} `json:"server"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
		BufferSize   int    `json:"buffer_size"`
	} `json:"websocket"`
	Store *struct {
		Backend       string `json:"backend"`
		SQLitePath    string `json:"sqlite_path"`
		RedisAddr     string `json:"redis_addr"`
		RedisPassword string `json:"redis_password"`
		RedisDB       int    `json:"redis_db"`
		RetentionTTL  string `json:"retention_ttl"`
	} `json:"store"`
	Auth *struct {
		JWTSecret string `json:"jwt_secret"`
	} `json:"auth"`
	Presence *struct {
		HeartbeatInterval string `json:"heartbeat_interval"`
		InactivityTimeout string `json:"inactivity_timeout"`
		PagePollInterval  string `json:"page_poll_interval"`
	} `json:"presence"`
}

func parseDuration(raw string, dst *time.Duration) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

// LoadFromFile reads a JSON configuration file on top of defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if fc.Server != nil {
		if fc.Server.Host != "" {
			cfg.Server.Host = fc.Server.Host
		}
		if fc.Server.Port > 0 {
			cfg.Server.Port = fc.Server.Port
		}
		if fc.Server.Environment != "" {
			cfg.Server.Environment = fc.Server.Environment
		}
		if len(fc.Server.AllowedOrigins) > 0 {
			cfg.Server.AllowedOrigins = fc.Server.AllowedOrigins
		}
		parseDuration(fc.Server.ReadTimeout, &cfg.Server.ReadTimeout)
		parseDuration(fc.Server.WriteTimeout, &cfg.Server.WriteTimeout)
	}

	if fc.WebSocket != nil {
		if fc.WebSocket.BufferSize > 0 {
			cfg.WebSocket.BufferSize = fc.WebSocket.BufferSize
		}
		parseDuration(fc.WebSocket.PingInterval, &cfg.WebSocket.PingInterval)
		parseDuration(fc.WebSocket.ReadTimeout, &cfg.WebSocket.ReadTimeout)
		parseDuration(fc.WebSocket.WriteTimeout, &cfg.WebSocket.WriteTimeout)
	}

	if fc.Store != nil {
		if fc.Store.Backend != "" {
			cfg.Store.Backend = fc.Store.Backend
		}
		if fc.Store.SQLitePath != "" {
			cfg.Store.SQLitePath = fc.Store.SQLitePath
		}
		if fc.Store.RedisAddr != "" {
			cfg.Store.RedisAddr = fc.Store.RedisAddr
		}
		if fc.Store.RedisPassword != "" {
			cfg.Store.RedisPassword = fc.Store.RedisPassword
		}
		if fc.Store.RedisDB != 0 {
			cfg.Store.RedisDB = fc.Store.RedisDB
		}
		parseDuration(fc.Store.RetentionTTL, &cfg.Store.RetentionTTL)
	}

	if fc.Auth != nil && fc.Auth.JWTSecret != "" {
		cfg.Auth.JWTSecret = fc.Auth.JWTSecret
	}

	if fc.Presence != nil {
		parseDuration(fc.Presence.HeartbeatInterval, &cfg.Presence.HeartbeatInterval)
		parseDuration(fc.Presence.InactivityTimeout, &cfg.Presence.InactivityTimeout)
		parseDuration(fc.Presence.PagePollInterval, &cfg.Presence.PagePollInterval)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return cfg, nil
}

// LoadWithPrecedence resolves configuration as file > environment > defaults.
// A missing or unreadable file falls back to the environment silently.
func LoadWithPrecedence(path string) *Config {
	cfg := LoadFromEnv()

	if path != "" {
		if fileCfg, err := LoadFromFile(path); err == nil {
			cfg = fileCfg
		}
	}

	return cfg
}
