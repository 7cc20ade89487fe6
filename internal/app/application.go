package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"beacon/internal/api"
	"beacon/internal/config"
	"beacon/internal/relay"
	"beacon/internal/store"
	"beacon/internal/websocket"
	"beacon/pkg/interfaces"
	"beacon/pkg/logger"
)

// Application wires the beacond components in dependency order:
// store, registry, hub, websocket handler, API server, HTTP listener.
type Application struct {
	config     *config.Config
	logger     *zap.Logger
	store      interfaces.PresenceStore
	registry   *websocket.Registry
	hub        *relay.Hub
	apiServer  *api.Server
	httpServer *http.Server
}

func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Server.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	presenceStore, err := buildStore(cfg, log)
	if err != nil {
		return nil, err
	}

	registry := websocket.NewRegistry()
	hub := relay.NewHub(registry, log.Named("relay"))

	apiServer := api.NewServer(presenceStore, registry, cfg.Auth.JWTSecret, log.Named("api"))

	wsHandler := websocket.NewHandler(registry, hub, websocket.Options{
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		BufferSize:     cfg.WebSocket.BufferSize,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log.Named("websocket"))

	var ws http.Handler = wsHandler
	if cfg.Auth.JWTSecret != "" {
		ws = api.JWTAuth(cfg.Auth.JWTSecret, wsHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.Handle("/diagnostics", apiServer)
	mux.Handle("/ws", ws)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     log,
		store:      presenceStore,
		registry:   registry,
		hub:        hub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

func buildStore(cfg *config.Config, log *zap.Logger) (interfaces.PresenceStore, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s, err := store.NewRedisStore(ctx, store.RedisOptions{
			Addr:         cfg.Store.RedisAddr,
			Password:     cfg.Store.RedisPassword,
			DB:           cfg.Store.RedisDB,
			RetentionTTL: cfg.Store.RetentionTTL,
		}, log.Named("store"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis store: %w", err)
		}
		return s, nil

	default:
		s, err := store.NewSQLiteStore(cfg.Store.SQLitePath, log.Named("store"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		return s, nil
	}
}

// Start launches the hub and the HTTP listener. Returns once the listener is
// accepting connections or startup has failed.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("starting beacond",
		zap.String("addr", app.httpServer.Addr),
		zap.String("environment", app.config.Server.Environment),
		zap.String("store_backend", app.config.Store.Backend))

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start relay hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("beacond started")
		return nil
	case <-ctx.Done():
		app.hub.Stop()
		return ctx.Err()
	}
}

// Stop drains in reverse order: HTTP listener, relay hub, presence store.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down beacond")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("http server shutdown error", zap.Error(err))
	}
	if err := app.hub.Stop(); err != nil {
		app.logger.Warn("relay hub shutdown error", zap.Error(err))
	}
	if err := app.store.Close(); err != nil {
		app.logger.Warn("store shutdown error", zap.Error(err))
	}

	app.logger.Info("beacond shutdown complete")
	_ = app.logger.Sync()
	return nil
}

// Addr returns the configured listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
