package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"proctorboard/internal/activity"
	"proctorboard/internal/api"
	"proctorboard/internal/auth"
	"proctorboard/internal/config"
	"proctorboard/internal/permissions"
	"proctorboard/internal/realtime"
	"proctorboard/internal/store"
	pkgdatabase "proctorboard/pkg/database"
)

// Application wires the components together and owns their lifecycle.
// Initialization order follows dependencies:
// Store → Gate → Registry → Dispatcher → Recorder → API → WebSocket → HTTP.
type Application struct {
	config     *config.Config
	store      *store.Manager
	registry   *realtime.Registry
	httpServer *http.Server
}

// NewApplication builds and wires all components from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}
	storeManager, err := store.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	gate := permissions.NewGate(storeManager)
	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry)
	recorder := activity.NewRecorder(storeManager)
	verifier := auth.NewVerifier(cfg.Auth.TokenSecret)

	apiServer := api.NewServer(storeManager, gate, recorder, dispatcher, verifier, registry)
	wsHandler := realtime.NewHandler(registry, gate, verifier, cfg.WebSocket)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      storeManager,
		registry:   registry,
		httpServer: httpServer,
	}, nil
}

// Start begins serving. It returns once the listener is confirmed up or
// startup fails.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting proctorboard on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.store.Close()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("proctorboard started")
		return nil
	case <-ctx.Done():
		app.store.Close()
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP first so no new
// mutations arrive, then the store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down proctorboard")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := app.store.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	log.Printf("Shutdown complete")
	return nil
}

// GetAddr returns the bound server address.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
