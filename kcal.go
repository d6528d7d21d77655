// Package kcal is the public API for embedding the meal tool server.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := kcal.New(
//	    kcal.WithVersion(version),
//	    kcal.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: kcal (root) imports
// internal/*, but internal/* never imports kcal (root).
package kcal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/kcalhq/kcal/internal/auth"
	"github.com/kcalhq/kcal/internal/config"
	"github.com/kcalhq/kcal/internal/mcp"
	"github.com/kcalhq/kcal/internal/ratelimit"
	"github.com/kcalhq/kcal/internal/resolve"
	"github.com/kcalhq/kcal/internal/server"
	"github.com/kcalhq/kcal/internal/service/meals"
	"github.com/kcalhq/kcal/internal/storage"
	"github.com/kcalhq/kcal/internal/telemetry"
	"github.com/kcalhq/kcal/migrations"
)

// App is the meal tool server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	limiter      ratelimit.Limiter
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the server. It connects to the database, runs migrations,
// and wires all subsystems. It does NOT start any goroutines or accept HTTP
// connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port > 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.jwtSecret != "" {
		cfg.JWTSecret = o.jwtSecret
	}
	if o.matchThreshold > 0 {
		cfg.MatchThreshold = o.matchThreshold
	}

	version := o.version
	if version == "" {
		version = "dev"
	}

	ctx := context.Background()

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("storage: %w", err)
	}

	// RunMigrations tracks applied files in schema_migrations and skips
	// duplicates, so errors here indicate real failures.
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("migrations: %w", err)
	}

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is not set; every invocation will be rejected")
	}
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTAudience)

	mealSvc := meals.NewService(db, logger)
	resolver := resolve.New(db, mealSvc, logger, cfg.MatchThreshold, cfg.EnergyBoost)
	dispatcher := server.NewDispatcher(verifier, mealSvc, resolver, logger)
	mcpSrv := mcp.New(mealSvc, resolver, logger)

	var limiter ratelimit.Limiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitPerSecond, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		DB:                  db,
		Verifier:            verifier,
		Dispatcher:          dispatcher,
		Logger:              logger,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails, then performs a graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("kcal starting", "version", a.version, "port", a.cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops accepting HTTP requests, drains in-flight ones, and releases
// the limiter, database pool, and OTEL providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("kcal shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	_ = a.limiter.Close()
	a.db.Close()
	if err := a.otelShutdown(ctx); err != nil {
		a.logger.Error("otel shutdown error", "error", err)
	}

	a.logger.Info("kcal stopped")
	return nil
}

// Handler exposes the root HTTP handler, primarily for embedding tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}
