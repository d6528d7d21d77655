package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kcalhq/kcal/internal/auth"
	"github.com/kcalhq/kcal/internal/model"
	"github.com/kcalhq/kcal/internal/ratelimit"
	"github.com/kcalhq/kcal/internal/storage"
)

// Server is the kcal HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	DB         *storage.DB
	Verifier   *auth.Verifier
	Dispatcher *Dispatcher
	Logger     *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	invokeRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Tool invocation (rate limited by IP; token is verified inside the
	// dispatcher so the envelope contract holds on auth failure too).
	mux.Handle("POST /invoke", invokeRL(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleInvoke(w, r, cfg.Dispatcher, cfg.Logger, cfg.MaxRequestBodyBytes)
	})))

	// MCP StreamableHTTP transport (bearer auth required).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", mcpAuthMiddleware(cfg.Verifier, mcpHTTP))
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(w, r, cfg.DB, cfg.Version)
	})

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// handleInvoke decodes the invocation event and hands it to the dispatcher.
// The HTTP status is always 200 when a well-formed envelope can be produced;
// the operation outcome lives in the envelope's embedded status code.
func handleInvoke(w http.ResponseWriter, r *http.Request, d *Dispatcher, logger *slog.Logger, maxBody int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	var ev model.InvocationEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid invocation event", http.StatusBadRequest)
		return
	}

	resp := d.Dispatch(r.Context(), ev)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("encode invoke response", "error", err)
	}
}

// handleHealth reports process and database health.
func handleHealth(w http.ResponseWriter, r *http.Request, db *storage.DB, version string) {
	resp := model.HealthResponse{Status: "ok", Version: version, Postgres: "ok"}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Postgres = "unreachable"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
