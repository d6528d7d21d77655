package kcal

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port           int
	databaseURL    string
	jwtSecret      string
	matchThreshold float64
	logger         *slog.Logger
	version        string
}

// WithPort overrides the TCP port from config (KCAL_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config
// (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithJWTSecret overrides the token verification secret from config
// (JWT_SECRET env var).
func WithJWTSecret(secret string) Option {
	return func(o *resolvedOptions) { o.jwtSecret = secret }
}

// WithMatchThreshold overrides the fuzzy-resolution auto-act threshold from
// config (KCAL_MATCH_THRESHOLD env var).
func WithMatchThreshold(threshold float64) Option {
	return func(o *resolvedOptions) { o.matchThreshold = threshold }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}
