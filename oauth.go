package oauth

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/host"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/instrumentation"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/security"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/server"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage/memory"
)

// Config is the all-in-one configuration for New.
type Config struct {
	// Issuer is the server's base URL (required)
	Issuer string

	// Resource is the protected MCP endpoint URL. Defaults to Issuer + "/mcp".
	Resource string

	// LoginURL is the host login form (required for the login bridge)
	LoginURL string

	// SealKey is the 32-byte key for the continuation cookie. Sealing is
	// disabled when empty.
	SealKey []byte

	// Store overrides the default in-memory storage, e.g. with the Valkey
	// backend for multi-instance deployments. The caller owns its lifecycle.
	Store storage.Store

	// AllowedOrigins is the CORS allow-list
	AllowedOrigins []string

	// SupportedScopes lists allowed scopes; empty allows any
	SupportedScopes []string

	// AllowedCustomSchemes for redirect URIs at registration
	AllowedCustomSchemes []string

	// RequestsPerSecond rate-limits the token and registration endpoints
	// per IP. Zero disables.
	RequestsPerSecond float64

	// Burst for the IP limiter
	Burst int

	// UserRequestsPerSecond rate-limits the host-session token actions
	// per user. Zero disables.
	UserRequestsPerSecond float64

	// UserBurst for the user limiter
	UserBurst int

	// CleanupInterval for the in-memory store
	CleanupInterval time.Duration

	// TrustProxy and TrustedProxyCount configure client IP extraction
	TrustProxy        bool
	TrustedProxyCount int

	// EnableInstrumentation activates OpenTelemetry
	EnableInstrumentation bool

	// ServiceVersion for telemetry
	ServiceVersion string

	// Logger for all components; slog.Default when nil
	Logger *slog.Logger
}

// New wires the default stack: in-memory storage, sealed continuation
// cookie, audit logging, and rate limiting. Call Close on the returned
// Handler during shutdown.
func New(cfg Config, session host.SessionProvider) (*Handler, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	inst, err := instrumentation.New(instrumentation.Config{
		Enabled:        cfg.EnableInstrumentation,
		ServiceVersion: cfg.ServiceVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation: %w", err)
	}

	sealer, err := security.NewSealer(cfg.SealKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create sealer: %w", err)
	}

	store := cfg.Store
	var memStore *memory.Store
	if store == nil {
		memStore = memory.New(memory.Config{
			CleanupInterval: cfg.CleanupInterval,
			Logger:          logger,
			Instrumentation: inst,
		})
		store = memStore
	}

	srv, err := server.New(session, store, store, store, &server.Config{
		Issuer:               cfg.Issuer,
		Resource:             cfg.Resource,
		LoginURL:             cfg.LoginURL,
		SupportedScopes:      cfg.SupportedScopes,
		AllowedCustomSchemes: cfg.AllowedCustomSchemes,
		AllowedOrigins:       cfg.AllowedOrigins,
		TrustProxy:           cfg.TrustProxy,
		TrustedProxyCount:    cfg.TrustedProxyCount,
	}, logger)
	if err != nil {
		if memStore != nil {
			memStore.Stop()
		}
		return nil, err
	}

	srv.Sealer = sealer
	srv.Auditor = security.NewAuditor(logger)
	srv.RateLimiter = security.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst, time.Minute)
	srv.UserRateLimiter = security.NewRateLimiter(cfg.UserRequestsPerSecond, cfg.UserBurst, time.Minute)
	srv.Instrumentation = inst

	h := NewHandler(srv)
	if memStore != nil {
		h.closers = append(h.closers, memStore.Stop)
	}
	h.closers = append(h.closers,
		srv.RateLimiter.Stop,
		srv.UserRateLimiter.Stop,
	)
	return h, nil
}

// Close stops background resources created by New. Handlers built through
// NewHandler directly own nothing and Close is a no-op.
func (h *Handler) Close() {
	for _, stop := range h.closers {
		stop()
	}
	h.closers = nil
}

// Server exposes the underlying OAuth server, mainly for tests and
// management surfaces.
func (h *Handler) Server() *server.Server {
	return h.server
}
