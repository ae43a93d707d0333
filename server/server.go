// Package server implements the OAuth server logic on top of the host
// session and the storage backends: authorization flow, code exchange,
// direct token issuance, revocation, and client registration.
package server

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/host"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/instrumentation"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/internal/util"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/security"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
)

// tokenPreviewLength is how many leading characters of a raw token value
// are kept for display in token lists.
const tokenPreviewLength = 8

// Error code constants. These mirror the constants in the root package;
// they are duplicated here to avoid a circular import.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeServerError          = "server_error"
	ErrorCodeInvalidRedirectURI   = "invalid_redirect_uri"
)

// Server coordinates the OAuth flows. Fields are exported so the HTTP
// adapter in the root package can reach the collaborators directly.
type Server struct {
	Host        host.SessionProvider
	TokenStore  storage.TokenStore
	ClientStore storage.ClientStore
	FlowStore   storage.FlowStore

	Sealer          *security.Sealer
	Auditor         *security.Auditor
	RateLimiter     *security.RateLimiter
	UserRateLimiter *security.RateLimiter
	Instrumentation *instrumentation.Instrumentation

	Logger *slog.Logger
	Config *Config
}

// New creates a Server. Host session and the three stores are required;
// sealer, auditor, rate limiters, and instrumentation are optional.
func New(
	session host.SessionProvider,
	tokenStore storage.TokenStore,
	clientStore storage.ClientStore,
	flowStore storage.FlowStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if session == nil {
		return nil, fmt.Errorf("host session provider is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if flowStore == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	if config == nil {
		config = &Config{}
	}
	config.applySecureDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		Host:        session,
		TokenStore:  tokenStore,
		ClientStore: clientStore,
		FlowStore:   flowStore,
		Logger:      logger.With("component", "oauth.server"),
		Config:      config,
	}, nil
}

// generateRandomToken returns a cryptographically random opaque value for
// tokens, codes, and client IDs.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}

// hashToken is the storage lookup key for a raw token value. Raw values are
// never persisted.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// tokenPreview returns the displayable prefix of a raw token value.
func tokenPreview(raw string) string {
	return util.SafeTruncate(raw, tokenPreviewLength)
}

func (s *Server) metrics() *instrumentation.Metrics {
	if s.Instrumentation == nil {
		return nil
	}
	return s.Instrumentation.Metrics()
}
