// Package storage defines the persistence interfaces for the OAuth server
// core: registered clients, single-use authorization codes, and access
// tokens. Implementations live in subpackages (memory, valkey).
package storage

import (
	"context"
	"time"
)

// Client represents a dynamically registered OAuth client (RFC 7591).
type Client struct {
	// ClientID is the generated unique client identifier
	ClientID string

	// ClientSecretHash is the bcrypt hash of the client secret.
	// Empty for public clients.
	ClientSecretHash string

	// ClientType is "public" or "confidential"
	ClientType string

	// RedirectURIs are the registered redirect URIs (exact-match validated)
	RedirectURIs []string

	// TokenEndpointAuthMethod is "none", "client_secret_basic", or "client_secret_post"
	TokenEndpointAuthMethod string

	// GrantTypes lists allowed grant types (normally just authorization_code)
	GrantTypes []string

	// ResponseTypes lists allowed response types (normally just code)
	ResponseTypes []string

	// ClientName is the human-readable name from the registration request
	ClientName string

	// Scopes are the scopes the client may request
	Scopes []string

	// CreatedAt is when the client was registered
	CreatedAt time.Time
}

// AuthorizationCode represents a single-use authorization code bound to the
// request parameters it was issued for.
type AuthorizationCode struct {
	// Code is the opaque code value handed to the client
	Code string

	// ClientID is the client the code was issued to
	ClientID string

	// RedirectURI is the redirect URI the code was issued for
	RedirectURI string

	// Scope is the granted scope
	Scope string

	// CodeChallenge is the PKCE challenge from the authorization request
	CodeChallenge string

	// CodeChallengeMethod is "S256" or "plain"
	CodeChallengeMethod string

	// UserID is the host user the code authenticates
	UserID string

	// CreatedAt is when the code was issued
	CreatedAt time.Time

	// ExpiresAt is when the code stops being redeemable
	ExpiresAt time.Time

	// Used marks a consumed code. A consumed code presented again is
	// treated as a reuse attack.
	Used bool
}

// Token represents an issued access token. The raw token value is never
// persisted; lookups go through the SHA-256 hash.
type Token struct {
	// ID is the stable record identifier (UUID), used for revocation
	ID string

	// TokenHash is the hex SHA-256 of the raw token value
	TokenHash string

	// TokenPreview is a short prefix of the raw value for display
	TokenPreview string

	// UserID is the owning host user
	UserID string

	// ClientID is the registered client the token was issued to.
	// Empty for direct tokens.
	ClientID string

	// ClientName labels the token: the registered client's name for flow
	// tokens, the user-chosen name for direct tokens.
	ClientName string

	// Direct marks tokens created through direct issuance rather than the
	// authorization-code flow.
	Direct bool

	// Scope is the granted scope
	Scope string

	// CreatedAt is when the token was issued
	CreatedAt time.Time

	// ExpiresAt is when the token expires
	ExpiresAt time.Time

	// LastUsedAt is updated on every successful validation
	LastUsedAt time.Time

	// Revoked marks a revoked token. Revoked records are kept until expiry
	// so revocation wins over a concurrent validation.
	Revoked bool
}

// TokenStore manages issued access tokens.
type TokenStore interface {
	// SaveToken persists a flow-issued token.
	SaveToken(ctx context.Context, token *Token) error

	// CreateDirectToken persists a direct token, enforcing at most one
	// unrevoked direct token per (UserID, ClientName). Returns
	// ErrDirectTokenExists when the pair is taken. The check and the
	// insert are a single atomic operation.
	CreateDirectToken(ctx context.Context, token *Token) error

	// GetTokenByHash resolves a token by its SHA-256 hash. Revoked tokens
	// resolve to ErrTokenNotFound, expired ones to ErrTokenExpired.
	GetTokenByHash(ctx context.Context, hash string) (*Token, error)

	// TouchToken updates LastUsedAt on the token record.
	TouchToken(ctx context.Context, id string, when time.Time) error

	// RevokeToken revokes a single token, scoped to its owner. A token
	// that does not exist or belongs to another user yields
	// ErrTokenNotFound.
	RevokeToken(ctx context.Context, id, userID string) error

	// RevokeAllTokensForUser revokes every live token of a user and
	// returns how many were revoked.
	RevokeAllTokensForUser(ctx context.Context, userID string) (int, error)

	// RevokeTokensForUserClient revokes every live token a user holds for
	// one client. Used for code-reuse containment.
	RevokeTokensForUserClient(ctx context.Context, userID, clientID string) (int, error)

	// ListTokensForUser returns the user's token records, previews only.
	ListTokensForUser(ctx context.Context, userID string) ([]*Token, error)
}

// ClientStore manages registered clients.
type ClientStore interface {
	// SaveClient persists a registered client.
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret checks a client's secret in constant time.
	// Public clients validate without a secret.
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error

	// CheckIPLimit returns ErrClientLimitReached when the IP has already
	// registered maxClients clients, and records the registration attempt
	// otherwise.
	CheckIPLimit(ctx context.Context, ip string, maxClients int) error
}

// FlowStore manages authorization codes.
type FlowStore interface {
	// SaveAuthorizationCode persists a freshly issued code.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeAuthorizationCode atomically marks a code used and returns
	// it. Exactly one concurrent caller wins; the rest see an error.
	// When the code was already consumed, the record is returned together
	// with ErrAuthorizationCodeUsed so the caller can revoke the tokens
	// minted from it. Not-found and expired return a nil record.
	ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes a code record.
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

// Store combines all storage concerns plus lifecycle management.
type Store interface {
	TokenStore
	ClientStore
	FlowStore

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Stop releases backend resources (cleanup goroutines, connections).
	Stop()
}
