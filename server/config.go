package server

import "time"

// Defaults applied by Config.applySecureDefaults.
const (
	// DefaultAuthorizationCodeTTL is 10 minutes
	DefaultAuthorizationCodeTTL = int64(600)

	// DefaultAccessTokenTTL is 1 hour
	DefaultAccessTokenTTL = int64(3600)

	// DefaultDirectTokenTTL is 90 days. Direct tokens back long-lived
	// integrations, so they outlive flow tokens.
	DefaultDirectTokenTTL = int64(90 * 24 * 3600)

	// DefaultContinuationTTL is 30 minutes, long enough to complete a
	// host login without keeping parked requests around indefinitely
	DefaultContinuationTTL = int64(1800)

	// DefaultClockSkewGracePeriod matches security.DefaultClockSkewGracePeriod
	DefaultClockSkewGracePeriod = int64(5)

	// DefaultMaxClientsPerIP bounds dynamic registration per IP
	DefaultMaxClientsPerIP = 10
)

// Config holds the OAuth server configuration. The zero value is usable;
// applySecureDefaults fills in conservative settings.
type Config struct {
	// Issuer is the authorization server's base URL, e.g.
	// "https://cms.example.com". Endpoint URLs in metadata derive from it.
	Issuer string

	// Resource is the protected MCP endpoint URL (RFC 8707 resource
	// identifier). Defaults to Issuer + "/mcp".
	Resource string

	// LoginURL is where unauthenticated authorization requests are sent.
	// The host's login form lives here. Required for the login bridge.
	LoginURL string

	// AuthorizationCodeTTL in seconds. Default 600.
	AuthorizationCodeTTL int64

	// AccessTokenTTL in seconds. Default 3600.
	AccessTokenTTL int64

	// DirectTokenTTL in seconds. Default 90 days.
	DirectTokenTTL int64

	// ContinuationTTL in seconds bounds how long a parked authorization
	// request stays resumable. Default 1800.
	ContinuationTTL int64

	// ClockSkewGracePeriod in seconds for expiry checks. Default 5.
	ClockSkewGracePeriod int64

	// SupportedScopes lists allowed scopes. Empty allows any scope.
	SupportedScopes []string

	// DisablePKCE turns off the code_challenge requirement. PKCE is
	// mandatory unless a deployment opts out for legacy clients.
	DisablePKCE bool

	// AllowPKCEPlain admits the "plain" challenge method. S256-only when
	// false. Default false.
	AllowPKCEPlain bool

	// AllowedCustomSchemes lists additional redirect URI schemes
	// (e.g. "cursor", "vscode") accepted at registration.
	AllowedCustomSchemes []string

	// MaxClientsPerIP caps dynamic registrations per IP. Default 10.
	MaxClientsPerIP int

	// AllowedOrigins is the CORS allow-list for browser-based clients.
	AllowedOrigins []string

	// TrustProxy enables X-Forwarded-For / X-Real-IP handling. Only
	// enable behind a reverse proxy you control.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies in front of the server.
	// Default 1 when TrustProxy is set.
	TrustedProxyCount int

	// defaultsApplied guards against double application
	defaultsApplied bool
}

func (c *Config) applySecureDefaults() {
	if c.defaultsApplied {
		return
	}
	c.defaultsApplied = true

	if c.AuthorizationCodeTTL <= 0 {
		c.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.DirectTokenTTL <= 0 {
		c.DirectTokenTTL = DefaultDirectTokenTTL
	}
	if c.ContinuationTTL <= 0 {
		c.ContinuationTTL = DefaultContinuationTTL
	}
	if c.ClockSkewGracePeriod <= 0 {
		c.ClockSkewGracePeriod = DefaultClockSkewGracePeriod
	}
	if c.MaxClientsPerIP <= 0 {
		c.MaxClientsPerIP = DefaultMaxClientsPerIP
	}
	if c.TrustProxy && c.TrustedProxyCount <= 0 {
		c.TrustedProxyCount = 1
	}
	if c.Resource == "" && c.Issuer != "" {
		c.Resource = c.Issuer + "/mcp"
	}
}

// RequirePKCE reports whether code_challenge is mandatory.
func (c *Config) RequirePKCE() bool {
	return !c.DisablePKCE
}

// ClockSkewGrace returns the grace period as a duration.
func (c *Config) ClockSkewGrace() time.Duration {
	return time.Duration(c.ClockSkewGracePeriod) * time.Second
}
