package oauth

// Endpoint paths. The dispatcher matches these exactly; everything else
// falls through to the host.
const (
	PathAuthorize = "/mcp_oauth/authorize"
	PathToken     = "/mcp_oauth/token"
	PathRegister  = "/mcp_oauth/register"
	PathMetadata  = "/mcp_oauth/metadata"
	PathResource  = "/mcp_oauth/resource"

	PathWellKnownAuthServer        = "/.well-known/oauth-authorization-server"
	PathWellKnownProtectedResource = "/.well-known/oauth-protected-resource"
)

// ContinuationCookieName is the cookie that carries a parked authorization
// request across the host login redirect.
const ContinuationCookieName = "tx_mcpserver_oauth"

// Token endpoint actions for the host-session surface. Requests with a
// grant_type take the OAuth path instead.
const (
	ActionCreateToken     = "create"
	ActionRevokeToken     = "revoke"
	ActionRevokeAllTokens = "revoke_all"
	ActionListTokens      = "list"
)

// GrantTypeAuthorizationCode is the only supported grant type.
const GrantTypeAuthorizationCode = "authorization_code"

const (
	tokenTypeBearer = "Bearer"

	// stateMinLength rejects trivially guessable state values
	stateMinLength = 8

	// corsMaxAgeSeconds caches preflight results for 24 hours
	corsMaxAgeSeconds = 86400
)
