package oauth

// AuthorizationServerMetadata is the RFC 8414 metadata document.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
}

// ProtectedResourceMetadata is the RFC 9728 metadata document for the MCP
// endpoint.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
}

// TokenResponse is the token endpoint's success body (RFC 6749 section 5.1).
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// ErrorResponse is the OAuth error body (RFC 6749 section 5.2).
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ClientRegistrationResponse is the RFC 7591 registration response.
type ClientRegistrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
}

// DirectTokenResponse is returned by the direct issuance action. The token
// value appears here exactly once.
type DirectTokenResponse struct {
	Success   bool   `json:"success"`
	TokenID   string `json:"token_id"`
	Token     string `json:"token"`
	Name      string `json:"name"`
	ExpiresIn int64  `json:"expires_in"`
}

// RevocationResponse is returned by the revoke actions. Revoked is always
// present; zero revocations is a valid result.
type RevocationResponse struct {
	Success bool `json:"success"`
	Revoked int  `json:"revoked"`
}

// TokenListEntry is one row of the token management listing. Only the
// preview of the token value is exposed.
type TokenListEntry struct {
	TokenID    string `json:"token_id"`
	Name       string `json:"name"`
	Preview    string `json:"preview"`
	Direct     bool   `json:"direct"`
	Scope      string `json:"scope,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	ExpiresAt  int64  `json:"expires_at"`
	LastUsedAt int64  `json:"last_used_at,omitempty"`
}

// FailureResponse is the JSON body for internal failures on the
// success-flag surfaces.
type FailureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
