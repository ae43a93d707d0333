// Package oauth is the HTTP layer of the OAuth 2.0 server core that gates a
// host CMS's MCP endpoint. The host mounts Handler.Middleware in front of
// its own handler; the OAuth endpoints live under /mcp_oauth/ and the
// well-known paths, everything else falls through to the host.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/instrumentation"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/internal/util"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/security"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/server"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
)

// Handler adapts the OAuth server to HTTP. It parses requests, calls into
// server.Server, and writes protocol responses.
type Handler struct {
	server *server.Server
	logger *slog.Logger
	tracer trace.Tracer
	routes map[string]http.HandlerFunc

	// closers stop resources owned by the convenience constructor
	closers []func()
}

// NewHandler creates a Handler for a configured server.
func NewHandler(srv *server.Server) *Handler {
	h := &Handler{
		server: srv,
		logger: srv.Logger.With("component", "oauth.handler"),
	}
	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	// static exact-match route table; order never matters, a path either
	// is an OAuth endpoint or it is the host's
	h.routes = map[string]http.HandlerFunc{
		PathAuthorize:                  h.ServeAuthorization,
		PathToken:                      h.ServeToken,
		PathRegister:                   h.ServeClientRegistration,
		PathMetadata:                   h.ServeAuthorizationServerMetadata,
		PathWellKnownAuthServer:        h.ServeAuthorizationServerMetadata,
		PathResource:                   h.ServeProtectedResourceMetadata,
		PathWellKnownProtectedResource: h.ServeProtectedResourceMetadata,
	}
	return h
}

// clientIP extracts the request's client IP per the proxy configuration.
func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
}

// ---- authorization endpoint ----

// ServeAuthorization handles GET/POST /mcp_oauth/authorize, parameters in
// the query or the form body. A logged-in session gets a code immediately;
// otherwise the request is parked in the continuation cookie and the user
// agent is sent to the host login.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		h.writeError(w, ErrInvalidRequest("method not allowed"))
		return
	}
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("malformed form body"))
		return
	}

	req := &server.AuthorizationRequest{
		ClientID:            r.FormValue("client_id"),
		RedirectURI:         r.FormValue("redirect_uri"),
		ResponseType:        r.FormValue("response_type"),
		Scope:               r.FormValue("scope"),
		State:               r.FormValue("state"),
		CodeChallenge:       r.FormValue("code_challenge"),
		CodeChallengeMethod: r.FormValue("code_challenge_method"),
	}

	if req.State != "" && len(req.State) < stateMinLength {
		h.writeError(w, ErrInvalidRequest("state parameter is too short"))
		return
	}

	// client and redirect URI errors render here; redirecting to an
	// unvalidated URI would hand the error to an attacker-chosen target
	if _, err := h.server.ValidateAuthorizationRequest(r.Context(), req); err != nil {
		h.writeError(w, h.mapServerError(err))
		return
	}

	if !h.server.Host.IsLoggedIn(r) {
		h.redirectToLogin(w, r, req)
		return
	}

	userID, err := h.server.Host.CurrentUserID(r)
	if err != nil {
		// session vanished between the check and the read; back to login
		h.redirectToLogin(w, r, req)
		return
	}

	h.completeAuthorization(w, r, req, userID)
}

// redirectToLogin parks the request and sends the user agent to the host
// login form.
func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request, req *server.AuthorizationRequest) {
	if h.server.Config.LoginURL == "" {
		h.writeError(w, ErrAccessDenied("authentication required and no login URL is configured"))
		return
	}

	if err := h.setContinuationCookie(w, r, req); err != nil {
		h.logger.Error("Failed to set continuation cookie", "error", err)
		h.writeError(w, ErrServerError("failed to start login"))
		return
	}

	if h.server.Auditor != nil {
		h.server.Auditor.LogLoginRedirect(req.ClientID, h.clientIP(r))
	}
	if m := h.metrics(); m != nil {
		m.RecordLoginRedirect(r.Context(), req.ClientID)
	}
	h.logger.Info("Redirecting to host login", "client_id", req.ClientID)

	http.Redirect(w, r, h.server.Config.LoginURL, http.StatusFound)
}

// completeAuthorization issues a code and redirects back to the client.
func (h *Handler) completeAuthorization(w http.ResponseWriter, r *http.Request, req *server.AuthorizationRequest, userID string) {
	code, err := h.server.IssueAuthorizationCode(r.Context(), req, userID)
	if err != nil {
		h.writeError(w, h.mapServerError(err))
		return
	}

	redirect, err := url.Parse(req.RedirectURI)
	if err != nil {
		h.writeError(w, ErrInvalidRequest("invalid redirect URI"))
		return
	}
	params := redirect.Query()
	params.Set("code", code)
	if req.State != "" {
		params.Set("state", req.State)
	}
	redirect.RawQuery = params.Encode()

	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

// resumeContinuation checks a fall-through request for a parked
// authorization request. With a logged-in session the original parameters
// are reattached and the user agent is sent back to the authorize endpoint,
// which now sees the authenticated session; otherwise the request passes
// through untouched. Returns true when it wrote the response.
func (h *Handler) resumeContinuation(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}

	req, err := h.readContinuationCookie(r)
	if err != nil {
		h.clearContinuationCookie(w)
		if h.server.Auditor != nil {
			h.server.Auditor.LogContinuationRejected(h.clientIP(r), "decode")
		}
		h.logger.Warn("Discarded continuation cookie", "error", err)
		return false
	}
	if req == nil {
		return false
	}

	if !h.server.Host.IsLoggedIn(r) {
		// still on the way to login, keep the cookie
		return false
	}

	// consume before validating so a rejected request cannot be replayed
	h.clearContinuationCookie(w)

	// the registration may have changed while the user logged in
	if _, err := h.server.ValidateAuthorizationRequest(r.Context(), &server.AuthorizationRequest{
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		ResponseType:        req.ResponseType,
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	}); err != nil {
		if h.server.Auditor != nil {
			h.server.Auditor.LogContinuationRejected(h.clientIP(r), "revalidation")
		}
		h.logger.Warn("Continuation no longer valid", "client_id", req.ClientID, "error", err)
		return false
	}

	if m := h.metrics(); m != nil {
		m.RecordContinuationResumed(r.Context(), req.ClientID)
	}
	h.logger.Info("Resuming authorization after login", "client_id", req.ClientID)

	params := url.Values{}
	params.Set("client_id", req.ClientID)
	params.Set("redirect_uri", req.RedirectURI)
	params.Set("response_type", req.ResponseType)
	params.Set("code_challenge", req.CodeChallenge)
	if req.CodeChallengeMethod != "" {
		params.Set("code_challenge_method", req.CodeChallengeMethod)
	}
	if req.Scope != "" {
		params.Set("scope", req.Scope)
	}
	if req.State != "" {
		params.Set("state", req.State)
	}
	http.Redirect(w, r, PathAuthorize+"?"+params.Encode(), http.StatusFound)
	return true
}

// ---- token endpoint ----

// ServeToken handles POST /mcp_oauth/token. Requests with a grant_type take
// the OAuth code exchange path; requests with an action are the
// host-session surface for direct tokens and revocation.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, ErrInvalidRequest("method not allowed"))
		return
	}
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("malformed form body"))
		return
	}

	if grantType := r.PostFormValue("grant_type"); grantType != "" {
		h.serveTokenGrant(w, r, grantType)
		return
	}
	if action := r.PostFormValue("action"); action != "" {
		h.serveTokenAction(w, r, action)
		return
	}
	h.writeError(w, ErrInvalidRequest("grant_type or action is required"))
}

func (h *Handler) serveTokenGrant(w http.ResponseWriter, r *http.Request, grantType string) {
	if grantType != GrantTypeAuthorizationCode {
		h.writeError(w, ErrUnsupportedGrantType("only authorization_code is supported"))
		return
	}

	clientID, oauthErr := h.authenticateClient(r)
	if oauthErr != nil {
		h.writeError(w, oauthErr)
		return
	}

	if rl := h.server.RateLimiter; rl != nil && !rl.Allow(h.clientIP(r)) {
		h.rateLimited(w, r, "ip")
		return
	}

	grant, err := h.server.ExchangeAuthorizationCode(
		r.Context(),
		r.PostFormValue("code"),
		clientID,
		r.PostFormValue("redirect_uri"),
		r.PostFormValue("code_verifier"),
	)
	if err != nil {
		h.writeError(w, h.mapServerError(err))
		return
	}

	h.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: grant.AccessToken,
		TokenType:   grant.TokenType,
		ExpiresIn:   grant.ExpiresIn,
		Scope:       grant.Scope,
	})
}

// serveTokenAction handles the host-session operations: direct token
// creation, listing, and revocation. These require a logged-in host
// session, not client credentials.
func (h *Handler) serveTokenAction(w http.ResponseWriter, r *http.Request, action string) {
	if !h.server.Host.IsLoggedIn(r) {
		h.writeError(w, ErrAccessDenied("host login required"))
		return
	}
	userID, err := h.server.Host.CurrentUserID(r)
	if err != nil {
		h.writeError(w, ErrAccessDenied("host login required"))
		return
	}

	if rl := h.server.UserRateLimiter; rl != nil && !rl.Allow(userID) {
		h.rateLimited(w, r, "user")
		return
	}

	switch action {
	case ActionCreateToken:
		h.serveCreateDirectToken(w, r, userID)
	case ActionRevokeToken:
		h.serveRevokeToken(w, r, userID)
	case ActionRevokeAllTokens:
		h.serveRevokeAllTokens(w, r, userID)
	case ActionListTokens:
		h.serveListTokens(w, r, userID)
	default:
		h.writeError(w, ErrInvalidRequest("unknown action"))
	}
}

func (h *Handler) serveCreateDirectToken(w http.ResponseWriter, r *http.Request, userID string) {
	name := r.PostFormValue("name")
	scope := r.PostFormValue("scope")

	raw, token, err := h.server.IssueDirectToken(r.Context(), userID, name, scope)
	if err != nil {
		if errors.Is(err, storage.ErrDirectTokenExists) {
			h.writeJSON(w, http.StatusConflict, FailureResponse{
				Success: false,
				Error:   "an active token with this name already exists",
			})
			return
		}
		h.writeActionError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, DirectTokenResponse{
		Success:   true,
		TokenID:   token.ID,
		Token:     raw,
		Name:      token.ClientName,
		ExpiresIn: int64(time.Until(token.ExpiresAt).Seconds()),
	})
}

func (h *Handler) serveRevokeToken(w http.ResponseWriter, r *http.Request, userID string) {
	tokenID := r.PostFormValue("token_id")
	if tokenID == "" {
		h.writeError(w, ErrInvalidRequest("token_id is required"))
		return
	}

	if err := h.server.RevokeToken(r.Context(), userID, tokenID); err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			h.writeJSON(w, http.StatusNotFound, FailureResponse{Success: false, Error: "token not found"})
			return
		}
		h.writeActionError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RevocationResponse{Success: true, Revoked: 1})
}

func (h *Handler) serveRevokeAllTokens(w http.ResponseWriter, r *http.Request, userID string) {
	count, err := h.server.RevokeAllTokens(r.Context(), userID)
	if err != nil {
		h.writeActionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RevocationResponse{Success: true, Revoked: count})
}

func (h *Handler) serveListTokens(w http.ResponseWriter, r *http.Request, userID string) {
	tokens, err := h.server.ListTokens(r.Context(), userID)
	if err != nil {
		h.writeActionError(w, err)
		return
	}

	entries := make([]TokenListEntry, 0, len(tokens))
	for _, t := range tokens {
		if t.Revoked {
			continue
		}
		entry := TokenListEntry{
			TokenID:   t.ID,
			Name:      t.ClientName,
			Preview:   t.TokenPreview,
			Direct:    t.Direct,
			Scope:     t.Scope,
			CreatedAt: t.CreatedAt.Unix(),
			ExpiresAt: t.ExpiresAt.Unix(),
		}
		if !t.LastUsedAt.IsZero() {
			entry.LastUsedAt = t.LastUsedAt.Unix()
		}
		entries = append(entries, entry)
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// writeActionError reports a storage failure on the success-flag surface.
func (h *Handler) writeActionError(w http.ResponseWriter, err error) {
	h.logger.Error("Token action failed", "error", err)
	h.writeJSON(w, http.StatusInternalServerError, FailureResponse{
		Success: false,
		Error:   "internal error",
	})
}

// authenticateClient resolves the requesting client from Basic auth or form
// credentials. Public clients pass with just their client_id.
func (h *Handler) authenticateClient(r *http.Request) (string, *OAuthError) {
	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")

	if user, pass, ok := r.BasicAuth(); ok {
		decodedID, err := url.QueryUnescape(user)
		if err != nil {
			return "", ErrInvalidClient("invalid client credentials")
		}
		clientID = decodedID
		clientSecret, _ = url.QueryUnescape(pass)
	}

	if clientID == "" {
		return "", ErrInvalidClient("client authentication required")
	}

	if err := h.server.ClientStore.ValidateClientSecret(r.Context(), clientID, clientSecret); err != nil {
		if h.server.Auditor != nil {
			h.server.Auditor.LogAuthFailure(clientID, h.clientIP(r), "client_authentication")
		}
		return "", ErrInvalidClient("invalid client credentials")
	}
	return clientID, nil
}

// ---- client registration ----

// ServeClientRegistration handles POST /mcp_oauth/register (RFC 7591).
func (h *Handler) ServeClientRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, ErrInvalidRequest("method not allowed"))
		return
	}

	ip := h.clientIP(r)
	if rl := h.server.RateLimiter; rl != nil && !rl.Allow(ip) {
		h.rateLimited(w, r, "ip")
		return
	}

	var req struct {
		ClientName              string   `json:"client_name"`
		ClientType              string   `json:"client_type"`
		TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
		RedirectURIs            []string `json:"redirect_uris"`
		Scope                   string   `json:"scope"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		h.writeError(w, ErrInvalidRequest("malformed registration request"))
		return
	}

	var scopes []string
	if req.Scope != "" {
		scopes = strings.Fields(req.Scope)
	}

	client, secret, err := h.server.RegisterClient(r.Context(), server.RegistrationRequest{
		ClientName:              req.ClientName,
		ClientType:              req.ClientType,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		RedirectURIs:            req.RedirectURIs,
		Scopes:                  scopes,
	}, ip)
	if err != nil {
		h.writeError(w, h.mapServerError(err))
		return
	}

	h.writeJSON(w, http.StatusCreated, ClientRegistrationResponse{
		ClientID:                client.ClientID,
		ClientSecret:            secret,
		ClientName:              client.ClientName,
		RedirectURIs:            client.RedirectURIs,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		Scope:                   strings.Join(client.Scopes, " "),
		ClientIDIssuedAt:        client.CreatedAt.Unix(),
	})
}

// ---- metadata endpoints ----

// ServeAuthorizationServerMetadata handles the RFC 8414 document, mounted
// on both /mcp_oauth/metadata and the well-known path.
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, ErrInvalidRequest("method not allowed"))
		return
	}

	issuer := util.NormalizeURL(h.server.Config.Issuer)
	methods := []string{server.PKCEMethodS256}
	if h.server.Config.AllowPKCEPlain {
		methods = append(methods, server.PKCEMethodPlain)
	}

	h.writeJSON(w, http.StatusOK, AuthorizationServerMetadata{
		Issuer:                        issuer,
		AuthorizationEndpoint:         issuer + PathAuthorize,
		TokenEndpoint:                 issuer + PathToken,
		RegistrationEndpoint:          issuer + PathRegister,
		RevocationEndpoint:            issuer + PathToken,
		ResponseTypesSupported:        []string{"code"},
		GrantTypesSupported:           []string{GrantTypeAuthorizationCode},
		CodeChallengeMethodsSupported: methods,
		TokenEndpointAuthMethodsSupported: []string{
			server.TokenEndpointAuthMethodNone,
			server.TokenEndpointAuthMethodBasic,
			server.TokenEndpointAuthMethodPost,
		},
		ScopesSupported: h.server.Config.SupportedScopes,
	})
}

// ServeProtectedResourceMetadata handles the RFC 9728 document for the MCP
// endpoint.
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, ErrInvalidRequest("method not allowed"))
		return
	}

	issuer := util.NormalizeURL(h.server.Config.Issuer)
	h.writeJSON(w, http.StatusOK, ProtectedResourceMetadata{
		Resource:               h.server.Config.Resource,
		AuthorizationServers:   []string{issuer},
		BearerMethodsSupported: []string{"header"},
		ScopesSupported:        h.server.Config.SupportedScopes,
	})
}

// ---- bearer validation for the protected endpoint ----

type contextKey string

const tokenContextKey contextKey = "oauth.token"

// TokenFromContext returns the validated token attached by RequireToken.
func TokenFromContext(ctx context.Context) (*storage.Token, bool) {
	token, ok := ctx.Value(tokenContextKey).(*storage.Token)
	return token, ok
}

// RequireToken wraps the protected MCP endpoint. It accepts the bearer
// token from the Authorization header or, for clients that cannot set
// headers, from the token query parameter. Failures answer 401 with a
// resource_metadata challenge per RFC 9728.
func (h *Handler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerFromRequest(r)
		if raw == "" {
			h.writeChallenge(w, "")
			return
		}

		token, err := h.server.ValidateAccessToken(r.Context(), raw)
		if err != nil {
			h.writeChallenge(w, ErrorCodeInvalidToken)
			return
		}

		ctx := context.WithValue(r.Context(), tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerFromRequest extracts a bearer token value from the request.
func bearerFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], tokenTypeBearer) {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// writeChallenge answers an unauthenticated protected-resource request.
func (h *Handler) writeChallenge(w http.ResponseWriter, errorCode string) {
	issuer := util.NormalizeURL(h.server.Config.Issuer)
	challenge := fmt.Sprintf("Bearer resource_metadata=%q", issuer+PathResource)
	if errorCode != "" {
		challenge += fmt.Sprintf(", error=%q", errorCode)
	}
	w.Header().Set("WWW-Authenticate", challenge)
	h.writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:            ErrorCodeInvalidToken,
		ErrorDescription: "a valid bearer token is required",
	})
}

// ---- shared response plumbing ----

func (h *Handler) metrics() *instrumentation.Metrics {
	if h.server.Instrumentation == nil {
		return nil
	}
	return h.server.Instrumentation.Metrics()
}

func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request, limiter string) {
	if h.server.Auditor != nil {
		h.server.Auditor.LogRateLimitExceeded(limiter, h.clientIP(r))
	}
	h.writeError(w, ErrRateLimitExceeded("too many requests"))
}

// writeError writes an OAuth error body. 401 invalid_client answers carry
// the Basic challenge required by RFC 6749 section 5.2.
func (h *Handler) writeError(w http.ResponseWriter, oauthErr *OAuthError) {
	if oauthErr.Status == http.StatusUnauthorized && oauthErr.Code == ErrorCodeInvalidClient {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
	}
	h.writeJSON(w, oauthErr.Status, ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// mapServerError converts a server-layer error ("code: description") into
// the HTTP representation. invalid_grant descriptions are forced generic.
func (h *Handler) mapServerError(err error) *OAuthError {
	msg := err.Error()
	code := msg
	description := ""
	if idx := strings.Index(msg, ": "); idx > 0 {
		code = msg[:idx]
		description = msg[idx+2:]
	}

	switch code {
	case ErrorCodeInvalidRequest:
		return ErrInvalidRequest(description)
	case ErrorCodeInvalidClient:
		return NewOAuthError(ErrorCodeInvalidClient, description, http.StatusBadRequest)
	case ErrorCodeInvalidGrant:
		return ErrInvalidGrant("invalid grant")
	case ErrorCodeInvalidScope:
		return ErrInvalidScope(description)
	case ErrorCodeUnsupportedGrantType:
		return ErrUnsupportedGrantType(description)
	case ErrorCodeAccessDenied:
		return ErrAccessDenied(description)
	case ErrorCodeInvalidRedirectURI:
		return ErrInvalidRedirectURI(description)
	case ErrorCodeServerError:
		h.logger.Error("Internal error", "error", err)
		return ErrServerError("internal error")
	default:
		h.logger.Error("Unclassified error", "error", err)
		return ErrServerError("internal error")
	}
}
