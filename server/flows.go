package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/security"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
)

// AuthorizationRequest carries the parsed parameters of an authorization
// request. The same struct round-trips through the continuation cookie when
// the user has to log in first.
type AuthorizationRequest struct {
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	ResponseType        string `json:"response_type"`
	Scope               string `json:"scope,omitempty"`
	State               string `json:"state,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

// TokenGrant is the result of a successful code exchange.
type TokenGrant struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
	Scope       string
}

// ValidateAuthorizationRequest checks an authorization request against the
// client registry and the server's PKCE policy. It returns the client so
// callers can render its name. Validation runs both on the initial request
// and again when a request is resumed from the continuation cookie, because
// the registration may have changed in between.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) (*storage.Client, error) {
	if req.ClientID == "" {
		return nil, fmt.Errorf("%s: client_id is required", ErrorCodeInvalidRequest)
	}
	if req.RedirectURI == "" {
		return nil, fmt.Errorf("%s: redirect_uri is required", ErrorCodeInvalidRequest)
	}

	client, err := s.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	if err := validateRedirectURI(client, req.RedirectURI); err != nil {
		return nil, err
	}

	if req.ResponseType != "code" {
		return nil, fmt.Errorf("%s: only the code response type is supported", ErrorCodeInvalidRequest)
	}

	if req.CodeChallenge == "" && s.Config.RequirePKCE() {
		return nil, fmt.Errorf("%s: code_challenge is required", ErrorCodeInvalidRequest)
	}
	if req.CodeChallenge != "" {
		if err := s.validateChallengeMethod(req.CodeChallengeMethod); err != nil {
			return nil, err
		}
	}

	if err := s.validateScopes(client, req.Scope); err != nil {
		return nil, err
	}

	if m := s.metrics(); m != nil {
		m.RecordAuthorizationRequested(ctx, req.ClientID)
	}
	return client, nil
}

// IssueAuthorizationCode mints a single-use code for a validated request
// and a logged-in user.
func (s *Server) IssueAuthorizationCode(ctx context.Context, req *AuthorizationRequest, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%s: no authenticated user", ErrorCodeAccessDenied)
	}

	now := time.Now()
	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		method = PKCEMethodS256
	}

	authCode := &storage.AuthorizationCode{
		Code:                generateRandomToken(),
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		UserID:              userID,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(s.Config.AuthorizationCodeTTL) * time.Second),
	}

	if err := s.FlowStore.SaveAuthorizationCode(ctx, authCode); err != nil {
		return "", fmt.Errorf("%s: failed to save authorization code: %w", ErrorCodeServerError, err)
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:     security.EventAuthorizationCodeIssued,
			UserID:   userID,
			ClientID: req.ClientID,
		})
	}
	if m := s.metrics(); m != nil {
		m.RecordCodeIssued(ctx, req.ClientID)
	}
	s.Logger.Info("Issued authorization code",
		"client_id", req.ClientID,
		"user_hash", security.HashIdentifier(userID))

	return authCode.Code, nil
}

// ExchangeAuthorizationCode redeems a code for an access token. Every
// failure surfaces as the same generic invalid_grant so the response does
// not reveal which check rejected the request; the log carries the detail.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*TokenGrant, error) {
	if code == "" {
		return nil, invalidGrant()
	}

	authCode, err := s.FlowStore.ConsumeAuthorizationCode(ctx, code)
	if err != nil {
		if authCode != nil && errors.Is(err, storage.ErrAuthorizationCodeUsed) {
			s.containCodeReuse(ctx, authCode)
			return nil, invalidGrant()
		}
		s.Logger.Warn("Code exchange failed", "reason", "code not redeemable")
		return nil, invalidGrant()
	}

	if authCode.ClientID != clientID {
		s.Logger.Warn("Code exchange failed", "reason", "client mismatch", "client_id", clientID)
		return nil, invalidGrant()
	}
	if authCode.RedirectURI != redirectURI {
		s.Logger.Warn("Code exchange failed", "reason", "redirect URI mismatch", "client_id", clientID)
		return nil, invalidGrant()
	}
	if err := s.validatePKCE(authCode, codeVerifier); err != nil {
		if m := s.metrics(); m != nil {
			m.RecordPKCEValidationFailed(ctx, authCode.CodeChallengeMethod)
		}
		s.Logger.Warn("Code exchange failed", "reason", "pkce validation", "client_id", clientID)
		return nil, invalidGrant()
	}

	client, err := s.ClientStore.GetClient(ctx, authCode.ClientID)
	if err != nil {
		s.Logger.Warn("Code exchange failed", "reason", "client no longer registered", "client_id", clientID)
		return nil, invalidGrant()
	}

	raw := generateRandomToken()
	now := time.Now()
	token := &storage.Token{
		ID:           uuid.NewString(),
		TokenHash:    hashToken(raw),
		TokenPreview: tokenPreview(raw),
		UserID:       authCode.UserID,
		ClientID:     authCode.ClientID,
		ClientName:   client.ClientName,
		Scope:        authCode.Scope,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(s.Config.AccessTokenTTL) * time.Second),
	}
	if err := s.TokenStore.SaveToken(ctx, token); err != nil {
		return nil, fmt.Errorf("%s: failed to save token: %w", ErrorCodeServerError, err)
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(authCode.UserID, authCode.ClientID, client.ClientName, false)
	}
	if m := s.metrics(); m != nil {
		m.RecordCodeExchange(ctx, authCode.ClientID, authCode.CodeChallengeMethod)
		m.RecordTokenIssued(ctx, false)
	}
	s.Logger.Info("Exchanged authorization code",
		"client_id", authCode.ClientID,
		"user_hash", security.HashIdentifier(authCode.UserID))

	return &TokenGrant{
		AccessToken: raw,
		TokenType:   "Bearer",
		ExpiresIn:   s.Config.AccessTokenTTL,
		Scope:       authCode.Scope,
	}, nil
}

// containCodeReuse revokes every token the user holds for the client whose
// code was replayed. A replayed code means either a leak or an attack, and
// in both cases the tokens minted from it cannot be trusted.
func (s *Server) containCodeReuse(ctx context.Context, authCode *storage.AuthorizationCode) {
	revoked, err := s.TokenStore.RevokeTokensForUserClient(ctx, authCode.UserID, authCode.ClientID)
	if err != nil {
		s.Logger.Error("Failed to revoke tokens after code reuse",
			"client_id", authCode.ClientID,
			"error", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogCodeReuse(authCode.UserID, authCode.ClientID, revoked)
	}
	if m := s.metrics(); m != nil {
		m.RecordCodeReuseDetected(ctx)
		m.RecordTokenRevoked(ctx, int64(revoked))
	}
	s.Logger.Warn("Authorization code reuse detected",
		"client_id", authCode.ClientID,
		"tokens_revoked", revoked)
}

// IssueDirectToken creates a named long-lived token for a logged-in user,
// bypassing the redirect flow. At most one unrevoked direct token may exist
// per (user, name); the conflict check is atomic in the store.
func (s *Server) IssueDirectToken(ctx context.Context, userID, name, scope string) (string, *storage.Token, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("%s: no authenticated user", ErrorCodeAccessDenied)
	}
	if name == "" {
		return "", nil, fmt.Errorf("%s: token name is required", ErrorCodeInvalidRequest)
	}

	raw := generateRandomToken()
	now := time.Now()
	token := &storage.Token{
		ID:           uuid.NewString(),
		TokenHash:    hashToken(raw),
		TokenPreview: tokenPreview(raw),
		UserID:       userID,
		ClientName:   name,
		Direct:       true,
		Scope:        scope,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(s.Config.DirectTokenTTL) * time.Second),
	}

	if err := s.TokenStore.CreateDirectToken(ctx, token); err != nil {
		if errors.Is(err, storage.ErrDirectTokenExists) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("%s: failed to create token: %w", ErrorCodeServerError, err)
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(userID, "", name, true)
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenIssued(ctx, true)
	}
	s.Logger.Info("Issued direct token",
		"name", name,
		"user_hash", security.HashIdentifier(userID))

	return raw, token, nil
}

// RevokeToken revokes one token owned by the user.
func (s *Server) RevokeToken(ctx context.Context, userID, tokenID string) error {
	if err := s.TokenStore.RevokeToken(ctx, tokenID, userID); err != nil {
		return err
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenRevoked(userID, tokenID)
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenRevoked(ctx, 1)
	}
	return nil
}

// RevokeAllTokens revokes every live token of the user and returns the
// count.
func (s *Server) RevokeAllTokens(ctx context.Context, userID string) (int, error) {
	count, err := s.TokenStore.RevokeAllTokensForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	if s.Auditor != nil {
		s.Auditor.LogAllTokensRevoked(userID, count)
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenRevoked(ctx, int64(count))
	}
	return count, nil
}

// ValidateAccessToken resolves a presented bearer value and updates its
// last-used timestamp. Revoked, expired, and unknown tokens all come back
// as storage.ErrTokenNotFound or storage.ErrTokenExpired.
func (s *Server) ValidateAccessToken(ctx context.Context, raw string) (*storage.Token, error) {
	if raw == "" {
		return nil, storage.ErrTokenNotFound
	}

	token, err := s.TokenStore.GetTokenByHash(ctx, hashToken(raw))
	if err != nil {
		if m := s.metrics(); m != nil {
			m.RecordTokenValidated(ctx, false)
		}
		return nil, err
	}

	if err := s.TokenStore.TouchToken(ctx, token.ID, time.Now()); err != nil {
		// validation already succeeded, a failed touch only costs freshness
		s.Logger.Warn("Failed to update token last-used timestamp", "token_id", token.ID, "error", err)
	}

	if m := s.metrics(); m != nil {
		m.RecordTokenValidated(ctx, true)
	}
	return token, nil
}

// ListTokens returns the user's tokens for a management surface. Hashes are
// blanked; only previews leave the server.
func (s *Server) ListTokens(ctx context.Context, userID string) ([]*storage.Token, error) {
	tokens, err := s.TokenStore.ListTokensForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list tokens: %w", ErrorCodeServerError, err)
	}
	for _, t := range tokens {
		t.TokenHash = ""
	}
	return tokens, nil
}

func invalidGrant() error {
	return fmt.Errorf("%s: invalid grant", ErrorCodeInvalidGrant)
}
