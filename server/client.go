package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
)

// Client types.
const (
	ClientTypePublic       = "public"
	ClientTypeConfidential = "confidential"
)

// Token endpoint auth methods.
const (
	TokenEndpointAuthMethodNone  = "none"
	TokenEndpointAuthMethodBasic = "client_secret_basic"
	TokenEndpointAuthMethodPost  = "client_secret_post"
)

// RegistrationRequest carries the RFC 7591 fields this server supports.
type RegistrationRequest struct {
	ClientName              string
	ClientType              string
	TokenEndpointAuthMethod string
	RedirectURIs            []string
	Scopes                  []string
}

// RegisterClient registers a new OAuth client. The returned secret is empty
// for public clients; for confidential clients it is returned exactly once
// and only its bcrypt hash is stored.
func (s *Server) RegisterClient(ctx context.Context, req RegistrationRequest, clientIP string) (*storage.Client, string, error) {
	if err := s.ClientStore.CheckIPLimit(ctx, clientIP, s.Config.MaxClientsPerIP); err != nil {
		if errors.Is(err, storage.ErrClientLimitReached) {
			return nil, "", fmt.Errorf("%s: too many clients registered from this address", ErrorCodeInvalidRequest)
		}
		return nil, "", fmt.Errorf("%s: %w", ErrorCodeServerError, err)
	}

	if len(req.RedirectURIs) == 0 {
		return nil, "", fmt.Errorf("%s: at least one redirect URI is required", ErrorCodeInvalidRequest)
	}
	for _, uri := range req.RedirectURIs {
		if err := s.validateRedirectURIScheme(uri); err != nil {
			return nil, "", err
		}
	}

	clientType := req.ClientType
	if clientType == "" {
		clientType = ClientTypePublic
	}
	if clientType != ClientTypePublic && clientType != ClientTypeConfidential {
		return nil, "", fmt.Errorf("%s: unknown client type", ErrorCodeInvalidRequest)
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		if clientType == ClientTypePublic {
			authMethod = TokenEndpointAuthMethodNone
		} else {
			authMethod = TokenEndpointAuthMethodBasic
		}
	}
	switch authMethod {
	case TokenEndpointAuthMethodNone, TokenEndpointAuthMethodBasic, TokenEndpointAuthMethodPost:
	default:
		return nil, "", fmt.Errorf("%s: unsupported token endpoint auth method", ErrorCodeInvalidRequest)
	}
	if clientType == ClientTypePublic && authMethod != TokenEndpointAuthMethodNone {
		return nil, "", fmt.Errorf("%s: public clients must use auth method none", ErrorCodeInvalidRequest)
	}

	client := &storage.Client{
		ClientID:                generateRandomToken(),
		ClientType:              clientType,
		RedirectURIs:            req.RedirectURIs,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              []string{"authorization_code"},
		ResponseTypes:           []string{"code"},
		ClientName:              req.ClientName,
		Scopes:                  req.Scopes,
		CreatedAt:               time.Now(),
	}

	var secret string
	if clientType == ClientTypeConfidential {
		secret = generateRandomToken()
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", fmt.Errorf("%s: failed to hash client secret: %w", ErrorCodeServerError, err)
		}
		client.ClientSecretHash = string(hash)
	}

	if err := s.ClientStore.SaveClient(ctx, client); err != nil {
		return nil, "", fmt.Errorf("%s: failed to save client: %w", ErrorCodeServerError, err)
	}

	if s.Auditor != nil {
		s.Auditor.LogClientRegistered(client.ClientID, clientType, clientIP)
	}
	if m := s.metrics(); m != nil {
		m.RecordClientRegistration(ctx, clientType)
	}
	s.Logger.Info("Registered client",
		"client_id", client.ClientID,
		"client_type", clientType,
		"redirect_uris", len(client.RedirectURIs))

	return client, secret, nil
}

// GetClient loads a client by ID.
func (s *Server) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	client, err := s.ClientStore.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, fmt.Errorf("%s: unknown client", ErrorCodeInvalidClient)
		}
		return nil, fmt.Errorf("%s: %w", ErrorCodeServerError, err)
	}
	return client, nil
}
