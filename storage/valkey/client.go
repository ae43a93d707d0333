package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
)

// dummyBcryptHash keeps validation timing uniform when the client does not
// exist.
const dummyBcryptHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// clientJSON is the wire form of a registered client.
type clientJSON struct {
	ClientID                string   `json:"client_id"`
	ClientSecretHash        string   `json:"client_secret_hash,omitempty"`
	ClientType              string   `json:"client_type"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	Scopes                  []string `json:"scopes,omitempty"`
	CreatedAt               int64    `json:"created_at"`
}

func toClientJSON(c *storage.Client) *clientJSON {
	return &clientJSON{
		ClientID:                c.ClientID,
		ClientSecretHash:        c.ClientSecretHash,
		ClientType:              c.ClientType,
		RedirectURIs:            c.RedirectURIs,
		TokenEndpointAuthMethod: c.TokenEndpointAuthMethod,
		GrantTypes:              c.GrantTypes,
		ResponseTypes:           c.ResponseTypes,
		ClientName:              c.ClientName,
		Scopes:                  c.Scopes,
		CreatedAt:               c.CreatedAt.Unix(),
	}
}

func fromClientJSON(j *clientJSON) *storage.Client {
	return &storage.Client{
		ClientID:                j.ClientID,
		ClientSecretHash:        j.ClientSecretHash,
		ClientType:              j.ClientType,
		RedirectURIs:            j.RedirectURIs,
		TokenEndpointAuthMethod: j.TokenEndpointAuthMethod,
		GrantTypes:              j.GrantTypes,
		ResponseTypes:           j.ResponseTypes,
		ClientName:              j.ClientName,
		Scopes:                  j.Scopes,
		CreatedAt:               time.Unix(j.CreatedAt, 0),
	}
}

// SaveClient persists a registered client. Client records do not expire.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	data, err := json.Marshal(toClientJSON(client))
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.clientKey(client.ClientID)).Value(string(data)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.clientKey(clientID)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	var j clientJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}
	return fromClientJSON(&j), nil
}

// ValidateClientSecret checks a client secret. The bcrypt comparison runs
// whether or not the client exists, so lookups cannot be distinguished by
// timing.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	client, err := s.GetClient(ctx, clientID)

	hashToCompare := dummyBcryptHash
	isPublic := false
	if err == nil {
		if client.ClientType == "public" {
			isPublic = true
		} else if client.ClientSecretHash != "" {
			hashToCompare = client.ClientSecretHash
		}
	}

	bcryptErr := bcrypt.CompareHashAndPassword([]byte(hashToCompare), []byte(clientSecret))

	if err == nil && isPublic {
		return nil
	}
	if err != nil || bcryptErr != nil {
		// generic on purpose: do not reveal whether the client exists
		return fmt.Errorf("invalid client credentials")
	}
	return nil
}

// CheckIPLimit enforces the per-IP registration cap and counts the
// registration. The counter ages out after ipTrackingTTL.
func (s *Store) CheckIPLimit(ctx context.Context, ip string, maxClients int) error {
	if maxClients <= 0 {
		return nil
	}

	key := s.clientIPKey(ip)
	count, err := s.client.Do(ctx, s.client.B().Incr().Key(key).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to count registrations for ip: %w", err)
	}
	if count == 1 {
		if err := s.client.Do(ctx,
			s.client.B().Expire().Key(key).Seconds(int64(ipTrackingTTL.Seconds())).Build(),
		).Error(); err != nil {
			return fmt.Errorf("failed to expire ip counter: %w", err)
		}
	}
	if count > int64(maxClients) {
		return storage.ErrClientLimitReached
	}
	return nil
}
