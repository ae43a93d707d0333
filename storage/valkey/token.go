package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/security"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
)

// tokenJSON is the wire form of a token record.
type tokenJSON struct {
	ID           string `json:"id"`
	TokenHash    string `json:"token_hash"`
	TokenPreview string `json:"token_preview"`
	UserID       string `json:"user_id"`
	ClientID     string `json:"client_id,omitempty"`
	ClientName   string `json:"client_name,omitempty"`
	Direct       bool   `json:"direct,omitempty"`
	Scope        string `json:"scope,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	ExpiresAt    int64  `json:"expires_at"`
	LastUsedAt   int64  `json:"last_used_at,omitempty"`
	Revoked      bool   `json:"revoked,omitempty"`
}

func toTokenJSON(t *storage.Token) *tokenJSON {
	j := &tokenJSON{
		ID:           t.ID,
		TokenHash:    t.TokenHash,
		TokenPreview: t.TokenPreview,
		UserID:       t.UserID,
		ClientID:     t.ClientID,
		ClientName:   t.ClientName,
		Direct:       t.Direct,
		Scope:        t.Scope,
		CreatedAt:    t.CreatedAt.Unix(),
		ExpiresAt:    t.ExpiresAt.Unix(),
		Revoked:      t.Revoked,
	}
	if !t.LastUsedAt.IsZero() {
		j.LastUsedAt = t.LastUsedAt.Unix()
	}
	return j
}

func fromTokenJSON(j *tokenJSON) *storage.Token {
	t := &storage.Token{
		ID:           j.ID,
		TokenHash:    j.TokenHash,
		TokenPreview: j.TokenPreview,
		UserID:       j.UserID,
		ClientID:     j.ClientID,
		ClientName:   j.ClientName,
		Direct:       j.Direct,
		Scope:        j.Scope,
		CreatedAt:    time.Unix(j.CreatedAt, 0),
		ExpiresAt:    time.Unix(j.ExpiresAt, 0),
		Revoked:      j.Revoked,
	}
	if j.LastUsedAt > 0 {
		t.LastUsedAt = time.Unix(j.LastUsedAt, 0)
	}
	return t
}

// luaCreateDirectToken reserves the (user, name) slot unless a live
// unrevoked direct token already holds it. KEYS[1] is the slot key, KEYS[2]
// the token record key prefix is passed via ARGV to look up the holder.
// Runs atomically server-side, which is what makes the uniqueness hold
// across instances.
const luaCreateDirectToken = `
local slot = redis.call('GET', KEYS[1])
if slot then
  local existing = redis.call('GET', ARGV[3] .. slot)
  if existing then
    local tok = cjson.decode(existing)
    if not tok.revoked then
      return 'EXISTS'
    end
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
return 'OK'
`

// SaveToken stores a flow-issued token with its hash index.
func (s *Store) SaveToken(ctx context.Context, token *storage.Token) error {
	if token == nil || token.ID == "" || token.TokenHash == "" {
		return fmt.Errorf("invalid token")
	}

	ttl := calculateTTL(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("token already expired")
	}

	data, err := json.Marshal(toTokenJSON(token))
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.tokenKey(token.ID)).Value(string(data)).Ex(ttl).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.tokenHashKey(token.TokenHash)).Value(token.ID).Ex(ttl).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save token hash index: %w", err)
	}
	if err := s.client.Do(ctx,
		s.client.B().Sadd().Key(s.userTokensKey(token.UserID)).Member(token.ID).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to index token for user: %w", err)
	}

	s.logger.Debug("Saved token", "token_id", token.ID)
	return nil
}

// CreateDirectToken stores a direct token after atomically reserving its
// (user, name) slot.
func (s *Store) CreateDirectToken(ctx context.Context, token *storage.Token) error {
	if token == nil || token.ID == "" || token.TokenHash == "" {
		return fmt.Errorf("invalid token")
	}
	if token.UserID == "" || token.ClientName == "" {
		return fmt.Errorf("direct token requires user and name")
	}

	ttl := calculateTTL(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("token already expired")
	}

	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaCreateDirectToken).
			Numkeys(1).
			Key(s.directTokenKey(token.UserID, token.ClientName)).
			Arg(token.ID).
			Arg(fmt.Sprintf("%d", int64(ttl.Seconds()))).
			Arg(s.tokenKey("")).
			Build(),
	).ToString()
	if err != nil {
		return fmt.Errorf("failed to reserve direct token slot: %w", err)
	}
	if result == "EXISTS" {
		return storage.ErrDirectTokenExists
	}

	token.Direct = true
	return s.SaveToken(ctx, token)
}

// GetTokenByHash resolves a token through the hash index.
func (s *Store) GetTokenByHash(ctx context.Context, hash string) (*storage.Token, error) {
	id, err := s.client.Do(ctx, s.client.B().Get().Key(s.tokenHashKey(hash)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to resolve token hash: %w", err)
	}

	token, err := s.getToken(ctx, id)
	if err != nil {
		return nil, err
	}
	if token.Revoked {
		return nil, storage.ErrTokenNotFound
	}
	if security.IsExpired(token.ExpiresAt) {
		return nil, fmt.Errorf("%w: token expired", storage.ErrTokenExpired)
	}
	return token, nil
}

// TouchToken updates the last-used timestamp, keeping the remaining TTL.
func (s *Store) TouchToken(ctx context.Context, id string, when time.Time) error {
	token, err := s.getToken(ctx, id)
	if err != nil {
		return err
	}
	token.LastUsedAt = when
	return s.writeToken(ctx, token)
}

// RevokeToken revokes one token, scoped to its owner.
func (s *Store) RevokeToken(ctx context.Context, id, userID string) error {
	token, err := s.getToken(ctx, id)
	if err != nil {
		return err
	}
	if token.UserID != userID || token.Revoked {
		return storage.ErrTokenNotFound
	}

	token.Revoked = true
	if err := s.writeToken(ctx, token); err != nil {
		return err
	}

	s.logger.Debug("Revoked token", "token_id", id)
	return nil
}

// RevokeAllTokensForUser revokes every live token of a user.
func (s *Store) RevokeAllTokensForUser(ctx context.Context, userID string) (int, error) {
	return s.revokeWhere(ctx, userID, func(*storage.Token) bool { return true })
}

// RevokeTokensForUserClient revokes the user's live tokens for one client.
func (s *Store) RevokeTokensForUserClient(ctx context.Context, userID, clientID string) (int, error) {
	return s.revokeWhere(ctx, userID, func(t *storage.Token) bool {
		return t.ClientID == clientID
	})
}

// ListTokensForUser returns the user's surviving token records.
func (s *Store) ListTokensForUser(ctx context.Context, userID string) ([]*storage.Token, error) {
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.userTokensKey(userID)).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list user tokens: %w", err)
	}

	var out []*storage.Token
	for _, id := range ids {
		token, err := s.getToken(ctx, id)
		if err != nil {
			if isExpectedMiss(err) {
				// record expired out from under the index
				continue
			}
			return nil, err
		}
		out = append(out, token)
	}
	return out, nil
}

func (s *Store) revokeWhere(ctx context.Context, userID string, match func(*storage.Token) bool) (int, error) {
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.userTokensKey(userID)).Build()).AsStrSlice()
	if err != nil {
		return 0, fmt.Errorf("failed to list user tokens: %w", err)
	}

	count := 0
	for _, id := range ids {
		token, err := s.getToken(ctx, id)
		if err != nil {
			if isExpectedMiss(err) {
				continue
			}
			return count, err
		}
		if token.Revoked || !match(token) {
			continue
		}
		token.Revoked = true
		if err := s.writeToken(ctx, token); err != nil {
			return count, err
		}
		count++
	}

	s.logger.Debug("Revoked tokens for user", "count", count)
	return count, nil
}

func (s *Store) getToken(ctx context.Context, id string) (*storage.Token, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.tokenKey(id)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var j tokenJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return fromTokenJSON(&j), nil
}

// writeToken rewrites a token record preserving its remaining lifetime.
// Revoked records keep living until expiry so revocation cannot be undone
// by the hash index pointing at a vanished record.
func (s *Store) writeToken(ctx context.Context, token *storage.Token) error {
	ttl := calculateTTL(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: token expired", storage.ErrTokenExpired)
	}

	data, err := json.Marshal(toTokenJSON(token))
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.tokenKey(token.ID)).Value(string(data)).Ex(ttl).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}
