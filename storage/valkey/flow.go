package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
)

// authorizationCodeJSON is the wire form of an authorization code record.
type authorizationCodeJSON struct {
	Code                string `json:"code"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	UserID              string `json:"user_id"`
	CreatedAt           int64  `json:"created_at"`
	ExpiresAt           int64  `json:"expires_at"`
	Used                bool   `json:"used,omitempty"`
}

func toCodeJSON(c *storage.AuthorizationCode) *authorizationCodeJSON {
	return &authorizationCodeJSON{
		Code:                c.Code,
		ClientID:            c.ClientID,
		RedirectURI:         c.RedirectURI,
		Scope:               c.Scope,
		CodeChallenge:       c.CodeChallenge,
		CodeChallengeMethod: c.CodeChallengeMethod,
		UserID:              c.UserID,
		CreatedAt:           c.CreatedAt.Unix(),
		ExpiresAt:           c.ExpiresAt.Unix(),
		Used:                c.Used,
	}
}

func fromCodeJSON(j *authorizationCodeJSON) *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		Code:                j.Code,
		ClientID:            j.ClientID,
		RedirectURI:         j.RedirectURI,
		Scope:               j.Scope,
		CodeChallenge:       j.CodeChallenge,
		CodeChallengeMethod: j.CodeChallengeMethod,
		UserID:              j.UserID,
		CreatedAt:           time.Unix(j.CreatedAt, 0),
		ExpiresAt:           time.Unix(j.ExpiresAt, 0),
		Used:                j.Used,
	}
}

// luaConsumeAuthCode checks and marks an authorization code used in one
// server-side step. Exactly one caller ever gets the unused record back,
// no matter how many instances race on the same code. ARGV[1] is the
// current unix time.
const luaConsumeAuthCode = `
local data = redis.call('GET', KEYS[1])
if not data then
  return 'NOT_FOUND'
end
local code = cjson.decode(data)
if tonumber(ARGV[1]) >= code.expires_at then
  redis.call('DEL', KEYS[1])
  return 'EXPIRED'
end
if code.used then
  return 'ALREADY_USED:' .. data
end
code.used = true
local ttl = redis.call('TTL', KEYS[1])
if ttl > 0 then
  redis.call('SET', KEYS[1], cjson.encode(code), 'EX', ttl)
else
  redis.call('SET', KEYS[1], cjson.encode(code))
end
return data
`

// SaveAuthorizationCode stores a freshly issued code.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	ttl := calculateTTL(code.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization code already expired")
	}

	data, err := json.Marshal(toCodeJSON(code))
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.codeKey(code.Code)).Value(string(data)).Ex(ttl).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code", "client_id", code.ClientID)
	return nil
}

// ConsumeAuthorizationCode atomically marks a code used. Under concurrent
// redemption exactly one caller gets the record back without error; later
// callers get the record with ErrAuthorizationCodeUsed so they can run
// reuse containment.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaConsumeAuthCode).
			Numkeys(1).
			Key(s.codeKey(code)).
			Arg(fmt.Sprintf("%d", time.Now().Unix())).
			Build(),
	).ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	switch {
	case result == "NOT_FOUND":
		return nil, storage.ErrAuthorizationCodeNotFound
	case result == "EXPIRED":
		return nil, fmt.Errorf("%w: authorization code expired", storage.ErrTokenExpired)
	case strings.HasPrefix(result, "ALREADY_USED:"):
		var j authorizationCodeJSON
		if err := json.Unmarshal([]byte(strings.TrimPrefix(result, "ALREADY_USED:")), &j); err != nil {
			return nil, fmt.Errorf("failed to unmarshal used authorization code: %w", err)
		}
		return fromCodeJSON(&j), storage.ErrAuthorizationCodeUsed
	}

	var j authorizationCodeJSON
	if err := json.Unmarshal([]byte(result), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}
	return fromCodeJSON(&j), nil
}

// DeleteAuthorizationCode removes a code record.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.codeKey(code)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete authorization code: %w", err)
	}
	return nil
}
