// Package memory provides an in-memory storage backend. It is the default
// backend for single-instance deployments and for tests. All mutating
// operations take the write lock, which is what makes the single-use code
// consumption and the direct-token uniqueness check atomic.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/instrumentation"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/security"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
)

// DefaultCleanupInterval is how often expired records are purged.
const DefaultCleanupInterval = time.Minute

// dummyBcryptHash is compared against when a client does not exist, so
// secret validation takes the same time either way.
const dummyBcryptHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Config holds options for the in-memory store.
type Config struct {
	// CleanupInterval overrides DefaultCleanupInterval when positive
	CleanupInterval time.Duration

	// Logger for store diagnostics; slog.Default is used when nil
	Logger *slog.Logger

	// Instrumentation records storage operation metrics when set
	Instrumentation *instrumentation.Instrumentation
}

// Store is the in-memory implementation of storage.Store.
type Store struct {
	mu sync.RWMutex

	tokens       map[string]*storage.Token // keyed by token ID
	tokensByHash map[string]string         // token hash -> token ID
	clients      map[string]*storage.Client
	clientsPerIP map[string]int
	authCodes    map[string]*storage.AuthorizationCode

	logger *slog.Logger
	inst   *instrumentation.Instrumentation

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	tokensIssued      atomic.Int64
	tokensRevoked     atomic.Int64
	codesConsumed     atomic.Int64
	codeReuseAttempts atomic.Int64
}

var _ storage.Store = (*Store)(nil)

// New creates a Store and starts its cleanup goroutine. Call Stop when done.
func New(cfg Config) *Store {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Store{
		tokens:          make(map[string]*storage.Token),
		tokensByHash:    make(map[string]string),
		clients:         make(map[string]*storage.Client),
		clientsPerIP:    make(map[string]int),
		authCodes:       make(map[string]*storage.AuthorizationCode),
		logger:          cfg.Logger.With("component", "storage.memory"),
		inst:            cfg.Instrumentation,
		cleanupInterval: cfg.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Stop terminates the cleanup goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// HealthCheck implements storage.Store. The in-memory backend is always
// reachable.
func (s *Store) HealthCheck(context.Context) error {
	return nil
}

// ---- TokenStore ----

// SaveToken stores a flow-issued token record.
func (s *Store) SaveToken(ctx context.Context, token *storage.Token) error {
	defer s.recordOp(ctx, "save_token", time.Now())

	if token == nil || token.ID == "" || token.TokenHash == "" {
		return fmt.Errorf("invalid token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *token
	s.tokens[cp.ID] = &cp
	s.tokensByHash[cp.TokenHash] = cp.ID
	s.tokensIssued.Add(1)

	s.logger.Debug("Saved token", "token_id", token.ID, "direct", token.Direct)
	return nil
}

// CreateDirectToken stores a direct token, enforcing at most one unrevoked
// direct token per (user, name) under the write lock.
func (s *Store) CreateDirectToken(ctx context.Context, token *storage.Token) error {
	defer s.recordOp(ctx, "create_direct_token", time.Now())

	if token == nil || token.ID == "" || token.TokenHash == "" {
		return fmt.Errorf("invalid token")
	}
	if token.UserID == "" || token.ClientName == "" {
		return fmt.Errorf("direct token requires user and name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tokens {
		if existing.Direct && !existing.Revoked &&
			existing.UserID == token.UserID && existing.ClientName == token.ClientName &&
			!security.IsExpired(existing.ExpiresAt) {
			return storage.ErrDirectTokenExists
		}
	}

	cp := *token
	cp.Direct = true
	s.tokens[cp.ID] = &cp
	s.tokensByHash[cp.TokenHash] = cp.ID
	s.tokensIssued.Add(1)

	s.logger.Debug("Created direct token", "token_id", token.ID, "name", token.ClientName)
	return nil
}

// GetTokenByHash resolves a presented token value by its hash.
func (s *Store) GetTokenByHash(ctx context.Context, hash string) (*storage.Token, error) {
	defer s.recordOp(ctx, "get_token", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokensByHash[hash]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	token, ok := s.tokens[id]
	if !ok || token.Revoked {
		return nil, storage.ErrTokenNotFound
	}
	if security.IsExpired(token.ExpiresAt) {
		return nil, fmt.Errorf("%w: token expired", storage.ErrTokenExpired)
	}

	cp := *token
	return &cp, nil
}

// TouchToken updates the last-used timestamp.
func (s *Store) TouchToken(ctx context.Context, id string, when time.Time) error {
	defer s.recordOp(ctx, "touch_token", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok {
		return storage.ErrTokenNotFound
	}
	token.LastUsedAt = when
	return nil
}

// RevokeToken revokes one token, scoped to its owner.
func (s *Store) RevokeToken(ctx context.Context, id, userID string) error {
	defer s.recordOp(ctx, "revoke_token", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok || token.UserID != userID || token.Revoked {
		return storage.ErrTokenNotFound
	}
	token.Revoked = true
	s.tokensRevoked.Add(1)

	s.logger.Debug("Revoked token", "token_id", id)
	return nil
}

// RevokeAllTokensForUser revokes every live token of a user.
func (s *Store) RevokeAllTokensForUser(ctx context.Context, userID string) (int, error) {
	defer s.recordOp(ctx, "revoke_all_tokens", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, token := range s.tokens {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			count++
		}
	}
	s.tokensRevoked.Add(int64(count))

	s.logger.Debug("Revoked all tokens for user", "count", count)
	return count, nil
}

// RevokeTokensForUserClient revokes the live tokens a user holds for one
// client.
func (s *Store) RevokeTokensForUserClient(ctx context.Context, userID, clientID string) (int, error) {
	defer s.recordOp(ctx, "revoke_user_client_tokens", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, token := range s.tokens {
		if token.UserID == userID && token.ClientID == clientID && !token.Revoked {
			token.Revoked = true
			count++
		}
	}
	s.tokensRevoked.Add(int64(count))

	s.logger.Debug("Revoked user-client tokens", "client_id", clientID, "count", count)
	return count, nil
}

// ListTokensForUser returns copies of the user's token records, newest
// first.
func (s *Store) ListTokensForUser(ctx context.Context, userID string) ([]*storage.Token, error) {
	defer s.recordOp(ctx, "list_tokens", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.Token
	for _, token := range s.tokens {
		if token.UserID == userID {
			cp := *token
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ---- ClientStore ----

// SaveClient stores a registered client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	defer s.recordOp(ctx, "save_client", time.Now())

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *client
	s.clients[cp.ClientID] = &cp

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	defer s.recordOp(ctx, "get_client", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	cp := *client
	return &cp, nil
}

// ValidateClientSecret checks a client secret. The bcrypt comparison runs
// whether or not the client exists, so lookups cannot be distinguished by
// timing.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	defer s.recordOp(ctx, "validate_client_secret", time.Now())

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
// registration.
func (s *Store) CheckIPLimit(ctx context.Context, ip string, maxClients int) error {
	defer s.recordOp(ctx, "check_ip_limit", time.Now())

	if maxClients <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clientsPerIP[ip] >= maxClients {
		return storage.ErrClientLimitReached
	}
	s.clientsPerIP[ip]++
	return nil
}

// ---- FlowStore ----

// SaveAuthorizationCode stores a freshly issued code.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	defer s.recordOp(ctx, "save_auth_code", time.Now())

	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *code
	s.authCodes[cp.Code] = &cp

	s.logger.Debug("Saved authorization code", "client_id", code.ClientID)
	return nil
}

// ConsumeAuthorizationCode atomically marks a code used. Under concurrent
// redemption exactly one caller gets the record back without error; later
// callers get the record with ErrAuthorizationCodeUsed so they can run
// reuse containment.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	defer s.recordOp(ctx, "consume_auth_code", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	authCode, ok := s.authCodes[code]
	if !ok {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	if security.IsExpired(authCode.ExpiresAt) {
		delete(s.authCodes, code)
		return nil, fmt.Errorf("%w: authorization code expired", storage.ErrTokenExpired)
	}
	if authCode.Used {
		s.codeReuseAttempts.Add(1)
		cp := *authCode
		return &cp, storage.ErrAuthorizationCodeUsed
	}

	authCode.Used = true
	s.codesConsumed.Add(1)

	cp := *authCode
	return &cp, nil
}

// DeleteAuthorizationCode removes a code record.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	defer s.recordOp(ctx, "delete_auth_code", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.authCodes, code)
	return nil
}

// ---- internals ----

// Stats reports operation counters, used by tests and debug endpoints.
type Stats struct {
	TokensIssued      int64
	TokensRevoked     int64
	CodesConsumed     int64
	CodeReuseAttempts int64
}

// Stats returns a snapshot of the store's counters.
func (s *Store) Stats() Stats {
	return Stats{
		TokensIssued:      s.tokensIssued.Load(),
		TokensRevoked:     s.tokensRevoked.Load(),
		CodesConsumed:     s.codesConsumed.Load(),
		CodeReuseAttempts: s.codeReuseAttempts.Load(),
	}
}

func (s *Store) recordOp(ctx context.Context, op string, start time.Time) {
	if s.inst == nil {
		return
	}
	s.inst.Metrics().RecordStorageOperation(ctx, op, "ok", float64(time.Since(start).Milliseconds()))
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// cleanupExpired drops expired codes and expired token records. Revoked
// tokens are kept until expiry so a revocation cannot be undone by reissue.
func (s *Store) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removedCodes := 0
	for code, authCode := range s.authCodes {
		if now.After(authCode.ExpiresAt.Add(security.DefaultClockSkewGracePeriod)) {
			delete(s.authCodes, code)
			removedCodes++
		}
	}

	removedTokens := 0
	for id, token := range s.tokens {
		if !token.ExpiresAt.IsZero() && now.After(token.ExpiresAt.Add(security.DefaultClockSkewGracePeriod)) {
			delete(s.tokensByHash, token.TokenHash)
			delete(s.tokens, id)
			removedTokens++
		}
	}

	if removedCodes > 0 || removedTokens > 0 {
		s.logger.Debug("Cleaned up expired records",
			"codes", removedCodes,
			"tokens", removedTokens)
	}
}
