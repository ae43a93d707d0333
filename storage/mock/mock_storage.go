// Package mock provides a storage.Store test double. It delegates to a real
// in-memory store by default; individual operations can be overridden with
// Func fields to inject failures, and every call is counted.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage/memory"
)

// Store wraps a memory.Store with per-operation overrides and call counting.
type Store struct {
	backing *memory.Store

	mu         sync.Mutex
	callCounts map[string]int

	SaveTokenFunc                 func(ctx context.Context, token *storage.Token) error
	CreateDirectTokenFunc         func(ctx context.Context, token *storage.Token) error
	GetTokenByHashFunc            func(ctx context.Context, hash string) (*storage.Token, error)
	TouchTokenFunc                func(ctx context.Context, id string, when time.Time) error
	RevokeTokenFunc               func(ctx context.Context, id, userID string) error
	RevokeAllTokensForUserFunc    func(ctx context.Context, userID string) (int, error)
	RevokeTokensForUserClientFunc func(ctx context.Context, userID, clientID string) (int, error)
	ListTokensForUserFunc         func(ctx context.Context, userID string) ([]*storage.Token, error)

	SaveClientFunc           func(ctx context.Context, client *storage.Client) error
	GetClientFunc            func(ctx context.Context, clientID string) (*storage.Client, error)
	ValidateClientSecretFunc func(ctx context.Context, clientID, clientSecret string) error
	CheckIPLimitFunc         func(ctx context.Context, ip string, maxClients int) error

	SaveAuthorizationCodeFunc    func(ctx context.Context, code *storage.AuthorizationCode) error
	ConsumeAuthorizationCodeFunc func(ctx context.Context, code string) (*storage.AuthorizationCode, error)
	DeleteAuthorizationCodeFunc  func(ctx context.Context, code string) error

	HealthCheckFunc func(ctx context.Context) error
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a mock store backed by a fresh memory store.
func NewStore() *Store {
	return &Store{
		backing:    memory.New(memory.Config{}),
		callCounts: make(map[string]int),
	}
}

func (s *Store) count(op string) {
	s.mu.Lock()
	s.callCounts[op]++
	s.mu.Unlock()
}

// CallCount returns how often an operation was invoked.
func (s *Store) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCounts[op]
}

// ResetCallCounts clears all call counters.
func (s *Store) ResetCallCounts() {
	s.mu.Lock()
	s.callCounts = make(map[string]int)
	s.mu.Unlock()
}

func (s *Store) SaveToken(ctx context.Context, token *storage.Token) error {
	s.count("SaveToken")
	if s.SaveTokenFunc != nil {
		return s.SaveTokenFunc(ctx, token)
	}
	return s.backing.SaveToken(ctx, token)
}

func (s *Store) CreateDirectToken(ctx context.Context, token *storage.Token) error {
	s.count("CreateDirectToken")
	if s.CreateDirectTokenFunc != nil {
		return s.CreateDirectTokenFunc(ctx, token)
	}
	return s.backing.CreateDirectToken(ctx, token)
}

func (s *Store) GetTokenByHash(ctx context.Context, hash string) (*storage.Token, error) {
	s.count("GetTokenByHash")
	if s.GetTokenByHashFunc != nil {
		return s.GetTokenByHashFunc(ctx, hash)
	}
	return s.backing.GetTokenByHash(ctx, hash)
}

func (s *Store) TouchToken(ctx context.Context, id string, when time.Time) error {
	s.count("TouchToken")
	if s.TouchTokenFunc != nil {
		return s.TouchTokenFunc(ctx, id, when)
	}
	return s.backing.TouchToken(ctx, id, when)
}

func (s *Store) RevokeToken(ctx context.Context, id, userID string) error {
	s.count("RevokeToken")
	if s.RevokeTokenFunc != nil {
		return s.RevokeTokenFunc(ctx, id, userID)
	}
	return s.backing.RevokeToken(ctx, id, userID)
}

func (s *Store) RevokeAllTokensForUser(ctx context.Context, userID string) (int, error) {
	s.count("RevokeAllTokensForUser")
	if s.RevokeAllTokensForUserFunc != nil {
		return s.RevokeAllTokensForUserFunc(ctx, userID)
	}
	return s.backing.RevokeAllTokensForUser(ctx, userID)
}

func (s *Store) RevokeTokensForUserClient(ctx context.Context, userID, clientID string) (int, error) {
	s.count("RevokeTokensForUserClient")
	if s.RevokeTokensForUserClientFunc != nil {
		return s.RevokeTokensForUserClientFunc(ctx, userID, clientID)
	}
	return s.backing.RevokeTokensForUserClient(ctx, userID, clientID)
}

func (s *Store) ListTokensForUser(ctx context.Context, userID string) ([]*storage.Token, error) {
	s.count("ListTokensForUser")
	if s.ListTokensForUserFunc != nil {
		return s.ListTokensForUserFunc(ctx, userID)
	}
	return s.backing.ListTokensForUser(ctx, userID)
}

func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	s.count("SaveClient")
	if s.SaveClientFunc != nil {
		return s.SaveClientFunc(ctx, client)
	}
	return s.backing.SaveClient(ctx, client)
}

func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	s.count("GetClient")
	if s.GetClientFunc != nil {
		return s.GetClientFunc(ctx, clientID)
	}
	return s.backing.GetClient(ctx, clientID)
}

func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	s.count("ValidateClientSecret")
	if s.ValidateClientSecretFunc != nil {
		return s.ValidateClientSecretFunc(ctx, clientID, clientSecret)
	}
	return s.backing.ValidateClientSecret(ctx, clientID, clientSecret)
}

func (s *Store) CheckIPLimit(ctx context.Context, ip string, maxClients int) error {
	s.count("CheckIPLimit")
	if s.CheckIPLimitFunc != nil {
		return s.CheckIPLimitFunc(ctx, ip, maxClients)
	}
	return s.backing.CheckIPLimit(ctx, ip, maxClients)
}

func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	s.count("SaveAuthorizationCode")
	if s.SaveAuthorizationCodeFunc != nil {
		return s.SaveAuthorizationCodeFunc(ctx, code)
	}
	return s.backing.SaveAuthorizationCode(ctx, code)
}

func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	s.count("ConsumeAuthorizationCode")
	if s.ConsumeAuthorizationCodeFunc != nil {
		return s.ConsumeAuthorizationCodeFunc(ctx, code)
	}
	return s.backing.ConsumeAuthorizationCode(ctx, code)
}

func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	s.count("DeleteAuthorizationCode")
	if s.DeleteAuthorizationCodeFunc != nil {
		return s.DeleteAuthorizationCodeFunc(ctx, code)
	}
	return s.backing.DeleteAuthorizationCode(ctx, code)
}

func (s *Store) HealthCheck(ctx context.Context) error {
	s.count("HealthCheck")
	if s.HealthCheckFunc != nil {
		return s.HealthCheckFunc(ctx)
	}
	return s.backing.HealthCheck(ctx)
}

func (s *Store) Stop() {
	s.count("Stop")
	s.backing.Stop()
}
