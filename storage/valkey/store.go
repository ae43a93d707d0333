// Package valkey provides a Valkey-backed storage backend for
// multi-instance deployments. Single-use code consumption and direct-token
// uniqueness run as server-side Lua scripts, so the guarantees hold when
// several server instances share one store.
package valkey

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
)

const (
	// DefaultKeyPrefix namespaces all keys
	DefaultKeyPrefix = "mcp_oauth:"

	// connectionVerifyTimeout bounds the initial PING
	connectionVerifyTimeout = 5 * time.Second

	// ipTrackingTTL is how long registration counts per IP are kept
	ipTrackingTTL = 24 * time.Hour
)

// Config holds connection options for the Valkey backend.
type Config struct {
	// Address of the Valkey server, e.g. "localhost:6379" (required)
	Address string

	// Password for authentication, optional
	Password string

	// DB selects the logical database
	DB int

	// TLS enables TLS when set
	TLS *tls.Config

	// KeyPrefix overrides DefaultKeyPrefix
	KeyPrefix string

	// Logger for store diagnostics
	Logger *slog.Logger
}

// Store is the Valkey implementation of storage.Store.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New connects to Valkey and verifies the connection.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage", "address", cfg.Address, "db", cfg.DB)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "storage.valkey"),
	}, nil
}

// Stop closes the client connection.
func (s *Store) Stop() {
	s.client.Close()
}

// HealthCheck pings the server.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("valkey health check failed: %w", err)
	}
	return nil
}

// ---- key layout ----

func (s *Store) tokenKey(id string) string {
	return s.prefix + "token:" + id
}

func (s *Store) tokenHashKey(hash string) string {
	return s.prefix + "tokenhash:" + hash
}

func (s *Store) userTokensKey(userID string) string {
	return s.prefix + "usertokens:" + userID
}

func (s *Store) directTokenKey(userID, name string) string {
	return s.prefix + "direct:" + userID + ":" + name
}

func (s *Store) clientKey(clientID string) string {
	return s.prefix + "client:" + clientID
}

func (s *Store) clientIPKey(ip string) string {
	return s.prefix + "clientip:" + ip
}

func (s *Store) codeKey(code string) string {
	return s.prefix + "code:" + code
}

// ---- shared helpers ----

// isNilError reports a missing-key reply.
func isNilError(err error) bool {
	return err != nil && valkeygo.IsValkeyNil(err)
}

// isExpectedMiss reports conditions that mean a record aged out rather
// than a backend failure.
func isExpectedMiss(err error) bool {
	return errors.Is(err, storage.ErrTokenNotFound) || errors.Is(err, storage.ErrTokenExpired)
}

// calculateTTL returns the remaining lifetime, rounded up so a record never
// vanishes before its expiry.
func calculateTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return 0
	}
	return ttl.Round(time.Second) + time.Second
}
