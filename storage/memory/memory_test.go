package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(Config{})
	t.Cleanup(s.Stop)
	return s
}

func testToken(id, userID string) *storage.Token {
	now := time.Now()
	return &storage.Token{
		ID:           id,
		TokenHash:    "hash-" + id,
		TokenPreview: "preview-",
		UserID:       userID,
		ClientID:     "client-1",
		ClientName:   "Test Client",
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
	}
}

func testAuthCode(code string) *storage.AuthorizationCode {
	now := time.Now()
	return &storage.AuthorizationCode{
		Code:        code,
		ClientID:    "client-1",
		RedirectURI: "https://example.com/callback",
		UserID:      "user-1",
		CreatedAt:   now,
		ExpiresAt:   now.Add(10 * time.Minute),
	}
}

func TestStore_ConsumeAuthorizationCode(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SaveAuthorizationCode(ctx, testAuthCode("code-1")); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	got, err := s.ConsumeAuthorizationCode(ctx, "code-1")
	if err != nil {
		t.Fatalf("ConsumeAuthorizationCode() error = %v", err)
	}
	if got.Code != "code-1" || got.Used {
		t.Errorf("first consume returned %+v", got)
	}

	got, err = s.ConsumeAuthorizationCode(ctx, "code-1")
	if !errors.Is(err, storage.ErrAuthorizationCodeUsed) {
		t.Fatalf("second consume error = %v, want ErrAuthorizationCodeUsed", err)
	}
	if got == nil || got.UserID != "user-1" {
		t.Errorf("second consume must return the record for containment, got %+v", got)
	}

	if _, err := s.ConsumeAuthorizationCode(ctx, "missing"); !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("unknown code error = %v, want ErrAuthorizationCodeNotFound", err)
	}
}

func TestStore_ConsumeAuthorizationCode_Expired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	code := testAuthCode("stale")
	code.ExpiresAt = time.Now().Add(-time.Minute)
	if err := s.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	got, err := s.ConsumeAuthorizationCode(ctx, "stale")
	if !errors.Is(err, storage.ErrTokenExpired) {
		t.Fatalf("error = %v, want ErrTokenExpired", err)
	}
	if got != nil {
		t.Errorf("expired consume returned record %+v", got)
	}
}

func TestStore_ConsumeAuthorizationCode_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SaveAuthorizationCode(ctx, testAuthCode("raced")); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	const attempts = 50
	var wg sync.WaitGroup
	var winners, reuses int
	var mu sync.Mutex

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumeAuthorizationCode(ctx, "raced")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, storage.ErrAuthorizationCodeUsed):
				reuses++
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
	if reuses != attempts-1 {
		t.Errorf("reuse errors = %d, want %d", reuses, attempts-1)
	}
}

func TestStore_CreateDirectToken_Uniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := testToken("t1", "user-1")
	first.ClientName = "laptop"
	if err := s.CreateDirectToken(ctx, first); err != nil {
		t.Fatalf("CreateDirectToken() error = %v", err)
	}

	dup := testToken("t2", "user-1")
	dup.ClientName = "laptop"
	if err := s.CreateDirectToken(ctx, dup); !errors.Is(err, storage.ErrDirectTokenExists) {
		t.Fatalf("duplicate error = %v, want ErrDirectTokenExists", err)
	}

	other := testToken("t3", "user-2")
	other.ClientName = "laptop"
	if err := s.CreateDirectToken(ctx, other); err != nil {
		t.Errorf("other user's token error = %v", err)
	}

	if err := s.RevokeToken(ctx, "t1", "user-1"); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}
	retry := testToken("t4", "user-1")
	retry.ClientName = "laptop"
	if err := s.CreateDirectToken(ctx, retry); err != nil {
		t.Errorf("recreate after revoke error = %v", err)
	}
}

func TestStore_CreateDirectToken_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok := testToken(fmt.Sprintf("tok-%d", i), "user-1")
			tok.ClientName = "shared-name"
			results <- s.CreateDirectToken(ctx, tok)
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
		} else if !errors.Is(err, storage.ErrDirectTokenExists) {
			t.Errorf("unexpected error = %v", err)
		}
	}
	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
}

func TestStore_GetTokenByHash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tok := testToken("t1", "user-1")
	if err := s.SaveToken(ctx, tok); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	got, err := s.GetTokenByHash(ctx, tok.TokenHash)
	if err != nil {
		t.Fatalf("GetTokenByHash() error = %v", err)
	}
	if got.ID != tok.ID {
		t.Errorf("ID = %q, want %q", got.ID, tok.ID)
	}

	if _, err := s.GetTokenByHash(ctx, "unknown"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("unknown hash error = %v, want ErrTokenNotFound", err)
	}

	if err := s.RevokeToken(ctx, tok.ID, tok.UserID); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}
	if _, err := s.GetTokenByHash(ctx, tok.TokenHash); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("revoked token error = %v, want ErrTokenNotFound", err)
	}

	stale := testToken("t2", "user-1")
	stale.ExpiresAt = time.Now().Add(-time.Minute)
	if err := s.SaveToken(ctx, stale); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	if _, err := s.GetTokenByHash(ctx, stale.TokenHash); !errors.Is(err, storage.ErrTokenExpired) {
		t.Errorf("expired token error = %v, want ErrTokenExpired", err)
	}
}

func TestStore_TouchToken(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tok := testToken("t1", "user-1")
	if err := s.SaveToken(ctx, tok); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	when := time.Now().Add(time.Minute)
	if err := s.TouchToken(ctx, "t1", when); err != nil {
		t.Fatalf("TouchToken() error = %v", err)
	}

	got, err := s.GetTokenByHash(ctx, tok.TokenHash)
	if err != nil {
		t.Fatalf("GetTokenByHash() error = %v", err)
	}
	if !got.LastUsedAt.Equal(when) {
		t.Errorf("LastUsedAt = %v, want %v", got.LastUsedAt, when)
	}

	if err := s.TouchToken(ctx, "missing", when); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("missing token error = %v, want ErrTokenNotFound", err)
	}
}

func TestStore_RevokeScoping(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := testToken("a", "user-1")
	b := testToken("b", "user-1")
	b.ClientID = "client-2"
	c := testToken("c", "user-2")
	for _, tok := range []*storage.Token{a, b, c} {
		if err := s.SaveToken(ctx, tok); err != nil {
			t.Fatalf("SaveToken(%s) error = %v", tok.ID, err)
		}
	}

	if err := s.RevokeToken(ctx, "a", "user-2"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("cross-user revoke error = %v, want ErrTokenNotFound", err)
	}

	count, err := s.RevokeTokensForUserClient(ctx, "user-1", "client-1")
	if err != nil {
		t.Fatalf("RevokeTokensForUserClient() error = %v", err)
	}
	if count != 1 {
		t.Errorf("revoked %d, want 1", count)
	}
	if _, err := s.GetTokenByHash(ctx, b.TokenHash); err != nil {
		t.Errorf("token for other client revoked: %v", err)
	}

	count, err = s.RevokeAllTokensForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("RevokeAllTokensForUser() error = %v", err)
	}
	if count != 1 {
		t.Errorf("revoked %d, want 1", count)
	}
	if _, err := s.GetTokenByHash(ctx, c.TokenHash); err != nil {
		t.Errorf("other user's token revoked: %v", err)
	}
}

func TestStore_ValidateClientSecret(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error = %v", err)
	}
	if err := s.SaveClient(ctx, &storage.Client{
		ClientID:         "confidential-1",
		ClientType:       "confidential",
		ClientSecretHash: string(hash),
	}); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}
	if err := s.SaveClient(ctx, &storage.Client{
		ClientID:   "public-1",
		ClientType: "public",
	}); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	tests := []struct {
		name     string
		clientID string
		secret   string
		wantErr  bool
	}{
		{name: "correct secret", clientID: "confidential-1", secret: "s3cret"},
		{name: "wrong secret", clientID: "confidential-1", secret: "nope", wantErr: true},
		{name: "public client ignores secret", clientID: "public-1", secret: ""},
		{name: "unknown client", clientID: "ghost", secret: "s3cret", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateClientSecret(ctx, tt.clientID, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateClientSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_CheckIPLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		if err := s.CheckIPLimit(ctx, "10.0.0.1", 3); err != nil {
			t.Fatalf("CheckIPLimit() #%d error = %v", i+1, err)
		}
	}
	if err := s.CheckIPLimit(ctx, "10.0.0.1", 3); !errors.Is(err, storage.ErrClientLimitReached) {
		t.Errorf("over-limit error = %v, want ErrClientLimitReached", err)
	}
	if err := s.CheckIPLimit(ctx, "10.0.0.2", 3); err != nil {
		t.Errorf("other IP error = %v", err)
	}
	// zero disables the limit
	for i := 0; i < 100; i++ {
		if err := s.CheckIPLimit(ctx, "10.0.0.1", 0); err != nil {
			t.Fatalf("unlimited CheckIPLimit() error = %v", err)
		}
	}
}

func TestStore_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	s := New(Config{CleanupInterval: 10 * time.Millisecond})
	t.Cleanup(s.Stop)

	live := testToken("live", "user-1")
	stale := testToken("stale", "user-1")
	stale.ExpiresAt = time.Now().Add(-time.Minute)
	for _, tok := range []*storage.Token{live, stale} {
		if err := s.SaveToken(ctx, tok); err != nil {
			t.Fatalf("SaveToken(%s) error = %v", tok.ID, err)
		}
	}
	code := testAuthCode("stale-code")
	code.ExpiresAt = time.Now().Add(-time.Minute)
	if err := s.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.RLock()
		_, tokenPresent := s.tokens["stale"]
		_, codePresent := s.authCodes["stale-code"]
		s.mu.RUnlock()
		if !tokenPresent && !codePresent {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.tokens["stale"]; ok {
		t.Error("expired token not cleaned up")
	}
	if _, ok := s.authCodes["stale-code"]; ok {
		t.Error("expired authorization code not cleaned up")
	}
	if _, ok := s.tokens["live"]; !ok {
		t.Error("live token removed by cleanup")
	}
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SaveToken(ctx, testToken("t1", "user-1")); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	if err := s.SaveAuthorizationCode(ctx, testAuthCode("c1")); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}
	if _, err := s.ConsumeAuthorizationCode(ctx, "c1"); err != nil {
		t.Fatalf("ConsumeAuthorizationCode() error = %v", err)
	}
	if _, err := s.ConsumeAuthorizationCode(ctx, "c1"); !errors.Is(err, storage.ErrAuthorizationCodeUsed) {
		t.Fatalf("reuse error = %v", err)
	}
	if err := s.RevokeToken(ctx, "t1", "user-1"); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}

	stats := s.Stats()
	if stats.TokensIssued != 1 {
		t.Errorf("TokensIssued = %d, want 1", stats.TokensIssued)
	}
	if stats.TokensRevoked != 1 {
		t.Errorf("TokensRevoked = %d, want 1", stats.TokensRevoked)
	}
	if stats.CodesConsumed != 1 {
		t.Errorf("CodesConsumed = %d, want 1", stats.CodesConsumed)
	}
	if stats.CodeReuseAttempts != 1 {
		t.Errorf("CodeReuseAttempts = %d, want 1", stats.CodeReuseAttempts)
	}
}
