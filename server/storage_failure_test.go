package server

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/host"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/internal/testutil"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage/mock"
)

var errBackendDown = errors.New("backend unavailable")

func setupMockTestServer(t *testing.T) (*Server, *mock.Store) {
	t.Helper()

	store := mock.NewStore()
	t.Cleanup(store.Stop)

	config := &Config{
		Issuer:               "https://cms.example.com",
		LoginURL:             "https://cms.example.com/login",
		SupportedScopes:      []string{"mcp", "mcp.read"},
		AuthorizationCodeTTL: 600,
		AccessTokenTTL:       3600,
	}

	session := &host.StaticSession{UserID: testUserID, LoggedIn: true}
	srv, err := New(session, store, store, store, config, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, store
}

func TestIssueAuthorizationCode_StorageFailure(t *testing.T) {
	srv, store := setupMockTestServer(t)
	client := registerTestClient(t, srv)

	store.SaveAuthorizationCodeFunc = func(context.Context, *storage.AuthorizationCode) error {
		return errBackendDown
	}

	verifier := testutil.GenerateRandomString(testPKCEVerifierLength)
	req := &AuthorizationRequest{
		ClientID:            client.ClientID,
		RedirectURI:         "https://example.com/callback",
		ResponseType:        "code",
		Scope:               "mcp",
		State:               testutil.GenerateRandomString(16),
		CodeChallenge:       testutil.S256Challenge(verifier),
		CodeChallengeMethod: PKCEMethodS256,
	}
	_, err := srv.IssueAuthorizationCode(context.Background(), req, testUserID)
	if err == nil {
		t.Fatal("IssueAuthorizationCode() succeeded with failing store")
	}
	if !strings.HasPrefix(err.Error(), ErrorCodeServerError+":") {
		t.Errorf("error = %q, want %s prefix", err, ErrorCodeServerError)
	}
	if !errors.Is(err, errBackendDown) {
		t.Error("storage cause not wrapped")
	}
}

func TestExchangeAuthorizationCode_SaveTokenFailure(t *testing.T) {
	srv, store := setupMockTestServer(t)
	client := registerTestClient(t, srv)
	verifier := testutil.GenerateRandomString(testPKCEVerifierLength)
	code, req := issueTestCode(t, srv, client, verifier)

	store.SaveTokenFunc = func(context.Context, *storage.Token) error {
		return errBackendDown
	}

	_, err := srv.ExchangeAuthorizationCode(context.Background(), code, client.ClientID, req.RedirectURI, verifier)
	if err == nil {
		t.Fatal("ExchangeAuthorizationCode() succeeded with failing token store")
	}
	if !strings.HasPrefix(err.Error(), ErrorCodeServerError+":") {
		t.Errorf("error = %q, want %s prefix", err, ErrorCodeServerError)
	}
	if store.CallCount("ConsumeAuthorizationCode") != 1 {
		t.Errorf("ConsumeAuthorizationCode calls = %d, want 1", store.CallCount("ConsumeAuthorizationCode"))
	}
}

func TestValidateAccessToken_TouchFailureIsNonFatal(t *testing.T) {
	srv, store := setupMockTestServer(t)

	raw, _, err := srv.IssueDirectToken(context.Background(), testUserID, "CI Token", "mcp")
	if err != nil {
		t.Fatalf("IssueDirectToken() error = %v", err)
	}

	store.TouchTokenFunc = func(context.Context, string, time.Time) error {
		return errBackendDown
	}

	token, err := srv.ValidateAccessToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v, want success despite touch failure", err)
	}
	if token.UserID != testUserID {
		t.Errorf("token.UserID = %q", token.UserID)
	}
	if store.CallCount("TouchToken") != 1 {
		t.Errorf("TouchToken calls = %d, want 1", store.CallCount("TouchToken"))
	}
}

func TestRegisterClient_SaveFailure(t *testing.T) {
	srv, store := setupMockTestServer(t)

	store.SaveClientFunc = func(context.Context, *storage.Client) error {
		return errBackendDown
	}

	_, _, err := srv.RegisterClient(context.Background(), RegistrationRequest{
		ClientName:   "Doomed Client",
		RedirectURIs: []string{"https://example.com/callback"},
	}, "192.168.1.100")
	if err == nil {
		t.Fatal("RegisterClient() succeeded with failing client store")
	}
	if !strings.HasPrefix(err.Error(), ErrorCodeServerError+":") {
		t.Errorf("error = %q, want %s prefix", err, ErrorCodeServerError)
	}
}
