package server

import (
	"strings"
	"testing"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/internal/testutil"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
)

func TestValidatePKCE(t *testing.T) {
	srv, _ := setupFlowTestServer(t)

	verifier := testutil.GenerateRandomString(testPKCEVerifierLength)
	challenge := testutil.S256Challenge(verifier)

	codeWith := func(challenge, method string) *storage.AuthorizationCode {
		return &storage.AuthorizationCode{
			CodeChallenge:       challenge,
			CodeChallengeMethod: method,
		}
	}

	tests := []struct {
		name           string
		authCode       *storage.AuthorizationCode
		verifier       string
		allowPlain     bool
		disableRequire bool
		wantErr        bool
	}{
		{
			name:     "valid S256",
			authCode: codeWith(challenge, PKCEMethodS256),
			verifier: verifier,
		},
		{
			name:     "method defaults to S256",
			authCode: codeWith(challenge, ""),
			verifier: verifier,
		},
		{
			name:     "wrong verifier",
			authCode: codeWith(challenge, PKCEMethodS256),
			verifier: testutil.GenerateRandomString(testPKCEVerifierLength),
			wantErr:  true,
		},
		{
			name:     "verifier below minimum length",
			authCode: codeWith(challenge, PKCEMethodS256),
			verifier: testutil.GenerateRandomString(42),
			wantErr:  true,
		},
		{
			name:     "verifier above maximum length",
			authCode: codeWith(challenge, PKCEMethodS256),
			verifier: testutil.GenerateRandomString(129),
			wantErr:  true,
		},
		{
			name:     "verifier with disallowed characters",
			authCode: codeWith(challenge, PKCEMethodS256),
			verifier: strings.Repeat("a", 42) + "!",
			wantErr:  true,
		},
		{
			name:     "no challenge while PKCE required",
			authCode: codeWith("", ""),
			verifier: verifier,
			wantErr:  true,
		},
		{
			name:           "no challenge with PKCE optional",
			authCode:       codeWith("", ""),
			verifier:       "",
			disableRequire: true,
		},
		{
			name:       "plain allowed when configured",
			authCode:   codeWith(verifier, PKCEMethodPlain),
			verifier:   verifier,
			allowPlain: true,
		},
		{
			name:     "plain rejected by default",
			authCode: codeWith(verifier, PKCEMethodPlain),
			verifier: verifier,
			wantErr:  true,
		},
		{
			name:       "plain with wrong verifier",
			authCode:   codeWith(testutil.GenerateRandomString(testPKCEVerifierLength), PKCEMethodPlain),
			verifier:   verifier,
			allowPlain: true,
			wantErr:    true,
		},
		{
			name:     "unknown challenge method",
			authCode: codeWith(challenge, "S512"),
			verifier: verifier,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv.Config.AllowPKCEPlain = tt.allowPlain
			srv.Config.DisablePKCE = tt.disableRequire
			t.Cleanup(func() {
				srv.Config.AllowPKCEPlain = false
				srv.Config.DisablePKCE = false
			})

			err := srv.validatePKCE(tt.authCode, tt.verifier)
			if (err != nil) != tt.wantErr {
				t.Errorf("validatePKCE() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRedirectURIScheme(t *testing.T) {
	srv, _ := setupFlowTestServer(t)
	srv.Config.AllowedCustomSchemes = []string{"myapp"}

	tests := []struct {
		name    string
		uri     string
		wantErr bool
	}{
		{name: "https", uri: "https://example.com/cb"},
		{name: "http loopback", uri: "http://localhost:8912/cb"},
		{name: "http loopback v4", uri: "http://127.0.0.1/cb"},
		{name: "http loopback v6", uri: "http://[::1]:9000/cb"},
		{name: "http public host", uri: "http://example.com/cb", wantErr: true},
		{name: "allow-listed custom scheme", uri: "myapp://cb"},
		{name: "custom scheme case-insensitive", uri: "MyApp://cb"},
		{name: "unlisted custom scheme", uri: "otherapp://cb", wantErr: true},
		{name: "javascript", uri: "javascript:alert(1)", wantErr: true},
		{name: "data", uri: "data:text/html,x", wantErr: true},
		{name: "file", uri: "file:///etc/passwd", wantErr: true},
		{name: "no scheme", uri: "/relative/path", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := srv.validateRedirectURIScheme(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateRedirectURIScheme(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
		})
	}
}

func TestValidateScopes(t *testing.T) {
	srv, _ := setupFlowTestServer(t)

	client := &storage.Client{Scopes: []string{"mcp"}}
	unrestricted := &storage.Client{}

	tests := []struct {
		name    string
		client  *storage.Client
		scope   string
		wantErr bool
	}{
		{name: "empty scope", client: client, scope: ""},
		{name: "granted scope", client: client, scope: "mcp"},
		{name: "scope not granted to client", client: client, scope: "mcp.read", wantErr: true},
		{name: "client without restriction", client: unrestricted, scope: "mcp.read"},
		{name: "unsupported scope", client: unrestricted, scope: "admin", wantErr: true},
		{name: "mixed valid and invalid", client: unrestricted, scope: "mcp admin", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := srv.validateScopes(tt.client, tt.scope)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateScopes(%q) error = %v, wantErr %v", tt.scope, err, tt.wantErr)
			}
		})
	}
}
