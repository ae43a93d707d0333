package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/internal/util"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
)

// PKCE challenge methods.
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// PKCE verifier length bounds per RFC 7636.
const (
	pkceVerifierMinLength = 43
	pkceVerifierMaxLength = 128
)

// DangerousSchemes are never accepted as redirect URI schemes regardless of
// configuration. They execute code or expose local content in the user
// agent.
var DangerousSchemes = []string{
	"javascript", "data", "vbscript", "file", "about", "blob",
}

// validatePKCE checks a code verifier against the stored challenge.
// Comparison is constant time for both methods.
func (s *Server) validatePKCE(authCode *storage.AuthorizationCode, verifier string) error {
	if authCode.CodeChallenge == "" {
		if s.Config.RequirePKCE() {
			return fmt.Errorf("%s: PKCE required", ErrorCodeInvalidGrant)
		}
		return nil
	}

	if len(verifier) < pkceVerifierMinLength || len(verifier) > pkceVerifierMaxLength {
		return fmt.Errorf("%s: invalid code verifier", ErrorCodeInvalidGrant)
	}
	for _, r := range verifier {
		if !isPKCEVerifierChar(r) {
			return fmt.Errorf("%s: invalid code verifier", ErrorCodeInvalidGrant)
		}
	}

	switch authCode.CodeChallengeMethod {
	case PKCEMethodS256, "":
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(computed), []byte(authCode.CodeChallenge)) != 1 {
			return fmt.Errorf("%s: code verifier mismatch", ErrorCodeInvalidGrant)
		}
	case PKCEMethodPlain:
		if !s.Config.AllowPKCEPlain {
			return fmt.Errorf("%s: plain method not allowed", ErrorCodeInvalidGrant)
		}
		if subtle.ConstantTimeCompare([]byte(verifier), []byte(authCode.CodeChallenge)) != 1 {
			return fmt.Errorf("%s: code verifier mismatch", ErrorCodeInvalidGrant)
		}
	default:
		return fmt.Errorf("%s: unsupported challenge method", ErrorCodeInvalidGrant)
	}

	return nil
}

// isPKCEVerifierChar reports whether r is in the unreserved set of RFC 7636.
func isPKCEVerifierChar(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '.' || r == '_' || r == '~':
		return true
	}
	return false
}

// validateChallengeMethod checks the method named in an authorization
// request.
func (s *Server) validateChallengeMethod(method string) error {
	switch method {
	case "", PKCEMethodS256:
		return nil
	case PKCEMethodPlain:
		if s.Config.AllowPKCEPlain {
			return nil
		}
		return fmt.Errorf("%s: plain code_challenge_method not allowed", ErrorCodeInvalidRequest)
	default:
		return fmt.Errorf("%s: unsupported code_challenge_method", ErrorCodeInvalidRequest)
	}
}

// validateRedirectURI checks that a redirect URI exactly matches one of the
// client's registered URIs.
func validateRedirectURI(client *storage.Client, redirectURI string) error {
	for _, registered := range client.RedirectURIs {
		if registered == redirectURI {
			return nil
		}
	}
	return fmt.Errorf("%s: redirect URI not registered", ErrorCodeInvalidRedirectURI)
}

// validateRedirectURIScheme checks a URI offered at registration time.
// https always passes, http only for loopback hosts, custom schemes only
// when allow-listed.
func (s *Server) validateRedirectURIScheme(rawURI string) error {
	parsed, err := url.Parse(rawURI)
	if err != nil {
		return fmt.Errorf("%s: malformed redirect URI", ErrorCodeInvalidRedirectURI)
	}

	scheme := strings.ToLower(parsed.Scheme)
	for _, dangerous := range DangerousSchemes {
		if scheme == dangerous {
			return fmt.Errorf("%s: scheme not allowed", ErrorCodeInvalidRedirectURI)
		}
	}

	switch scheme {
	case "https":
		return nil
	case "http":
		if util.IsLoopbackHostname(parsed.Hostname()) {
			return nil
		}
		return fmt.Errorf("%s: http redirect URIs are limited to loopback hosts", ErrorCodeInvalidRedirectURI)
	case "":
		return fmt.Errorf("%s: redirect URI requires a scheme", ErrorCodeInvalidRedirectURI)
	}

	for _, allowed := range s.Config.AllowedCustomSchemes {
		if scheme == strings.ToLower(allowed) {
			return nil
		}
	}
	return fmt.Errorf("%s: scheme not allowed", ErrorCodeInvalidRedirectURI)
}

// validateScopes checks the requested scopes against the server's supported
// set and the client's registration. An empty request is always fine.
func (s *Server) validateScopes(client *storage.Client, scope string) error {
	if scope == "" {
		return nil
	}

	requested := strings.Fields(scope)
	for _, sc := range requested {
		if len(s.Config.SupportedScopes) > 0 && !containsString(s.Config.SupportedScopes, sc) {
			return fmt.Errorf("%s: unsupported scope", ErrorCodeInvalidScope)
		}
		if len(client.Scopes) > 0 && !containsString(client.Scopes, sc) {
			return fmt.Errorf("%s: scope not granted to client", ErrorCodeInvalidScope)
		}
	}
	return nil
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
