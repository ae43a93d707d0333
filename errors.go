package oauth

import (
	"fmt"
	"net/http"
)

// OAuth error codes per RFC 6749 and RFC 6750.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeServerError          = "server_error"
	ErrorCodeInvalidRedirectURI   = "invalid_redirect_uri"
	ErrorCodeRateLimitExceeded    = "rate_limit_exceeded"
)

// OAuthError is an OAuth protocol error with its HTTP status.
type OAuthError struct {
	// Code is the OAuth error code
	Code string

	// Description is the human-readable error description
	Description string

	// Status is the HTTP status code to respond with
	Status int
}

// Error implements the error interface.
func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates an OAuthError with an explicit status.
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{Code: code, Description: description, Status: status}
}

// ErrInvalidRequest is a 400 invalid_request.
func ErrInvalidRequest(description string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidRequest, description, http.StatusBadRequest)
}

// ErrInvalidClient is a 401 invalid_client. The handler adds a
// WWW-Authenticate challenge.
func ErrInvalidClient(description string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidClient, description, http.StatusUnauthorized)
}

// ErrInvalidGrant is a 400 invalid_grant. Descriptions stay generic so the
// response does not reveal which validation failed.
func ErrInvalidGrant(description string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidGrant, description, http.StatusBadRequest)
}

// ErrInvalidScope is a 400 invalid_scope.
func ErrInvalidScope(description string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidScope, description, http.StatusBadRequest)
}

// ErrInvalidToken is a 401 invalid_token (RFC 6750).
func ErrInvalidToken(description string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidToken, description, http.StatusUnauthorized)
}

// ErrUnsupportedGrantType is a 400 unsupported_grant_type.
func ErrUnsupportedGrantType(description string) *OAuthError {
	return NewOAuthError(ErrorCodeUnsupportedGrantType, description, http.StatusBadRequest)
}

// ErrAccessDenied is a 403 access_denied.
func ErrAccessDenied(description string) *OAuthError {
	return NewOAuthError(ErrorCodeAccessDenied, description, http.StatusForbidden)
}

// ErrServerError is a 500 server_error.
func ErrServerError(description string) *OAuthError {
	return NewOAuthError(ErrorCodeServerError, description, http.StatusInternalServerError)
}

// ErrInvalidRedirectURI is a 400 invalid_redirect_uri (RFC 7591).
func ErrInvalidRedirectURI(description string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidRedirectURI, description, http.StatusBadRequest)
}

// ErrRateLimitExceeded is a 429.
func ErrRateLimitExceeded(description string) *OAuthError {
	return NewOAuthError(ErrorCodeRateLimitExceeded, description, http.StatusTooManyRequests)
}
