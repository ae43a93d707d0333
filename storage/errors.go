package storage

import "errors"

// Sentinel errors returned by storage backends. Callers use errors.Is to
// distinguish expected conditions from backend failures.
var (
	// ErrTokenNotFound is returned when a token does not exist, is revoked,
	// or is not owned by the requesting user.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired is returned when a token or code exists but its
	// expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrClientNotFound is returned for unknown client IDs.
	ErrClientNotFound = errors.New("client not found")

	// ErrClientLimitReached is returned when an IP has registered the
	// maximum allowed number of clients.
	ErrClientLimitReached = errors.New("client registration limit reached")

	// ErrAuthorizationCodeNotFound is returned for unknown authorization codes.
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")

	// ErrAuthorizationCodeUsed is returned when an authorization code has
	// already been consumed. The consumed code record accompanies this error
	// so the caller can run reuse detection.
	ErrAuthorizationCodeUsed = errors.New("authorization code already used")

	// ErrDirectTokenExists is returned when an unrevoked direct token
	// already exists for the same user and token name.
	ErrDirectTokenExists = errors.New("direct token already exists for this name")
)
