// Package host defines the contract between the OAuth server core and the
// embedding CMS. The host owns user authentication; the core only asks
// whether the current request carries a logged-in session and who the user
// is. Injecting a SessionProvider keeps the core free of host globals and
// makes the flow controller testable with a fixed session.
package host

import (
	"errors"
	"net/http"
)

// ErrNoSession is returned by CurrentUserID when the request has no
// authenticated session.
var ErrNoSession = errors.New("no authenticated session")

// SessionProvider exposes the host's session state for a request.
type SessionProvider interface {
	// IsLoggedIn reports whether the request carries an authenticated
	// host session.
	IsLoggedIn(r *http.Request) bool

	// CurrentUserID returns the host user identifier for the request's
	// session, or ErrNoSession.
	CurrentUserID(r *http.Request) (string, error)
}

// StaticSession is a fixed-state SessionProvider for tests and standalone
// demos.
type StaticSession struct {
	// UserID is returned by CurrentUserID when LoggedIn is true
	UserID string

	// LoggedIn fixes the session state
	LoggedIn bool
}

var _ SessionProvider = (*StaticSession)(nil)

// IsLoggedIn implements SessionProvider.
func (s *StaticSession) IsLoggedIn(*http.Request) bool {
	return s.LoggedIn
}

// CurrentUserID implements SessionProvider.
func (s *StaticSession) CurrentUserID(*http.Request) (string, error) {
	if !s.LoggedIn {
		return "", ErrNoSession
	}
	return s.UserID, nil
}
