package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Audit event types.
const (
	// EventAuthorizationRequested is logged when an authorization flow starts
	EventAuthorizationRequested = "authorization_requested"

	// EventLoginRedirect is logged when an unauthenticated authorization
	// request is parked in the continuation cookie and sent to login
	EventLoginRedirect = "login_redirect"

	// EventAuthorizationCodeIssued is logged when a code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventTokenIssued is logged when an access token is issued
	EventTokenIssued = "token_issued"

	// EventTokenRevoked is logged when a token is revoked
	EventTokenRevoked = "token_revoked"

	// EventAllTokensRevoked is logged when all tokens of a user are revoked
	EventAllTokensRevoked = "all_tokens_revoked" //nolint:gosec // event type name, not a credential

	// EventCodeReuseDetected is logged when a consumed authorization code
	// is presented again
	EventCodeReuseDetected = "code_reuse_detected"

	// EventAuthFailure is logged on failed authentication attempts
	EventAuthFailure = "auth_failure"

	// EventClientRegistered is logged when a new client is registered
	EventClientRegistered = "client_registered"

	// EventRateLimitExceeded is logged when a rate limit trips
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventContinuationRejected is logged when a continuation cookie fails
	// decoding, authentication, or re-validation
	EventContinuationRejected = "continuation_rejected"
)

// Auditor writes security-relevant events to the structured log. User IDs
// are hashed before logging so audit trails do not carry PII.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates an Auditor. A nil logger disables audit logging.
func NewAuditor(logger *slog.Logger) *Auditor {
	return &Auditor{
		logger:  logger,
		enabled: logger != nil,
	}
}

// Enabled reports whether audit logging is active.
func (a *Auditor) Enabled() bool {
	return a != nil && a.enabled
}

// Event is a single audit record.
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent writes an audit event. The user ID is hashed.
func (a *Auditor) LogEvent(event Event) {
	if !a.Enabled() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		"audit", true,
		"event_type", event.Type,
		"timestamp", event.Timestamp.UTC().Format(time.RFC3339),
	}
	if event.UserID != "" {
		attrs = append(attrs, "user_hash", HashIdentifier(event.UserID))
	}
	if event.ClientID != "" {
		attrs = append(attrs, "client_id", event.ClientID)
	}
	if event.IPAddress != "" {
		attrs = append(attrs, "ip", event.IPAddress)
	}
	for k, v := range event.Details {
		attrs = append(attrs, k, v)
	}

	a.logger.Info("Security audit event", attrs...)
}

// LogTokenIssued records token issuance. name is the registered client name
// or the direct token's label.
func (a *Auditor) LogTokenIssued(userID, clientID, name string, direct bool) {
	a.LogEvent(Event{
		Type:     EventTokenIssued,
		UserID:   userID,
		ClientID: clientID,
		Details:  map[string]any{"name": name, "direct": direct},
	})
}

// LogTokenRevoked records single-token revocation.
func (a *Auditor) LogTokenRevoked(userID, tokenID string) {
	a.LogEvent(Event{
		Type:    EventTokenRevoked,
		UserID:  userID,
		Details: map[string]any{"token_id": tokenID},
	})
}

// LogAllTokensRevoked records bulk revocation.
func (a *Auditor) LogAllTokensRevoked(userID string, count int) {
	a.LogEvent(Event{
		Type:    EventAllTokensRevoked,
		UserID:  userID,
		Details: map[string]any{"count": count},
	})
}

// LogCodeReuse records a consumed authorization code being presented again.
func (a *Auditor) LogCodeReuse(userID, clientID string, revoked int) {
	a.LogEvent(Event{
		Type:     EventCodeReuseDetected,
		UserID:   userID,
		ClientID: clientID,
		Details:  map[string]any{"tokens_revoked": revoked},
	})
}

// LogAuthFailure records a failed authentication attempt. reason must be a
// generic category, never credential material.
func (a *Auditor) LogAuthFailure(clientID, ip, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		ClientID:  clientID,
		IPAddress: ip,
		Details:   map[string]any{"reason": reason},
	})
}

// LogClientRegistered records a client registration.
func (a *Auditor) LogClientRegistered(clientID, clientType, ip string) {
	a.LogEvent(Event{
		Type:      EventClientRegistered,
		ClientID:  clientID,
		IPAddress: ip,
		Details:   map[string]any{"client_type": clientType},
	})
}

// LogRateLimitExceeded records a tripped rate limit.
func (a *Auditor) LogRateLimitExceeded(limiter, identifier string) {
	a.LogEvent(Event{
		Type:    EventRateLimitExceeded,
		Details: map[string]any{"limiter": limiter, "identifier_hash": HashIdentifier(identifier)},
	})
}

// LogLoginRedirect records an authorization request parked for login.
func (a *Auditor) LogLoginRedirect(clientID, ip string) {
	a.LogEvent(Event{
		Type:      EventLoginRedirect,
		ClientID:  clientID,
		IPAddress: ip,
	})
}

// LogContinuationRejected records a discarded continuation cookie.
func (a *Auditor) LogContinuationRejected(ip, reason string) {
	a.LogEvent(Event{
		Type:      EventContinuationRejected,
		IPAddress: ip,
		Details:   map[string]any{"reason": reason},
	})
}

// HashIdentifier returns a short hex SHA-256 of an identifier, suitable for
// correlating audit records without logging the identifier itself.
func HashIdentifier(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}
