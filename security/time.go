package security

import "time"

// DefaultClockSkewGracePeriod is the grace applied to expiry checks so
// minor clock drift between the host, the store, and clients does not cause
// false expirations. 5 seconds covers typical NTP drift.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsExpired checks expiry with the default grace period.
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredWithGrace(expiresAt, DefaultClockSkewGracePeriod)
}

// IsExpiredWithGrace checks expiry with a custom grace period. A zero
// expiry means no expiration.
func IsExpiredWithGrace(expiresAt time.Time, grace time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(grace))
}
