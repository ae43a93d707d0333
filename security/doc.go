// Package security provides the security plumbing shared by the OAuth
// server core: authenticated sealing for the login continuation cookie,
// audit logging with hashed identifiers, token-bucket rate limiting,
// response security headers, clock-skew tolerant expiry checks, and
// client IP extraction behind trusted proxies.
package security
