// Package testutil provides shared helpers for tests.
package testutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const randomCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRandomString returns a random string of the given length from the
// unreserved character set, usable as PKCE verifiers and opaque tokens.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	for i := range b {
		b[i] = randomCharset[int(b[i])%len(randomCharset)]
	}
	return string(b)
}

// S256Challenge computes the S256 code challenge for a PKCE verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
