package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// SealKeySize is the required key size in bytes (AES-256).
const SealKeySize = 32

// ErrSealTampered is returned when a sealed value fails authentication.
var ErrSealTampered = errors.New("sealed value failed authentication")

// Sealer provides authenticated encryption (AES-256-GCM) for values that
// round-trip through the user agent, such as the login continuation cookie.
// A tampered or truncated value fails to open.
//
// A nil key disables sealing: Seal and Open pass data through base64
// unchanged. Callers must then treat the content as untrusted input.
type Sealer struct {
	aead    cipher.AEAD
	enabled bool
}

// NewSealer creates a Sealer from a 32-byte key, or a disabled pass-through
// Sealer when key is nil or empty.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) == 0 {
		return &Sealer{enabled: false}, nil
	}
	if len(key) != SealKeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", SealKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{aead: aead, enabled: true}, nil
}

// Enabled reports whether sealing is active.
func (s *Sealer) Enabled() bool {
	return s != nil && s.enabled
}

// Seal encrypts and authenticates plaintext, returning a base64url string
// of nonce||ciphertext. With sealing disabled it base64-encodes as-is.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	if !s.Enabled() {
		return base64.RawURLEncoding.EncodeToString(plaintext), nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decodes and authenticates a value produced by Seal. Returns
// ErrSealTampered when authentication fails.
func (s *Sealer) Open(value string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	if !s.Enabled() {
		return data, nil
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrSealTampered
	}

	plaintext, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, ErrSealTampered
	}
	return plaintext, nil
}

// GenerateSealKey returns a new random 32-byte key.
func GenerateSealKey() ([]byte, error) {
	key := make([]byte, SealKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// SealKeyFromBase64 decodes a standard-base64 key, validating its length.
func SealKeyFromBase64(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	if len(key) != SealKeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", SealKeySize, len(key))
	}
	return key, nil
}

// SealKeyToBase64 encodes a key for storage in configuration.
func SealKeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
