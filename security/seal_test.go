package security

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	key, err := GenerateSealKey()
	if err != nil {
		t.Fatalf("GenerateSealKey() error = %v", err)
	}
	s, err := NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}
	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	s := newTestSealer(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "empty", plaintext: ""},
		{name: "short", plaintext: "x"},
		{name: "json payload", plaintext: `{"client_id":"abc","redirect_uri":"https://example.com/cb"}`},
		{name: "binary-ish", plaintext: "\x00\x01\xff\xfe"},
		{name: "large", plaintext: strings.Repeat("payload ", 512)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := s.Seal([]byte(tt.plaintext))
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if strings.Contains(sealed, tt.plaintext) && tt.plaintext != "" {
				t.Error("sealed value contains plaintext")
			}

			opened, err := s.Open(sealed)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if string(opened) != tt.plaintext {
				t.Errorf("Open() = %q, want %q", opened, tt.plaintext)
			}
		})
	}
}

func TestSealer_TamperDetection(t *testing.T) {
	s := newTestSealer(t)

	sealed, err := s.Seal([]byte("continuation state"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}

	tests := []struct {
		name   string
		mangle func([]byte) string
	}{
		{
			name: "flipped ciphertext bit",
			mangle: func(b []byte) string {
				b[len(b)-1] ^= 0x01
				return base64.RawURLEncoding.EncodeToString(b)
			},
		},
		{
			name: "flipped nonce bit",
			mangle: func(b []byte) string {
				b[0] ^= 0x01
				return base64.RawURLEncoding.EncodeToString(b)
			},
		},
		{
			name: "truncated",
			mangle: func(b []byte) string {
				return base64.RawURLEncoding.EncodeToString(b[:len(b)/2])
			},
		},
		{
			name: "too short for nonce",
			mangle: func([]byte) string {
				return base64.RawURLEncoding.EncodeToString([]byte{1, 2, 3})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := make([]byte, len(raw))
			copy(cp, raw)
			if _, err := s.Open(tt.mangle(cp)); !errors.Is(err, ErrSealTampered) {
				t.Errorf("Open() error = %v, want ErrSealTampered", err)
			}
		})
	}

	if _, err := s.Open("not!base64!!"); err == nil {
		t.Error("Open() accepted invalid encoding")
	}
}

func TestSealer_WrongKey(t *testing.T) {
	a := newTestSealer(t)
	b := newTestSealer(t)

	sealed, err := a.Seal([]byte("state"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if _, err := b.Open(sealed); !errors.Is(err, ErrSealTampered) {
		t.Errorf("Open() with wrong key error = %v, want ErrSealTampered", err)
	}
}

func TestSealer_Disabled(t *testing.T) {
	s, err := NewSealer(nil)
	if err != nil {
		t.Fatalf("NewSealer(nil) error = %v", err)
	}
	if s.Enabled() {
		t.Error("Enabled() = true for nil key")
	}

	sealed, err := s.Seal([]byte("plain"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	// disabled sealing is plain base64
	decoded, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || string(decoded) != "plain" {
		t.Errorf("disabled Seal() = %q, want base64 of plaintext", sealed)
	}

	opened, err := s.Open(sealed)
	if err != nil || string(opened) != "plain" {
		t.Errorf("disabled Open() = %q, %v", opened, err)
	}

	var nilSealer *Sealer
	if nilSealer.Enabled() {
		t.Error("nil sealer reports enabled")
	}
}

func TestSealer_InvalidKeySize(t *testing.T) {
	for _, size := range []int{1, 16, 31, 33, 64} {
		if _, err := NewSealer(make([]byte, size)); err == nil {
			t.Errorf("NewSealer() accepted %d-byte key", size)
		}
	}
}

func TestSealKeyBase64RoundTrip(t *testing.T) {
	key, err := GenerateSealKey()
	if err != nil {
		t.Fatalf("GenerateSealKey() error = %v", err)
	}

	encoded := SealKeyToBase64(key)
	decoded, err := SealKeyFromBase64(encoded)
	if err != nil {
		t.Fatalf("SealKeyFromBase64() error = %v", err)
	}
	if string(decoded) != string(key) {
		t.Error("key did not round-trip through base64")
	}

	if _, err := SealKeyFromBase64("dG9vc2hvcnQ"); err == nil {
		t.Error("SealKeyFromBase64() accepted short key")
	}
	if _, err := SealKeyFromBase64("!!!"); err == nil {
		t.Error("SealKeyFromBase64() accepted invalid base64")
	}
}
