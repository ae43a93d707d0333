package security

import (
	"testing"
	"time"
)

func TestIsExpiredWithGrace(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		expiresAt time.Time
		grace     time.Duration
		want      bool
	}{
		{
			name:      "zero time never expires",
			expiresAt: time.Time{},
			grace:     0,
			want:      false,
		},
		{
			name:      "future not expired",
			expiresAt: now.Add(time.Hour),
			grace:     0,
			want:      false,
		},
		{
			name:      "past expired",
			expiresAt: now.Add(-time.Hour),
			grace:     0,
			want:      true,
		},
		{
			name:      "just past but within grace",
			expiresAt: now.Add(-2 * time.Second),
			grace:     5 * time.Second,
			want:      false,
		},
		{
			name:      "past beyond grace",
			expiresAt: now.Add(-10 * time.Second),
			grace:     5 * time.Second,
			want:      true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsExpiredWithGrace(tc.expiresAt, tc.grace); got != tc.want {
				t.Errorf("IsExpiredWithGrace(%v, %v) = %v, want %v", tc.expiresAt, tc.grace, got, tc.want)
			}
		})
	}
}

func TestIsExpired(t *testing.T) {
	if IsExpired(time.Now().Add(time.Minute)) {
		t.Error("future expiry reported expired")
	}
	if !IsExpired(time.Now().Add(-time.Minute)) {
		t.Error("past expiry not reported expired")
	}
	// within the default grace window
	if IsExpired(time.Now().Add(-time.Second)) {
		t.Error("expiry within default grace reported expired")
	}
}
