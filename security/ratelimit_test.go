package security

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 3, time.Minute)
	t.Cleanup(rl.Stop)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request allowed beyond burst")
	}

	// identifiers are independent
	if !rl.Allow("10.0.0.2") {
		t.Error("fresh identifier denied")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 10, time.Minute)
	if rl != nil {
		t.Fatal("NewRateLimiter(0, ...) should return nil")
	}

	// nil limiter always allows and never panics
	for i := 0; i < 100; i++ {
		if !rl.Allow("anyone") {
			t.Fatal("nil limiter denied a request")
		}
	}
	rl.Stop()
	if rl.ActiveEntries() != 0 {
		t.Error("nil limiter reports entries")
	}
}

func TestRateLimiter_BurstFloor(t *testing.T) {
	rl := NewRateLimiter(5, 0, time.Minute)
	t.Cleanup(rl.Stop)

	if !rl.Allow("x") {
		t.Error("burst floor of 1 not applied")
	}
}

func TestRateLimiter_EvictionCap(t *testing.T) {
	rl := NewRateLimiter(100, 1, time.Hour)
	t.Cleanup(rl.Stop)

	for i := 0; i < maxLimiterEntries+50; i++ {
		rl.Allow(fmt.Sprintf("id-%d", i))
	}
	if got := rl.ActiveEntries(); got > maxLimiterEntries {
		t.Errorf("ActiveEntries() = %d, want <= %d", got, maxLimiterEntries)
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(100, 1, time.Minute)
	t.Cleanup(rl.Stop)

	if !rl.Allow("refill") {
		t.Fatal("first request denied")
	}
	if rl.Allow("refill") {
		t.Fatal("second request allowed with burst 1")
	}

	// 100/s refills one token within a few ms
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if rl.Allow("refill") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("token never refilled")
}
