package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxLimiterEntries bounds the identifier map so an attacker rotating
	// identifiers cannot exhaust memory
	maxLimiterEntries = 10000

	// limiterIdleTimeout is how long an identifier may stay idle before
	// its limiter is discarded
	limiterIdleTimeout = 10 * time.Minute
)

// RateLimiter applies a token-bucket limit per identifier (IP address or
// user ID). Idle entries are evicted by a background loop; when the map is
// full the least recently seen entry is dropped.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	stop     chan struct{}
	stopOnce sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perSecond events with the given
// burst per identifier. Returns nil when perSecond is zero or negative,
// which callers treat as limiting disabled.
func NewRateLimiter(perSecond float64, burst int, cleanupInterval time.Duration) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go rl.cleanupLoop(cleanupInterval)
	return rl
}

// Allow reports whether the identifier may proceed. A nil RateLimiter
// always allows.
func (rl *RateLimiter) Allow(identifier string) bool {
	if rl == nil {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[identifier]
	if !ok {
		if len(rl.limiters) >= maxLimiterEntries {
			rl.evictOldestLocked()
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[identifier] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

// ActiveEntries returns the number of tracked identifiers.
func (rl *RateLimiter) ActiveEntries() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Stop terminates the cleanup loop.
func (rl *RateLimiter) Stop() {
	if rl == nil {
		return
	}
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range rl.limiters {
		if oldestKey == "" || entry.lastSeen.Before(oldest) {
			oldestKey = key
			oldest = entry.lastSeen
		}
	}
	if oldestKey != "" {
		delete(rl.limiters, oldestKey)
	}
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-limiterIdleTimeout)
			rl.mu.Lock()
			for key, entry := range rl.limiters {
				if entry.lastSeen.Before(cutoff) {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
