package whatsapp

import (
	"sync"
	"time"
)

// rateLimiter enforces a minimum interval between inbound messages from
// the same phone number. Interval <= 0 disables limiting.
type rateLimiter struct {
	interval time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{
		interval: interval,
		lastSeen: make(map[string]time.Time),
	}
}

// Allow reports whether a message from phone may be processed now.
func (r *rateLimiter) Allow(phone string) bool {
	if r.interval <= 0 {
		return true
	}

	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.lastSeen[phone]; ok && now.Sub(last) < r.interval {
		return false
	}
	r.lastSeen[phone] = now
	return true
}
