package ratelimit

import (
	"sync"
	"time"

	appErr "codequest/pkg/errors"
)

// Limiter enforces a per-key sliding window over request timestamps.
// It is process-local: each API instance admits up to maxRequests per
// window for every key it sees.
type Limiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	buckets map[string][]time.Time
}

// NewLimiter creates a limiter using the wall clock.
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	return NewLimiterWithClock(maxRequests, window, time.Now)
}

// NewLimiterWithClock creates a limiter with an injectable clock.
func NewLimiterWithClock(maxRequests int, window time.Duration, now func() time.Time) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         now,
		buckets:     make(map[string][]time.Time),
	}
}

// Check admits or rejects one request for the key. Eviction, the limit
// check and the recording of the new timestamp happen as a single step
// under the lock, so two concurrent callers cannot both take the last
// remaining slot.
func (l *Limiter) Check(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	bucket := l.buckets[key]
	kept := bucket[:0]
	for _, ts := range bucket {
		if !ts.Before(windowStart) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.maxRequests {
		l.buckets[key] = kept
		return appErr.New(appErr.ExecutionRateLimited)
	}

	l.buckets[key] = append(kept, now)
	return nil
}
