package ratelimit

import (
	"sync"
	"testing"
	"time"

	appErr "codequest/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func expectRateLimited(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected rate limit error, got nil")
	}
	if appErr.GetCode(err) != appErr.ExecutionRateLimited {
		t.Fatalf("expected ExecutionRateLimited, got %v", err)
	}
}

func TestLimiterAllowsUpToMax(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiterWithClock(3, time.Minute, clock.Now)

	for i := 0; i < 3; i++ {
		if err := limiter.Check("1.2.3.4"); err != nil {
			t.Fatalf("request %d unexpectedly limited: %v", i+1, err)
		}
	}
	expectRateLimited(t, limiter.Check("1.2.3.4"))
}

func TestLimiterWindowSlides(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiterWithClock(2, time.Minute, clock.Now)

	if err := limiter.Check("k"); err != nil {
		t.Fatalf("first request limited: %v", err)
	}
	clock.Advance(30 * time.Second)
	if err := limiter.Check("k"); err != nil {
		t.Fatalf("second request limited: %v", err)
	}
	expectRateLimited(t, limiter.Check("k"))

	// The first request falls out of the window.
	clock.Advance(31 * time.Second)
	if err := limiter.Check("k"); err != nil {
		t.Fatalf("request after window slide limited: %v", err)
	}
}

func TestLimiterRejectedRequestNotCounted(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiterWithClock(1, time.Minute, clock.Now)

	if err := limiter.Check("k"); err != nil {
		t.Fatalf("first request limited: %v", err)
	}
	for i := 0; i < 5; i++ {
		expectRateLimited(t, limiter.Check("k"))
	}

	// Only the accepted request occupies the window.
	clock.Advance(61 * time.Second)
	if err := limiter.Check("k"); err != nil {
		t.Fatalf("request after expiry limited: %v", err)
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiterWithClock(1, time.Minute, clock.Now)

	if err := limiter.Check("a"); err != nil {
		t.Fatalf("key a limited: %v", err)
	}
	if err := limiter.Check("b"); err != nil {
		t.Fatalf("key b limited: %v", err)
	}
	expectRateLimited(t, limiter.Check("a"))
}
