package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether a caller may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// WindowLimiter allows a fixed number of requests per subject in each
// one-minute window.
type WindowLimiter struct {
	rpm int
	now func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewWindowLimiter creates a limiter. rpm <= 0 disables limiting.
func NewWindowLimiter(rpm int) *WindowLimiter {
	return &WindowLimiter{
		rpm:      rpm,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// Allow returns ErrTooManyRequests once the subject exceeds its budget for
// the current window.
func (l *WindowLimiter) Allow(_ context.Context, identity *Identity) error {
	if l.rpm <= 0 || identity == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[identity.Subject]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		l.counters[identity.Subject] = &counter{count: 1, windowAt: now}
		return nil
	}

	c.count++
	if c.count > l.rpm {
		return ErrTooManyRequests
	}
	return nil
}
