// Package ratelimit implements a fixed-window request throttle shared by
// the enrichment pipeline and the HTTP API.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count     int
	resetTime time.Time
}

// Limiter is a per-key fixed-window rate limiter. A new window starts the
// first time a request arrives after the previous window's reset time; it
// does not slide continuously.
type Limiter struct {
	mu          sync.Mutex
	windows     map[string]*window
	maxRequests int
	windowSize  time.Duration
	now         func() time.Time
}

// New creates a limiter allowing maxRequests per windowSize per key.
func New(maxRequests int, windowSize time.Duration) *Limiter {
	return &Limiter{
		windows:     make(map[string]*window),
		maxRequests: maxRequests,
		windowSize:  windowSize,
		now:         time.Now,
	}
}

// IsAllowed reports whether another request under key fits in the current
// window, counting it if so. Once a window is full further calls are
// denied without incrementing the counter.
func (l *Limiter) IsAllowed(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetTime) {
		l.windows[key] = &window{count: 1, resetTime: now.Add(l.windowSize)}
		return true
	}
	if w.count >= l.maxRequests {
		return false
	}
	w.count++
	return true
}

// GetRemaining returns how many requests are left in key's current window.
func (l *Limiter) GetRemaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !l.now().Before(w.resetTime) {
		return l.maxRequests
	}
	remaining := l.maxRequests - w.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetResetTime returns when key's current window resets. The zero time is
// returned when no window is active.
func (l *Limiter) GetResetTime(key string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		return time.Time{}
	}
	return w.resetTime
}

// Reset discards key's window.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// ResetAll discards every window.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string]*window)
}

// Cleanup purges windows whose reset time has passed. Expired windows are
// already treated as absent by IsAllowed, so this is memory hygiene only.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	purged := 0
	for key, w := range l.windows {
		if !now.Before(w.resetTime) {
			delete(l.windows, key)
			purged++
		}
	}
	return purged
}
