// Package search wraps the Google Custom Search API with quota discipline
// for best-effort enrichment grounding.
package search

import (
	"sync"
	"time"
)

// QuotaTracker counts external searches against a free-tier daily limit.
// Like the cost ledger, the counter resets lazily on the calendar-day
// boundary and is never persisted. Quota is consumed after a successful
// call completes, not reserved beforehand, so concurrent in-flight
// searches can transiently overshoot the limit; that race is accepted.
type QuotaTracker struct {
	mu            sync.Mutex
	dailySearches int
	limit         int
	lastResetDate string
	now           func() time.Time
}

// QuotaUsage is a snapshot of the day's consumption.
type QuotaUsage struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// NewQuotaTracker creates a tracker bounded by limit searches per day.
func NewQuotaTracker(limit int) *QuotaTracker {
	t := &QuotaTracker{
		limit: limit,
		now:   time.Now,
	}
	t.lastResetDate = t.today()
	return t
}

func (t *QuotaTracker) today() string {
	return t.now().Format("2006-01-02")
}

// resetIfNewDay must be called with the mutex held.
func (t *QuotaTracker) resetIfNewDay() {
	if today := t.today(); today != t.lastResetDate {
		t.dailySearches = 0
		t.lastResetDate = today
	}
}

// CanSearch reports whether quota remains for today.
func (t *QuotaTracker) CanSearch() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNewDay()
	return t.dailySearches < t.limit
}

// RecordSearch consumes one unit of quota.
func (t *QuotaTracker) RecordSearch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNewDay()
	t.dailySearches++
}

// GetRemaining returns how many searches are left today.
func (t *QuotaTracker) GetRemaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNewDay()
	remaining := t.limit - t.dailySearches
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetUsage returns the current quota snapshot.
func (t *QuotaTracker) GetUsage() QuotaUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNewDay()
	remaining := t.limit - t.dailySearches
	if remaining < 0 {
		remaining = 0
	}
	return QuotaUsage{Used: t.dailySearches, Limit: t.limit, Remaining: remaining}
}
