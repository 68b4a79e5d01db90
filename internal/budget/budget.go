// Package budget tracks completion-API spend against daily and per-request
// guardrails. The ledger lives for the process lifetime only; a restart
// starts from zero.
package budget

import (
	"sync"
	"time"
)

// Limits defines the spend guardrails for a tracker.
type Limits struct {
	DailyLimit     float64 // dollars per calendar day
	RequestLimit   float64 // dollars per single request
	CheaperAtShare float64 // fraction of DailyLimit at which to switch models
}

// CostTracker accumulates spend. The daily counter resets lazily: every
// read or write first compares today's date string with the stored reset
// date and zeroes the daily total on mismatch. The all-time total is
// monotonically non-decreasing.
type CostTracker struct {
	mu            sync.Mutex
	limits        Limits
	totalCost     float64
	dailyCost     float64
	lastResetDate string
	now           func() time.Time
}

// Usage is a point-in-time snapshot of the ledger.
type Usage struct {
	TotalCost  float64 `json:"total_cost"`
	DailyCost  float64 `json:"daily_cost"`
	DailyLimit float64 `json:"daily_limit"`
}

// NewCostTracker creates a tracker with the given limits.
func NewCostTracker(limits Limits) *CostTracker {
	t := &CostTracker{
		limits: limits,
		now:    time.Now,
	}
	t.lastResetDate = t.today()
	return t
}

func (t *CostTracker) today() string {
	return t.now().Format("2006-01-02")
}

// resetIfNewDay must be called with the mutex held.
func (t *CostTracker) resetIfNewDay() {
	if today := t.today(); today != t.lastResetDate {
		t.dailyCost = 0
		t.lastResetDate = today
	}
}

// AddCost records spend against both the daily and all-time totals.
func (t *CostTracker) AddCost(delta float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNewDay()
	t.dailyCost += delta
	t.totalCost += delta
}

// ShouldUseCheaperModel reports whether daily spend has crossed the
// configured share of the daily limit.
func (t *CostTracker) ShouldUseCheaperModel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNewDay()
	return t.dailyCost >= t.limits.CheaperAtShare*t.limits.DailyLimit
}

// IsWithinRequestLimit reports whether a single request's estimated cost
// fits under the per-request cap.
func (t *CostTracker) IsWithinRequestLimit(estimate float64) bool {
	return estimate <= t.limits.RequestLimit
}

// GetUsage returns the current ledger snapshot.
func (t *CostTracker) GetUsage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNewDay()
	return Usage{
		TotalCost:  t.totalCost,
		DailyCost:  t.dailyCost,
		DailyLimit: t.limits.DailyLimit,
	}
}
