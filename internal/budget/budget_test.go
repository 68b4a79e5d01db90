package budget

import (
	"testing"
	"time"
)

func testLimits() Limits {
	return Limits{DailyLimit: 5.0, RequestLimit: 0.05, CheaperAtShare: 0.8}
}

func TestAddCost_AccumulatesBothTotals(t *testing.T) {
	tr := NewCostTracker(testLimits())
	tr.AddCost(0.01)
	tr.AddCost(0.02)

	u := tr.GetUsage()
	if u.TotalCost != 0.03 {
		t.Fatalf("expected total 0.03, got %f", u.TotalCost)
	}
	if u.DailyCost != 0.03 {
		t.Fatalf("expected daily 0.03, got %f", u.DailyCost)
	}
}

func TestDailyReset_LeavesTotalUntouched(t *testing.T) {
	current := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	tr := NewCostTracker(testLimits())
	tr.now = func() time.Time { return current }
	tr.lastResetDate = tr.today()

	tr.AddCost(4.0)

	// Cross the calendar-day boundary; the next write sees a fresh day.
	current = time.Date(2025, 6, 2, 0, 30, 0, 0, time.UTC)
	tr.AddCost(0.5)

	u := tr.GetUsage()
	if u.DailyCost != 0.5 {
		t.Fatalf("daily should reflect only today's spend, got %f", u.DailyCost)
	}
	if u.TotalCost != 4.5 {
		t.Fatalf("all-time total should not reset, got %f", u.TotalCost)
	}
}

func TestShouldUseCheaperModel_Threshold(t *testing.T) {
	tr := NewCostTracker(testLimits())
	tr.AddCost(3.99)
	if tr.ShouldUseCheaperModel() {
		t.Fatal("below 80%% of the daily limit, primary model expected")
	}
	tr.AddCost(0.01)
	if !tr.ShouldUseCheaperModel() {
		t.Fatal("at 80%% of the daily limit the cheaper model must be selected")
	}
}

func TestShouldUseCheaperModel_ResetsNextDay(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewCostTracker(testLimits())
	tr.now = func() time.Time { return current }
	tr.lastResetDate = tr.today()

	tr.AddCost(4.5)
	if !tr.ShouldUseCheaperModel() {
		t.Fatal("over threshold, cheaper model expected")
	}

	current = current.Add(24 * time.Hour)
	if tr.ShouldUseCheaperModel() {
		t.Fatal("a new day resets the daily counter, primary model expected")
	}
}

func TestIsWithinRequestLimit(t *testing.T) {
	tr := NewCostTracker(testLimits())
	if !tr.IsWithinRequestLimit(0.05) {
		t.Fatal("estimate equal to the cap is allowed")
	}
	if tr.IsWithinRequestLimit(0.051) {
		t.Fatal("estimate over the cap must be rejected")
	}
}
