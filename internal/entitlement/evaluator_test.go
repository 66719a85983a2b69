package entitlement

import (
	"strings"
	"testing"
	"time"

	"crypto-trading-saas/internal/database"
	"crypto-trading-saas/internal/license"
	"crypto-trading-saas/internal/plans"
)

func testEvaluator() *Evaluator {
	return NewEvaluator(plans.DefaultCatalog())
}

func activeSub(tier plans.PlanTier) *database.UserSubscription {
	now := time.Now()
	return &database.UserSubscription{
		UserID:             "user-1",
		PlanTier:           tier,
		PlanVersion:        plans.CurrentCatalogVersion,
		BillingCycle:       plans.CycleMonthly,
		Status:             database.StatusActive,
		StartDate:          now.Add(-24 * time.Hour),
		EndDate:            now.Add(30 * 24 * time.Hour),
		DailyTradesResetAt: NextLocalMidnight(now, "UTC"),
		Timezone:           "UTC",
	}
}

// TestEvaluateFreeTrialExhaustedBeforeStatus the trial total check runs
// before everything else, so an exhausted trial reads as "subscribe", not
// "inactive", even on a non-active record
func TestEvaluateFreeTrialExhaustedBeforeStatus(t *testing.T) {
	e := testEvaluator()
	total := e.catalog.GetPlan(plans.TierFree).TotalTradeLimit

	sub := activeSub(plans.TierFree)
	sub.Status = database.StatusExpired
	sub.TotalTradesUsed = total

	d := e.Evaluate(sub, time.Now())
	if d.Allowed {
		t.Fatal("exhausted trial should be denied")
	}
	if !strings.Contains(d.Reason, "subscribe") {
		t.Errorf("reason %q should point at upgrading, not status", d.Reason)
	}
}

func TestEvaluateFreeTierRemaining(t *testing.T) {
	e := testEvaluator()
	total := e.catalog.GetPlan(plans.TierFree).TotalTradeLimit

	sub := activeSub(plans.TierFree)
	sub.TotalTradesUsed = total - 2

	d := e.Evaluate(sub, time.Now())
	if !d.Allowed {
		t.Fatalf("trial with trades left should be allowed: %s", d.Reason)
	}
	if d.RemainingTrades == nil || *d.RemainingTrades != 2 {
		t.Errorf("RemainingTrades = %v, want 2", d.RemainingTrades)
	}
}

func TestEvaluateInactiveStatus(t *testing.T) {
	e := testEvaluator()

	for _, status := range []database.SubscriptionStatus{
		database.StatusExpired, database.StatusCancelled, database.StatusPending,
	} {
		sub := activeSub(plans.TierPro)
		sub.Status = status

		d := e.Evaluate(sub, time.Now())
		if d.Allowed {
			t.Errorf("status %s should be denied", status)
		}
		if d.Reason != "subscription not active" {
			t.Errorf("status %s reason = %q", status, d.Reason)
		}
		if d.RemainingTrades != nil {
			t.Errorf("status %s denied before quota check, RemainingTrades should be nil", status)
		}
	}
}

func TestEvaluateExpired(t *testing.T) {
	e := testEvaluator()

	sub := activeSub(plans.TierPro)
	sub.EndDate = time.Now().Add(-time.Hour)

	d := e.Evaluate(sub, time.Now())
	if d.Allowed {
		t.Fatal("expired subscription should be denied")
	}
	if d.Reason != "subscription expired" {
		t.Errorf("reason = %q", d.Reason)
	}
}

// TestEvaluateLifetimeIgnoresEndDate lifetime billing never expires no
// matter what EndDate holds
func TestEvaluateLifetimeIgnoresEndDate(t *testing.T) {
	e := testEvaluator()

	sub := activeSub(plans.TierPro)
	sub.BillingCycle = plans.CycleLifetime
	sub.EndDate = time.Now().Add(-365 * 24 * time.Hour)

	d := e.Evaluate(sub, time.Now())
	if !d.Allowed {
		t.Errorf("lifetime subscription denied: %s", d.Reason)
	}
}

func TestEvaluateDailyLimit(t *testing.T) {
	e := testEvaluator()
	limit := e.catalog.GetPlan(plans.TierStarter).DailyTradeLimit

	sub := activeSub(plans.TierStarter)
	sub.DailyTradesUsed = limit - 1

	d := e.Evaluate(sub, time.Now())
	if !d.Allowed {
		t.Fatalf("one trade left, should be allowed: %s", d.Reason)
	}
	if d.RemainingTrades == nil || *d.RemainingTrades != 1 {
		t.Errorf("RemainingTrades = %v, want 1", d.RemainingTrades)
	}

	sub.DailyTradesUsed = limit
	d = e.Evaluate(sub, time.Now())
	if d.Allowed {
		t.Fatal("at limit, should be denied")
	}
	if d.RemainingTrades == nil || *d.RemainingTrades != 0 {
		t.Errorf("denied at limit, RemainingTrades = %v, want 0", d.RemainingTrades)
	}
}

func TestEvaluateUnlimitedTier(t *testing.T) {
	e := testEvaluator()

	sub := activeSub(plans.TierElite)
	sub.DailyTradesUsed = 100000

	d := e.Evaluate(sub, time.Now())
	if !d.Allowed {
		t.Fatalf("elite should be unlimited: %s", d.Reason)
	}
	if d.RemainingTrades == nil || *d.RemainingTrades != plans.Unlimited {
		t.Errorf("RemainingTrades = %v, want -1 sentinel", d.RemainingTrades)
	}
}

// TestEvaluateLazyReset a check after the boundary zeroes the counter in
// memory and advances the boundary; a second check is a no-op
func TestEvaluateLazyReset(t *testing.T) {
	e := testEvaluator()
	limit := e.catalog.GetPlan(plans.TierStarter).DailyTradeLimit

	sub := activeSub(plans.TierStarter)
	sub.DailyTradesUsed = limit
	sub.DailyTradesResetAt = time.Now().Add(-time.Hour) // boundary passed

	now := time.Now()
	d := e.Evaluate(sub, now)
	if !d.Allowed {
		t.Fatalf("boundary passed, counter should have reset: %s", d.Reason)
	}
	if sub.DailyTradesUsed != 0 {
		t.Errorf("DailyTradesUsed = %d after reset, want 0", sub.DailyTradesUsed)
	}
	if !sub.DailyTradesResetAt.After(now) {
		t.Error("reset boundary should advance past now")
	}

	// Second evaluation before the new boundary must not reset again
	sub.DailyTradesUsed = 3
	boundary := sub.DailyTradesResetAt
	d = e.Evaluate(sub, now)
	if sub.DailyTradesUsed != 3 {
		t.Errorf("second check reset the counter, DailyTradesUsed = %d", sub.DailyTradesUsed)
	}
	if !sub.DailyTradesResetAt.Equal(boundary) {
		t.Error("second check moved the boundary")
	}
	if d.RemainingTrades == nil || *d.RemainingTrades != limit-3 {
		t.Errorf("RemainingTrades = %v, want %d", d.RemainingTrades, limit-3)
	}
}

// TestNextLocalMidnightDST spring-forward in America/New_York: the day of
// the transition is 23 hours long and naive +24h arithmetic would overshoot
func TestNextLocalMidnightDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}

	// 2025-03-09 02:00 EST jumps to 03:00 EDT
	beforeSpring := time.Date(2025, 3, 9, 1, 30, 0, 0, loc)
	next := NextLocalMidnight(beforeSpring, "America/New_York")

	want := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("NextLocalMidnight = %v, want %v", next, want)
	}
	if h := next.Sub(beforeSpring).Hours(); h != 21.5 {
		t.Errorf("interval = %v hours, want 21.5 on the 23-hour day", h)
	}

	// Fall-back day is 25 hours long
	beforeFall := time.Date(2025, 11, 2, 0, 30, 0, 0, loc)
	next = NextLocalMidnight(beforeFall, "America/New_York")
	want = time.Date(2025, 11, 3, 0, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("NextLocalMidnight = %v, want %v", next, want)
	}
}

func TestNextLocalMidnightInvalidZoneFallsBackUTC(t *testing.T) {
	at := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	next := NextLocalMidnight(at, "Not/AZone")

	want := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextLocalMidnight = %v, want %v", next, want)
	}
}

func activeForexLicense(plan license.ForexPlan) *database.ForexLicense {
	lic := &database.ForexLicense{
		UserID:        "user-1",
		LicenseKey:    "FX-MO-ABCDEF12-ABC123-XY9Z",
		PlanType:      plan,
		Status:        database.StatusActive,
		PaymentStatus: database.PaymentCompleted,
	}
	if plan == license.ForexPlanMonthly {
		expires := time.Now().Add(20 * 24 * time.Hour)
		lic.ExpiresAt = &expires
	}
	return lic
}

// TestEvaluateForexPaymentFirst payment problems outrank status and expiry
func TestEvaluateForexPaymentFirst(t *testing.T) {
	e := testEvaluator()

	lic := activeForexLicense(license.ForexPlanMonthly)
	lic.PaymentStatus = database.PaymentPending
	lic.Status = database.StatusExpired // would also fail, but payment wins

	d := e.EvaluateForex(lic, time.Now())
	if d.Allowed {
		t.Fatal("pending payment should be denied")
	}
	if !strings.Contains(d.Reason, "payment pending") {
		t.Errorf("reason = %q, want payment pending", d.Reason)
	}

	lic.PaymentStatus = database.PaymentFailed
	d = e.EvaluateForex(lic, time.Now())
	if !strings.Contains(d.Reason, "payment failed") {
		t.Errorf("reason = %q, want payment failed", d.Reason)
	}
}

func TestEvaluateForexLifetimeUnlimited(t *testing.T) {
	e := testEvaluator()

	lic := activeForexLicense(license.ForexPlanLifetime)
	lic.TradesUsedToday = 100000

	d := e.EvaluateForex(lic, time.Now())
	if !d.Allowed {
		t.Fatalf("lifetime key denied: %s", d.Reason)
	}
	if d.RemainingTrades == nil || *d.RemainingTrades != plans.Unlimited {
		t.Errorf("RemainingTrades = %v, want -1 sentinel", d.RemainingTrades)
	}
}

func TestEvaluateForexExpired(t *testing.T) {
	e := testEvaluator()

	lic := activeForexLicense(license.ForexPlanMonthly)
	expired := time.Now().Add(-time.Hour)
	lic.ExpiresAt = &expired

	d := e.EvaluateForex(lic, time.Now())
	if d.Allowed {
		t.Fatal("expired monthly key should be denied")
	}
	if !strings.Contains(d.Reason, "expired") {
		t.Errorf("reason = %q", d.Reason)
	}
}

// TestEvaluateForexUTCDayRollover yesterday's count does not carry into
// today; the rollover is a UTC calendar day, not a local one
func TestEvaluateForexUTCDayRollover(t *testing.T) {
	e := testEvaluator()

	lic := activeForexLicense(license.ForexPlanMonthly)
	lic.TradesUsedToday = ForexMonthlyDailyLimit
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	lic.LastTradeDate = &yesterday

	d := e.EvaluateForex(lic, time.Now())
	if !d.Allowed {
		t.Fatalf("yesterday's count should not block today: %s", d.Reason)
	}
	if d.RemainingTrades == nil || *d.RemainingTrades != ForexMonthlyDailyLimit {
		t.Errorf("RemainingTrades = %v, want full limit %d", d.RemainingTrades, ForexMonthlyDailyLimit)
	}
}

func TestEvaluateForexDailyLimit(t *testing.T) {
	e := testEvaluator()

	lic := activeForexLicense(license.ForexPlanMonthly)
	lic.TradesUsedToday = ForexMonthlyDailyLimit
	now := time.Now()
	lic.LastTradeDate = &now

	d := e.EvaluateForex(lic, now)
	if d.Allowed {
		t.Fatal("at daily limit, should be denied")
	}
	if d.RemainingTrades == nil || *d.RemainingTrades != 0 {
		t.Errorf("RemainingTrades = %v, want 0", d.RemainingTrades)
	}
}

func TestSameUTCDay(t *testing.T) {
	a := time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)
	b := time.Date(2025, 6, 16, 0, 1, 0, 0, time.UTC)
	if sameUTCDay(a, b) {
		t.Error("instants across UTC midnight are not the same day")
	}

	// 2025-06-15 20:00 EDT is 2025-06-16 00:00 UTC... check wall vs UTC
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	nyEvening := time.Date(2025, 6, 15, 21, 0, 0, 0, loc) // 01:00 UTC on the 16th
	utcMorning := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	if !sameUTCDay(nyEvening, utcMorning) {
		t.Error("comparison must use UTC dates, not wall-clock dates")
	}
}
