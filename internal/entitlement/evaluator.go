// Package entitlement decides whether a user or license may trade right now.
// The evaluator is pure over its inputs except for the lazy daily reset,
// which mutates the in-memory record; persisting that mutation is the trade
// counter's job, inside the same transaction as the increment it authorizes.
package entitlement

import (
	"fmt"
	"time"

	"crypto-trading-saas/internal/database"
	"crypto-trading-saas/internal/license"
	"crypto-trading-saas/internal/plans"
)

// Decision is the outcome of an entitlement check. RemainingTrades is
// tri-state: nil means not computed (denied before the quota check ran),
// -1 means unlimited, anything else is the literal remaining count.
type Decision struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason,omitempty"`
	RemainingTrades *int   `json:"remaining_trades,omitempty"`
}

// ForexMonthlyDailyLimit caps trades per UTC calendar day on the monthly
// forex plan. Lifetime keys are uncapped.
const ForexMonthlyDailyLimit = 20

// Evaluator answers trade-permission questions against a plan catalog.
type Evaluator struct {
	catalog *plans.Catalog
}

// NewEvaluator creates an evaluator bound to a catalog version.
func NewEvaluator(catalog *plans.Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// Evaluate decides whether the subscription may trade at instant now.
// Checks run in strict order and the first failure wins. When the daily
// reset boundary has passed, the counter fields on sub are reset in memory;
// the caller that records a trade must persist that reset atomically with
// the increment.
func (e *Evaluator) Evaluate(sub *database.UserSubscription, now time.Time) Decision {
	features := e.catalog.GetPlan(sub.PlanTier)

	// Trial tier is judged on its lifetime total before anything else, so an
	// exhausted trial reads as "upgrade" rather than "inactive".
	if sub.PlanTier == plans.TierFree {
		if features.TotalTradeLimit != plans.Unlimited && sub.TotalTradesUsed >= features.TotalTradeLimit {
			return Decision{
				Allowed: false,
				Reason: fmt.Sprintf("free trial limit of %d trades reached, subscribe to continue trading",
					features.TotalTradeLimit),
			}
		}
		remaining := features.TotalTradeLimit - sub.TotalTradesUsed
		if features.TotalTradeLimit == plans.Unlimited {
			remaining = plans.Unlimited
		}
		return Decision{Allowed: true, RemainingTrades: &remaining}
	}

	if sub.Status != database.StatusActive {
		return Decision{Allowed: false, Reason: "subscription not active"}
	}

	if sub.BillingCycle != plans.CycleLifetime && now.After(sub.EndDate) {
		return Decision{Allowed: false, Reason: "subscription expired"}
	}

	if features.DailyTradeLimit != plans.Unlimited {
		applyLazyReset(sub, now)

		if sub.DailyTradesUsed >= features.DailyTradeLimit {
			zero := 0
			return Decision{
				Allowed: false,
				Reason: fmt.Sprintf("daily limit of %d trades reached, resets at next local midnight",
					features.DailyTradeLimit),
				RemainingTrades: &zero,
			}
		}
		remaining := features.DailyTradeLimit - sub.DailyTradesUsed
		return Decision{Allowed: true, RemainingTrades: &remaining}
	}

	unlimited := plans.Unlimited
	return Decision{Allowed: true, RemainingTrades: &unlimited}
}

// EvaluateForex decides whether a forex license may trade at instant now.
// Payment problems block before status or expiry is even considered.
// Lifetime keys are always unlimited with no counter maintenance.
func (e *Evaluator) EvaluateForex(lic *database.ForexLicense, now time.Time) Decision {
	switch lic.PaymentStatus {
	case database.PaymentPending:
		return Decision{Allowed: false, Reason: "payment pending, complete payment to activate license"}
	case database.PaymentFailed:
		return Decision{Allowed: false, Reason: "payment failed, update payment method to restore access"}
	}

	if lic.Status != database.StatusActive {
		return Decision{Allowed: false, Reason: "license not active"}
	}

	if lic.PlanType == license.ForexPlanLifetime {
		unlimited := plans.Unlimited
		return Decision{Allowed: true, RemainingTrades: &unlimited}
	}

	if lic.ExpiresAt != nil && now.After(*lic.ExpiresAt) {
		return Decision{Allowed: false, Reason: "license expired, renew to continue trading"}
	}

	used := lic.TradesUsedToday
	if lic.LastTradeDate == nil || !sameUTCDay(*lic.LastTradeDate, now) {
		used = 0
	}

	if used >= ForexMonthlyDailyLimit {
		zero := 0
		return Decision{
			Allowed:         false,
			Reason:          fmt.Sprintf("daily limit of %d trades reached, resets at UTC midnight", ForexMonthlyDailyLimit),
			RemainingTrades: &zero,
		}
	}

	remaining := ForexMonthlyDailyLimit - used
	return Decision{Allowed: true, RemainingTrades: &remaining}
}

// applyLazyReset zeroes the daily counter once the reset boundary has passed
// and advances the boundary to the next local midnight. Calling it again
// before the new boundary is a no-op, so back-to-back checks agree.
func applyLazyReset(sub *database.UserSubscription, now time.Time) {
	if !now.After(sub.DailyTradesResetAt) {
		return
	}
	sub.DailyTradesUsed = 0
	sub.DailyTradesResetAt = NextLocalMidnight(now, sub.Timezone)
}

// NextLocalMidnight returns the wall-clock midnight immediately following t
// in the named IANA zone. Calendar arithmetic keeps it correct across DST
// transitions where a naive +24h would land at 23:00 or 01:00. Unknown zone
// names fall back to UTC.
func NextLocalMidnight(t time.Time, tz string) time.Time {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

// sameUTCDay reports whether two instants fall on the same UTC calendar day.
// The forex counter deliberately rolls over at UTC midnight, not the user's
// local midnight; see the subscription path for the timezone-aware variant.
func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
