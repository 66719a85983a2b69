package entitlement

import (
	"context"
	"errors"
	"time"

	"crypto-trading-saas/internal/database"
	"crypto-trading-saas/internal/license"
	"crypto-trading-saas/internal/plans"
)

// SubscriptionStore is the transactional update primitive the counter needs.
// Implementations must run fn against a row held under a lock (or equivalent
// serialization) and persist the mutated record only when fn returns nil.
type SubscriptionStore interface {
	UpdateSubscription(ctx context.Context, userID string, fn func(*database.UserSubscription) error) error
}

// ForexStore is the transactional update primitive for forex licenses.
type ForexStore interface {
	UpdateForexLicense(ctx context.Context, key string, fn func(*database.ForexLicense) error) error
}

// errDenied aborts the store transaction when the entitlement check fails,
// so a denial never persists a reset or an increment.
var errDenied = errors.New("entitlement denied")

// Counter owns all writes to the trade counters. The limit check, the lazy
// reset, and the increment happen inside one store transaction, so N racing
// calls against limit L produce at most L increments.
type Counter struct {
	subs      SubscriptionStore
	forex     ForexStore
	evaluator *Evaluator
}

// NewCounter creates a trade counter over the given stores.
func NewCounter(subs SubscriptionStore, forex ForexStore, evaluator *Evaluator) *Counter {
	return &Counter{subs: subs, forex: forex, evaluator: evaluator}
}

// RecordTrade re-validates entitlement and increments the appropriate
// counter for one executed trade. The returned decision carries the
// post-increment remaining count. A non-nil error means the store failed;
// infrastructure failure is never reported as a denial.
func (c *Counter) RecordTrade(ctx context.Context, userID string) (Decision, error) {
	var decision Decision

	err := c.subs.UpdateSubscription(ctx, userID, func(sub *database.UserSubscription) error {
		now := time.Now()
		decision = c.evaluator.Evaluate(sub, now)
		if !decision.Allowed {
			return errDenied
		}

		features := c.evaluator.catalog.GetPlan(sub.PlanTier)

		if sub.PlanTier == plans.TierFree {
			sub.TotalTradesUsed++
			if features.TotalTradeLimit != plans.Unlimited {
				remaining := features.TotalTradeLimit - sub.TotalTradesUsed
				decision.RemainingTrades = &remaining
			}
			return nil
		}

		if features.DailyTradeLimit != plans.Unlimited {
			// Evaluate already applied the lazy reset against this locked row.
			sub.DailyTradesUsed++
			remaining := features.DailyTradeLimit - sub.DailyTradesUsed
			decision.RemainingTrades = &remaining
		}
		return nil
	})

	if errors.Is(err, errDenied) {
		return decision, nil
	}
	if err != nil {
		return Decision{}, err
	}

	return decision, nil
}

// RecordForexTrade re-validates a forex license and advances its daily
// counter. Monthly keys roll the count at UTC midnight; lifetime keys are
// not counted at all.
func (c *Counter) RecordForexTrade(ctx context.Context, key string) (Decision, error) {
	var decision Decision

	err := c.forex.UpdateForexLicense(ctx, key, func(lic *database.ForexLicense) error {
		now := time.Now()
		decision = c.evaluator.EvaluateForex(lic, now)
		if !decision.Allowed {
			return errDenied
		}

		if lic.PlanType == license.ForexPlanLifetime {
			return nil
		}

		if lic.LastTradeDate == nil || !sameUTCDay(*lic.LastTradeDate, now) {
			lic.TradesUsedToday = 0
		}
		lic.TradesUsedToday++
		lic.LastTradeDate = &now

		remaining := ForexMonthlyDailyLimit - lic.TradesUsedToday
		decision.RemainingTrades = &remaining
		return nil
	})

	if errors.Is(err, errDenied) {
		return decision, nil
	}
	if err != nil {
		return Decision{}, err
	}

	return decision, nil
}
