package cache

import (
	"context"

	"crypto-trading-saas/internal/entitlement"
)

// EntitlementCache stores short-lived entitlement snapshots for quota
// displays. Misses and Redis outages are normal; callers fall back to a
// fresh evaluation against the database.
type EntitlementCache struct {
	cache *CacheService
}

// NewEntitlementCache creates an entitlement snapshot cache.
func NewEntitlementCache(cache *CacheService) *EntitlementCache {
	return &EntitlementCache{cache: cache}
}

// GetDecision returns the cached decision for a user, or found=false on a
// miss or cache outage.
func (e *EntitlementCache) GetDecision(ctx context.Context, userID string) (entitlement.Decision, bool) {
	if e == nil || e.cache == nil {
		return entitlement.Decision{}, false
	}

	var decision entitlement.Decision
	if err := e.cache.GetJSON(ctx, EntitlementKey(userID), &decision); err != nil {
		return entitlement.Decision{}, false
	}
	return decision, true
}

// PutDecision stores a decision snapshot. Failures are dropped; the cache
// is never load-bearing.
func (e *EntitlementCache) PutDecision(ctx context.Context, userID string, decision entitlement.Decision) {
	if e == nil || e.cache == nil {
		return
	}
	_ = e.cache.SetJSON(ctx, EntitlementKey(userID), decision, DefaultEntitlementTTL)
}

// Invalidate drops the snapshot after a recorded trade or plan change so
// the next display read recomputes.
func (e *EntitlementCache) Invalidate(ctx context.Context, userID string) {
	if e == nil || e.cache == nil {
		return
	}
	_ = e.cache.Delete(ctx, EntitlementKey(userID))
}
