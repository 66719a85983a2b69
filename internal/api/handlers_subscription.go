package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crypto-trading-saas/internal/auth"
	"crypto-trading-saas/internal/database"
	"crypto-trading-saas/internal/plans"
)

// handleListPlans returns the plan catalog with pricing
// GET /api/plans
func (s *Server) handleListPlans(c *gin.Context) {
	type planView struct {
		Tier     plans.PlanTier     `json:"tier"`
		Features plans.PlanFeatures `json:"features"`
		Pricing  plans.Pricing      `json:"pricing"`
		Monthly  string             `json:"monthly_display"`
		Savings  int64              `json:"yearly_savings_cents"`
	}

	out := make([]planView, 0, len(plans.AllTiers))
	for _, tier := range plans.AllTiers {
		pricing := s.catalog.GetPricing(tier)
		out = append(out, planView{
			Tier:     tier,
			Features: s.catalog.GetPlan(tier),
			Pricing:  pricing,
			Monthly:  plans.FormatPrice(pricing.MonthlyCents),
			Savings:  s.catalog.CalculateSavings(tier),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"catalog_version": s.catalog.Version(),
		"plans":           out,
	})
}

// handleGetSubscription returns the user's subscription record
// GET /api/subscription
func (s *Server) handleGetSubscription(c *gin.Context) {
	userID := auth.GetUserID(c)

	sub, err := s.repo.GetSubscriptionByUserID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not load subscription, please try again",
		})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "NO_SUBSCRIPTION",
			"message": "no subscription found for user",
		})
		return
	}

	c.JSON(http.StatusOK, sub)
}

// handleCancelSubscription turns off auto-renew and marks the subscription
// cancelled. The record is never deleted; a cancelled subscription keeps
// trading until its paid-through date under the evaluator's status rules.
// POST /api/subscription/cancel
func (s *Server) handleCancelSubscription(c *gin.Context) {
	userID := auth.GetUserID(c)

	err := s.repo.UpdateSubscription(c.Request.Context(), userID, func(sub *database.UserSubscription) error {
		sub.Status = database.StatusCancelled
		sub.AutoRenew = false
		return nil
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not cancel subscription, please try again",
		})
		return
	}

	s.entitlementCache.Invalidate(c.Request.Context(), userID)
	s.eventBus.PublishSubscriptionUpdated(userID, "", string(database.StatusCancelled))

	c.JSON(http.StatusOK, gin.H{"message": "subscription cancelled"})
}

// handleResumeSubscription reverses a cancellation while the paid period
// still runs
// POST /api/subscription/resume
func (s *Server) handleResumeSubscription(c *gin.Context) {
	userID := auth.GetUserID(c)

	err := s.repo.UpdateSubscription(c.Request.Context(), userID, func(sub *database.UserSubscription) error {
		if sub.Status == database.StatusCancelled {
			sub.Status = database.StatusActive
			sub.AutoRenew = sub.BillingCycle != plans.CycleLifetime
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not resume subscription, please try again",
		})
		return
	}

	s.entitlementCache.Invalidate(c.Request.Context(), userID)
	s.eventBus.PublishSubscriptionUpdated(userID, "", string(database.StatusActive))

	c.JSON(http.StatusOK, gin.H{"message": "subscription resumed"})
}

// handleLinkWallet records the user's trading wallet on the subscription
// POST /api/wallet
func (s *Server) handleLinkWallet(c *gin.Context) {
	userID := auth.GetUserID(c)

	var req auth.LinkWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	err := s.repo.UpdateSubscription(c.Request.Context(), userID, func(sub *database.UserSubscription) error {
		sub.WalletAddress = req.WalletAddress
		return nil
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not link wallet, please try again",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "wallet linked"})
}

// handleSubscriptionStats returns subscription counts by tier
// GET /api/admin/subscriptions/stats
func (s *Server) handleSubscriptionStats(c *gin.Context) {
	counts, err := s.repo.CountSubscriptionsByTier(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not load stats, please try again",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"by_tier": counts})
}
