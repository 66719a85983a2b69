package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"crypto-trading-saas/internal/auth"
)

// handleCheckEntitlement reports whether the user may trade right now.
// The check is advisory: the lazy reset it computes is in-memory only, so
// back-to-back calls return identical results. A short-lived cached
// snapshot serves repeat display reads.
// GET /api/entitlement
func (s *Server) handleCheckEntitlement(c *gin.Context) {
	userID := auth.GetUserID(c)

	if cached, ok := s.entitlementCache.GetDecision(c.Request.Context(), userID); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	sub, err := s.repo.GetSubscriptionByUserID(c.Request.Context(), userID)
	if err != nil {
		// Persistence failure is never a denial
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not check entitlement, please try again",
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

	decision := s.evaluator.Evaluate(sub, time.Now())
	s.entitlementCache.PutDecision(c.Request.Context(), userID, decision)

	c.JSON(http.StatusOK, decision)
}

// handleRecordTrade records one executed trade against the user's quota.
// The entitlement re-check, lazy reset, and increment run atomically in
// the persistence layer. Denials are 403 with a reason; store failures
// are 503 and never read as denials.
// POST /api/trades
func (s *Server) handleRecordTrade(c *gin.Context) {
	userID := auth.GetUserID(c)

	decision, err := s.counter.RecordTrade(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not record trade, please try again",
		})
		return
	}

	s.entitlementCache.Invalidate(c.Request.Context(), userID)

	if !decision.Allowed {
		s.eventBus.PublishTradeDenied(userID, decision.Reason)
		c.JSON(http.StatusForbidden, decision)
		return
	}

	s.eventBus.PublishTradeRecorded(userID, decision.RemainingTrades)
	c.JSON(http.StatusOK, decision)
}
