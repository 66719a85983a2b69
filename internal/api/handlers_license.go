package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"crypto-trading-saas/internal/auth"
	"crypto-trading-saas/internal/license"
	"crypto-trading-saas/internal/licensing"
	"crypto-trading-saas/internal/plans"
)

// handleValidateCode validates a subscription/desktop code offline (format
// and checksum only, no database row required)
// POST /api/license/validate
func (s *Server) handleValidateCode(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	result := license.Validate(req.Code)
	if !result.Valid {
		c.JSON(http.StatusOK, result)
		return
	}

	// Well-formed code: overlay the persisted state if we have it
	lc, err := s.repo.GetLicenseCode(c.Request.Context(), req.Code)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not validate code, please try again",
		})
		return
	}

	resp := gin.H{
		"valid":     true,
		"plan_tier": result.PlanTier,
	}
	if lc != nil {
		resp["is_active"] = lc.IsActive
		resp["activated"] = lc.ActivatedAt != nil
	}
	c.JSON(http.StatusOK, resp)
}

// handleValidateForexKey validates a forex EA key against the persisted
// record and returns the entitlement decision
// POST /api/license/forex/validate
func (s *Server) handleValidateForexKey(c *gin.Context) {
	var req struct {
		LicenseKey string `json:"license_key" binding:"required"`
		MachineID  string `json:"machine_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	lic, err := s.licensing.ValidateForexKey(c.Request.Context(), req.LicenseKey, req.MachineID, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		if errors.Is(err, licensing.ErrLicenseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"valid":   false,
				"message": "license key not found",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"valid":   false,
			"message": err.Error(),
		})
		return
	}

	decision := s.evaluator.EvaluateForex(lic, time.Now())
	c.JSON(http.StatusOK, gin.H{
		"valid":     true,
		"plan_type": lic.PlanType,
		"decision":  decision,
	})
}

// handleRecordForexTrade records one EA trade against a forex key
// POST /api/license/forex/trade
func (s *Server) handleRecordForexTrade(c *gin.Context) {
	var req struct {
		LicenseKey string `json:"license_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	if !license.ValidateForexKeyFormat(req.LicenseKey) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "INVALID_KEY",
			"message": "invalid license key format",
		})
		return
	}

	decision, err := s.counter.RecordForexTrade(c.Request.Context(), req.LicenseKey)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not record trade, please try again",
		})
		return
	}

	if !decision.Allowed {
		c.JSON(http.StatusForbidden, decision)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// handleActivateDesktop performs the desktop code activation with machine
// binding. Re-activation from the bound machine succeeds; any other
// machine gets a conflict reason.
// POST /api/license/desktop/activate
func (s *Server) handleActivateDesktop(c *gin.Context) {
	var req struct {
		Code      string `json:"code" binding:"required"`
		MachineID string `json:"machine_id" binding:"required"`
		Wallet    string `json:"wallet"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	result, err := s.licensing.ActivateDesktop(c.Request.Context(), req.Code, req.MachineID, req.Wallet, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not activate license, please try again",
		})
		return
	}

	if !result.Allowed {
		c.JSON(http.StatusConflict, result)
		return
	}

	s.eventBus.PublishLicenseActivated(req.Code, req.MachineID)
	c.JSON(http.StatusOK, result)
}

// handleListForexLicenses returns the caller's forex licenses
// GET /api/forex/licenses
func (s *Server) handleListForexLicenses(c *gin.Context) {
	userID := auth.GetUserID(c)

	licenses, err := s.repo.GetForexLicensesByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not load licenses, please try again",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"licenses": licenses})
}

// handleRenewForexLicense extends a monthly key by 30 days from
// max(current expiry, now)
// POST /api/forex/licenses/:key/renew
func (s *Server) handleRenewForexLicense(c *gin.Context) {
	key := c.Param("key")
	userID := auth.GetUserID(c)

	// The key must belong to the caller
	lic, err := s.repo.GetForexLicenseByKey(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not load license, please try again",
		})
		return
	}
	if lic == nil || lic.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "NOT_FOUND",
			"message": "license key not found",
		})
		return
	}

	newExpiry, err := s.licensing.RenewForexLicense(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, licensing.ErrNotMonthly) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "NOT_RENEWABLE",
				"message": licensing.ErrNotMonthly.Error(),
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not renew license, please try again",
		})
		return
	}

	s.eventBus.PublishLicenseRenewed(key, newExpiry)
	c.JSON(http.StatusOK, gin.H{"new_expires_at": newExpiry})
}

// handleIssueCode mints a license code (admin only)
// POST /api/admin/codes
func (s *Server) handleIssueCode(c *gin.Context) {
	var req struct {
		PlanTier     string     `json:"plan_tier" binding:"required"`
		BillingCycle string     `json:"billing_cycle" binding:"required"`
		ExpiresAt    *time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	lc, err := s.licensing.IssueCode(c.Request.Context(),
		plans.PlanTier(req.PlanTier), plans.BillingCycle(req.BillingCycle), req.ExpiresAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "ISSUE_FAILED",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, lc)
}

// handleListCodes lists issued codes (admin only)
// GET /api/admin/codes
func (s *Server) handleListCodes(c *gin.Context) {
	tier := plans.PlanTier(c.Query("tier"))

	codes, err := s.repo.ListLicenseCodes(c.Request.Context(), tier, 100)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not list codes, please try again",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

// handleRevokeCode deactivates a code (admin only)
// DELETE /api/admin/codes/:code
func (s *Server) handleRevokeCode(c *gin.Context) {
	if err := s.repo.DeactivateLicenseCode(c.Request.Context(), c.Param("code")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "NOT_FOUND",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "code revoked"})
}

// handleCodeStats summarizes issued codes (admin only)
// GET /api/admin/codes/stats
func (s *Server) handleCodeStats(c *gin.Context) {
	stats, err := s.repo.GetLicenseCodeStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "STORE_UNAVAILABLE",
			"message": "could not load stats, please try again",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// handleBillingWebhook receives signed payment-provider events
// POST /api/billing/webhook
func (s *Server) handleBillingWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	signature := c.GetHeader("Webhook-Signature")
	if err := s.billing.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
