// Package billing consumes payment-provider confirmation webhooks and
// applies them to subscription and license records. Checkout/session
// creation lives entirely with the provider; this service only reacts to
// signed confirmations.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"crypto-trading-saas/internal/database"
	"crypto-trading-saas/internal/license"
	"crypto-trading-saas/internal/licensing"
	"crypto-trading-saas/internal/plans"
)

// WebhookEvent represents a payment-provider webhook event
type WebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Created int64           `json:"created"`
}

// WebhookObject represents the object wrapper in a webhook event
type WebhookObject struct {
	Object json.RawMessage `json:"object"`
}

// Service applies confirmed payment events to entitlement records
type Service struct {
	repo          *database.Repository
	licensing     *licensing.Manager
	catalog       *plans.Catalog
	webhookSecret string
}

// NewService creates a billing webhook service
func NewService(repo *database.Repository, lm *licensing.Manager, catalog *plans.Catalog, webhookSecret string) *Service {
	return &Service{
		repo:          repo,
		licensing:     lm,
		catalog:       catalog,
		webhookSecret: webhookSecret,
	}
}

// HandleWebhook verifies and processes a provider webhook event
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !s.verifyWebhookSignature(payload, signature) {
		return fmt.Errorf("invalid webhook signature")
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse webhook event: %w", err)
	}

	log.Printf("Processing payment webhook: %s", event.Type)

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event.Data)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event.Data)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event.Data)
	case "invoice.payment_failed":
		return s.handlePaymentFailed(ctx, event.Data)
	default:
		log.Printf("Unhandled webhook event type: %s", event.Type)
	}

	return nil
}

// checkoutSession is the slice of the provider's session object we care about
type checkoutSession struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Metadata struct {
		UserID    string `json:"user_id"`
		Product   string `json:"product"` // "subscription" or "forex_license"
		PlanTier  string `json:"plan_tier"`
		PlanType  string `json:"plan_type"` // forex: monthly|lifetime
		Cycle     string `json:"billing_cycle"`
		KeyToRenew string `json:"key_to_renew,omitempty"`
	} `json:"metadata"`
}

// handleCheckoutCompleted activates the purchased product
func (s *Service) handleCheckoutCompleted(ctx context.Context, data json.RawMessage) error {
	var obj WebhookObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	var session checkoutSession
	if err := json.Unmarshal(obj.Object, &session); err != nil {
		return err
	}

	switch session.Metadata.Product {
	case "forex_license":
		if session.Metadata.KeyToRenew != "" {
			_, err := s.licensing.RenewForexLicense(ctx, session.Metadata.KeyToRenew)
			return err
		}
		_, err := s.licensing.CreateForexLicense(ctx, session.Metadata.UserID, license.ForexPlan(session.Metadata.PlanType))
		return err

	case "subscription":
		return s.activateSubscription(ctx, session.Metadata.UserID,
			plans.PlanTier(session.Metadata.PlanTier), plans.BillingCycle(session.Metadata.Cycle))

	default:
		log.Printf("Checkout completed with unknown product %q, ignoring", session.Metadata.Product)
		return nil
	}
}

// activateSubscription moves the user's subscription onto the paid plan.
// The plan version is stamped from the current catalog so later catalog
// changes do not reprice this subscription mid-term.
func (s *Service) activateSubscription(ctx context.Context, userID string, tier plans.PlanTier, cycle plans.BillingCycle) error {
	if !s.catalog.IsValidTier(tier) {
		return fmt.Errorf("unknown plan tier in webhook: %s", tier)
	}
	if !plans.IsValidCycle(cycle) {
		return fmt.Errorf("unknown billing cycle in webhook: %s", cycle)
	}

	return s.repo.UpdateSubscription(ctx, userID, func(sub *database.UserSubscription) error {
		now := time.Now().UTC()
		sub.PlanTier = tier
		sub.PlanVersion = s.catalog.Version()
		sub.BillingCycle = cycle
		sub.Status = database.StatusActive
		sub.StartDate = now
		switch cycle {
		case plans.CycleMonthly:
			sub.EndDate = now.AddDate(0, 1, 0)
		case plans.CycleYearly:
			sub.EndDate = now.AddDate(1, 0, 0)
		case plans.CycleLifetime:
			sub.EndDate = now.AddDate(100, 0, 0)
		}
		sub.AutoRenew = cycle != plans.CycleLifetime
		return nil
	})
}

// handleSubscriptionUpdated extends the entitlement period on renewal
func (s *Service) handleSubscriptionUpdated(ctx context.Context, data json.RawMessage) error {
	var obj WebhookObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	var subEvent struct {
		Metadata struct {
			UserID string `json:"user_id"`
		} `json:"metadata"`
		Status           string `json:"status"`
		CurrentPeriodEnd int64  `json:"current_period_end"`
	}
	if err := json.Unmarshal(obj.Object, &subEvent); err != nil {
		return err
	}
	if subEvent.Metadata.UserID == "" {
		log.Printf("Subscription update without user_id metadata, ignoring")
		return nil
	}

	return s.repo.UpdateSubscription(ctx, subEvent.Metadata.UserID, func(sub *database.UserSubscription) error {
		if subEvent.Status == "active" {
			sub.Status = database.StatusActive
		}
		if subEvent.CurrentPeriodEnd > 0 {
			sub.EndDate = time.Unix(subEvent.CurrentPeriodEnd, 0).UTC()
		}
		return nil
	})
}

// handleSubscriptionDeleted cancels the subscription at the provider's word
func (s *Service) handleSubscriptionDeleted(ctx context.Context, data json.RawMessage) error {
	var obj WebhookObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	var subEvent struct {
		Metadata struct {
			UserID string `json:"user_id"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(obj.Object, &subEvent); err != nil {
		return err
	}
	if subEvent.Metadata.UserID == "" {
		return nil
	}

	return s.repo.UpdateSubscription(ctx, subEvent.Metadata.UserID, func(sub *database.UserSubscription) error {
		sub.Status = database.StatusCancelled
		sub.AutoRenew = false
		return nil
	})
}

// handlePaymentFailed parks the subscription in pending until payment clears
func (s *Service) handlePaymentFailed(ctx context.Context, data json.RawMessage) error {
	var obj WebhookObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	var invoice struct {
		ID       string `json:"id"`
		Metadata struct {
			UserID     string `json:"user_id"`
			LicenseKey string `json:"license_key"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(obj.Object, &invoice); err != nil {
		return err
	}

	if invoice.Metadata.LicenseKey != "" {
		return s.repo.MarkForexPaymentStatus(ctx, invoice.Metadata.LicenseKey, database.PaymentFailed)
	}
	if invoice.Metadata.UserID == "" {
		return nil
	}

	return s.repo.UpdateSubscription(ctx, invoice.Metadata.UserID, func(sub *database.UserSubscription) error {
		sub.Status = database.StatusPending
		return nil
	})
}

// verifyWebhookSignature verifies the provider's webhook signature header
// of the form "t=<timestamp>,v1=<hex hmac>[,v1=...]".
func (s *Service) verifyWebhookSignature(payload []byte, signatureHeader string) bool {
	if s.webhookSecret == "" {
		return true // Skip verification if no secret configured (dev mode)
	}

	parts := strings.Split(signatureHeader, ",")
	var timestamp string
	var signatures []string

	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	signedPayload := timestamp + "." + string(payload)
	h := hmac.New(sha256.New, []byte(s.webhookSecret))
	h.Write([]byte(signedPayload))
	expectedSig := hex.EncodeToString(h.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expectedSig)) {
			return true
		}
	}

	return false
}
