// Package licensing handles issuance, activation, and renewal of
// externally-sold licenses: forex EA keys and desktop activation codes.
package licensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"crypto-trading-saas/internal/database"
	"crypto-trading-saas/internal/license"
	"crypto-trading-saas/internal/plans"
)

// monthlyRenewalPeriod is the entitlement period bought by one monthly
// payment or renewal.
const monthlyRenewalPeriod = 30 * 24 * time.Hour

// keyMintAttempts bounds retries on the astronomically unlikely key collision.
const keyMintAttempts = 5

// ErrNotMonthly is returned when renewal is attempted on a non-monthly key.
var ErrNotMonthly = errors.New("only monthly licenses can be renewed")

// ErrLicenseNotFound is returned when no record exists for a presented key or code.
var ErrLicenseNotFound = errors.New("license not found")

// Store is the persistence surface the manager needs.
type Store interface {
	CreateForexLicense(ctx context.Context, lic *database.ForexLicense) error
	GetForexLicenseByKey(ctx context.Context, key string) (*database.ForexLicense, error)
	UpdateForexLicense(ctx context.Context, key string, fn func(*database.ForexLicense) error) error
	CreateLicenseCode(ctx context.Context, lc *database.LicenseCode) error
	GetLicenseCode(ctx context.Context, code string) (*database.LicenseCode, error)
	BindLicenseCodeMachine(ctx context.Context, code, machineID, activatedBy string) (bool, error)
	LogLicenseUsage(ctx context.Context, entry *database.LicenseUsageLog) error
}

// ActivationResult is the outcome of a desktop activation check or attempt.
type ActivationResult struct {
	Allowed  bool           `json:"allowed"`
	Reason   string         `json:"reason,omitempty"`
	PlanTier plans.PlanTier `json:"plan_tier,omitempty"`
}

// Manager owns the license lifecycle.
type Manager struct {
	store  Store
	logger zerolog.Logger
}

// NewManager creates a license lifecycle manager.
func NewManager(store Store, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With().Str("component", "licensing").Logger(),
	}
}

// CreateForexLicense mints a fresh forex license for a user whose payment
// the caller has already confirmed. Monthly keys expire 30 days out;
// lifetime keys never expire.
func (m *Manager) CreateForexLicense(ctx context.Context, userID string, plan license.ForexPlan) (*database.ForexLicense, error) {
	var lastErr error

	for attempt := 0; attempt < keyMintAttempts; attempt++ {
		key, err := license.GenerateForexKey(userID, plan)
		if err != nil {
			return nil, err
		}

		lic := &database.ForexLicense{
			UserID:        userID,
			LicenseKey:    key,
			PlanType:      plan,
			Status:        database.StatusActive,
			PaymentStatus: database.PaymentCompleted,
		}
		if plan == license.ForexPlanMonthly {
			expires := time.Now().Add(monthlyRenewalPeriod)
			lic.ExpiresAt = &expires
		}

		if err := m.store.CreateForexLicense(ctx, lic); err != nil {
			// Unique-key violation on the random suffix; mint again.
			lastErr = err
			continue
		}

		m.logger.Info().
			Str("user_id", userID).
			Str("plan_type", string(plan)).
			Msg("forex license created")
		return lic, nil
	}

	return nil, fmt.Errorf("failed to mint unique license key: %w", lastErr)
}

// RenewForexLicense extends a monthly key by 30 days. The new expiry is
// anchored at max(current expiry, now), so renewing early keeps the
// remaining days and renewing late does not backdate. A lapsed license
// comes back to active.
func (m *Manager) RenewForexLicense(ctx context.Context, key string) (time.Time, error) {
	var newExpiry time.Time

	err := m.store.UpdateForexLicense(ctx, key, func(lic *database.ForexLicense) error {
		if lic.PlanType != license.ForexPlanMonthly {
			return ErrNotMonthly
		}

		base := time.Now()
		if lic.ExpiresAt != nil && lic.ExpiresAt.After(base) {
			base = *lic.ExpiresAt
		}
		newExpiry = base.Add(monthlyRenewalPeriod)
		lic.ExpiresAt = &newExpiry
		lic.Status = database.StatusActive
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	m.logger.Info().
		Str("license_key", key).
		Time("new_expiry", newExpiry).
		Msg("forex license renewed")
	return newExpiry, nil
}

// ValidateForexKey checks a presented key against the persisted record and
// logs the attempt. Format failures never reach the store.
func (m *Manager) ValidateForexKey(ctx context.Context, key, machineID, ip, userAgent string) (*database.ForexLicense, error) {
	if !license.ValidateForexKeyFormat(key) {
		m.logUsage(ctx, key, machineID, ip, userAgent, false, "invalid key format")
		return nil, fmt.Errorf("invalid license key format")
	}

	lic, err := m.store.GetForexLicenseByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if lic == nil {
		m.logUsage(ctx, key, machineID, ip, userAgent, false, "unknown key")
		return nil, ErrLicenseNotFound
	}

	m.logUsage(ctx, key, machineID, ip, userAgent, true, "key validated")
	return lic, nil
}

// IssueCode mints and persists a license code for the given tier.
func (m *Manager) IssueCode(ctx context.Context, tier plans.PlanTier, cycle plans.BillingCycle, expiresAt *time.Time) (*database.LicenseCode, error) {
	code, err := license.Generate(tier, cycle)
	if err != nil {
		return nil, err
	}

	lc := &database.LicenseCode{
		Code:      code,
		PlanTier:  tier,
		ExpiresAt: expiresAt,
		IsActive:  true,
	}
	if err := m.store.CreateLicenseCode(ctx, lc); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("plan_tier", string(tier)).
		Str("code", code).
		Msg("license code issued")
	return lc, nil
}

// CheckDesktopActivation decides whether a desktop code may activate on the
// given machine. This is the idempotent check only; it writes nothing, so
// repeating it from the bound machine always succeeds.
func (m *Manager) CheckDesktopActivation(ctx context.Context, code, machineID string) (ActivationResult, error) {
	result := license.Validate(code)
	if !result.Valid {
		return ActivationResult{Allowed: false, Reason: result.Error}, nil
	}

	lc, err := m.store.GetLicenseCode(ctx, code)
	if err != nil {
		return ActivationResult{}, err
	}
	if lc == nil {
		return ActivationResult{Allowed: false, Reason: "license code not found"}, nil
	}

	if lc.PlanTier != plans.TierDesktop {
		return ActivationResult{Allowed: false, Reason: "code is not a desktop license"}, nil
	}
	if !lc.IsActive {
		return ActivationResult{Allowed: false, Reason: "license code has been revoked"}, nil
	}
	if lc.ExpiresAt != nil && time.Now().After(*lc.ExpiresAt) {
		return ActivationResult{Allowed: false, Reason: "license code expired"}, nil
	}
	if lc.MachineID != "" && lc.MachineID != machineID {
		return ActivationResult{Allowed: false, Reason: "license already activated on a different machine"}, nil
	}

	return ActivationResult{Allowed: true, PlanTier: lc.PlanTier}, nil
}

// ActivateDesktop performs the activation check and, when allowed, persists
// the machine binding. The binding write is a compare-and-set, so a race
// between two machines lets exactly one win; re-activation from the bound
// machine remains a success.
func (m *Manager) ActivateDesktop(ctx context.Context, code, machineID, wallet, ip, userAgent string) (ActivationResult, error) {
	result, err := m.CheckDesktopActivation(ctx, code, machineID)
	if err != nil {
		return ActivationResult{}, err
	}
	if !result.Allowed {
		m.logUsage(ctx, code, machineID, ip, userAgent, false, result.Reason)
		return result, nil
	}

	bound, err := m.store.BindLicenseCodeMachine(ctx, code, machineID, wallet)
	if err != nil {
		return ActivationResult{}, err
	}
	if !bound {
		// Lost the race to another machine between check and bind.
		reason := "license already activated on a different machine"
		m.logUsage(ctx, code, machineID, ip, userAgent, false, reason)
		return ActivationResult{Allowed: false, Reason: reason}, nil
	}

	m.logUsage(ctx, code, machineID, ip, userAgent, true, "desktop license activated")
	m.logger.Info().
		Str("code", code).
		Str("machine_id", machineID).
		Msg("desktop license activated")
	return result, nil
}

// logUsage records an attempt in the audit log. Audit failures are logged
// and dropped; they never change the caller's outcome.
func (m *Manager) logUsage(ctx context.Context, credential, machineID, ip, userAgent string, success bool, message string) {
	err := m.store.LogLicenseUsage(ctx, &database.LicenseUsageLog{
		Credential: credential,
		MachineID:  machineID,
		IP:         ip,
		UserAgent:  userAgent,
		Success:    success,
		Message:    message,
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("credential", credential).Msg("failed to write license usage log")
	}
}
