package database

import (
	"time"

	"crypto-trading-saas/internal/license"
	"crypto-trading-saas/internal/plans"
)

// SubscriptionStatus represents the status of a subscription or license.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusPending   SubscriptionStatus = "pending"
)

// PaymentStatus tracks the payment-provider outcome for a forex license.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// User represents a platform user. Admin access is an explicit role on the
// record, resolved into the JWT at login, never an email comparison.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"` // Never serialize
	Name          string     `json:"name,omitempty"`
	WalletAddress string     `json:"wallet_address,omitempty"`
	IsAdmin       bool       `json:"is_admin"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// UserSession represents an active session with a refresh token.
type UserSession struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	RefreshTokenHash string     `json:"-"` // Never serialize
	IPAddress        string     `json:"ip_address,omitempty"`
	UserAgent        string     `json:"user_agent,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       time.Time  `json:"last_used_at"`
}

// UserSubscription is the single mutable entitlement record per user.
// Rows are never hard-deleted; lifecycle moves through Status only.
type UserSubscription struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	WalletAddress      string             `json:"wallet_address,omitempty"`
	PlanTier           plans.PlanTier     `json:"plan_tier"`
	PlanVersion        int                `json:"plan_version"`
	BillingCycle       plans.BillingCycle `json:"billing_cycle"`
	Status             SubscriptionStatus `json:"status"`
	StartDate          time.Time          `json:"start_date"`
	EndDate            time.Time          `json:"end_date"` // ignored for lifetime billing
	AutoRenew          bool               `json:"auto_renew"`
	DailyTradesUsed    int                `json:"daily_trades_used"`
	DailyTradesResetAt time.Time          `json:"daily_trades_reset_at"`
	TotalTradesUsed    int                `json:"total_trades_used"` // trial tier only
	Timezone           string             `json:"timezone"`          // IANA zone for the daily reset boundary
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// ForexLicense is the parallel entitlement for the externally sold desktop
// EA product. The key is globally unique and immutable once issued.
type ForexLicense struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id"`
	LicenseKey      string             `json:"license_key"`
	PlanType        license.ForexPlan  `json:"plan_type"`
	Status          SubscriptionStatus `json:"status"`
	TradesUsedToday int                `json:"trades_used_today"`
	LastTradeDate   *time.Time         `json:"last_trade_date,omitempty"`
	ExpiresAt       *time.Time         `json:"expires_at,omitempty"` // nil for lifetime
	PaymentStatus   PaymentStatus      `json:"payment_status"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// LicenseCode is a desktop-activation code. Once ActivatedAt/MachineID are
// set on a desktop-tier code it stays bound to that machine; only support
// clears the binding out-of-band.
type LicenseCode struct {
	ID          string         `json:"id"`
	Code        string         `json:"code"`
	PlanTier    plans.PlanTier `json:"plan_tier"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	ActivatedAt *time.Time     `json:"activated_at,omitempty"`
	ActivatedBy string         `json:"activated_by,omitempty"` // wallet address
	MachineID   string         `json:"machine_id,omitempty"`
	IsActive    bool           `json:"is_active"`
}

// LicenseUsageLog records a validation/activation attempt against a code or key.
type LicenseUsageLog struct {
	ID         string    `json:"id"`
	Credential string    `json:"credential"` // code or key, as presented
	MachineID  string    `json:"machine_id,omitempty"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Success    bool      `json:"success"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
