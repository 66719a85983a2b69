package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"crypto-trading-saas/internal/plans"
)

const licenseCodeColumns = `
	id, code, plan_tier, created_at, expires_at, activated_at,
	COALESCE(activated_by, ''), COALESCE(machine_id, ''), is_active
`

func scanLicenseCode(row pgx.Row) (*LicenseCode, error) {
	lc := &LicenseCode{}
	err := row.Scan(
		&lc.ID, &lc.Code, &lc.PlanTier, &lc.CreatedAt, &lc.ExpiresAt,
		&lc.ActivatedAt, &lc.ActivatedBy, &lc.MachineID, &lc.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return lc, nil
}

// CreateLicenseCode inserts a newly issued code
func (r *Repository) CreateLicenseCode(ctx context.Context, lc *LicenseCode) error {
	query := `
		INSERT INTO license_codes (code, plan_tier, expires_at, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		lc.Code,
		lc.PlanTier,
		lc.ExpiresAt,
		lc.IsActive,
	).Scan(&lc.ID, &lc.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create license code: %w", err)
	}

	return nil
}

// GetLicenseCode retrieves a code record
func (r *Repository) GetLicenseCode(ctx context.Context, code string) (*LicenseCode, error) {
	query := `SELECT ` + licenseCodeColumns + ` FROM license_codes WHERE code = $1`

	lc, err := scanLicenseCode(r.db.Pool.QueryRow(ctx, query, code))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license code: %w", err)
	}

	return lc, nil
}

// ListLicenseCodes returns codes, optionally filtered by tier, newest first
func (r *Repository) ListLicenseCodes(ctx context.Context, tier plans.PlanTier, limit int) ([]*LicenseCode, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + licenseCodeColumns + ` FROM license_codes`
	args := []interface{}{}
	if tier != "" {
		query += ` WHERE plan_tier = $1`
		args = append(args, tier)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list license codes: %w", err)
	}
	defer rows.Close()

	var codes []*LicenseCode
	for rows.Next() {
		lc, err := scanLicenseCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, lc)
	}

	return codes, rows.Err()
}

// BindLicenseCodeMachine records the first activation of a desktop code. The
// WHERE clause makes the bind compare-and-set: it succeeds when the code is
// unbound or already bound to this same machine, so re-activation from the
// bound machine is a no-op and activation from any other machine changes
// nothing. Returns whether a row matched.
func (r *Repository) BindLicenseCodeMachine(ctx context.Context, code, machineID, activatedBy string) (bool, error) {
	query := `
		UPDATE license_codes
		SET machine_id = $2,
			activated_by = CASE WHEN activated_at IS NULL THEN $3 ELSE activated_by END,
			activated_at = COALESCE(activated_at, NOW())
		WHERE code = $1 AND is_active = true
			AND (machine_id IS NULL OR machine_id = '' OR machine_id = $2)
	`

	tag, err := r.db.Pool.Exec(ctx, query, code, machineID, activatedBy)
	if err != nil {
		return false, fmt.Errorf("failed to bind license code: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeactivateLicenseCode revokes a code
func (r *Repository) DeactivateLicenseCode(ctx context.Context, code string) error {
	query := `UPDATE license_codes SET is_active = false WHERE code = $1`

	tag, err := r.db.Pool.Exec(ctx, query, code)
	if err != nil {
		return fmt.Errorf("failed to deactivate license code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("license code not found: %s", code)
	}

	return nil
}

// LogLicenseUsage records a validation or activation attempt
func (r *Repository) LogLicenseUsage(ctx context.Context, entry *LicenseUsageLog) error {
	query := `
		INSERT INTO license_usage_logs (credential, machine_id, ip, user_agent, success, message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		entry.Credential,
		entry.MachineID,
		entry.IP,
		entry.UserAgent,
		entry.Success,
		entry.Message,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to log license usage: %w", err)
	}

	return nil
}

// LicenseCodeStats summarizes issued codes for the admin dashboard
type LicenseCodeStats struct {
	Total     int `json:"total"`
	Activated int `json:"activated"`
	Active    int `json:"active"`
	Revoked   int `json:"revoked"`
}

// GetLicenseCodeStats aggregates code counts
func (r *Repository) GetLicenseCodeStats(ctx context.Context) (*LicenseCodeStats, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE activated_at IS NOT NULL),
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE NOT is_active)
		FROM license_codes
	`

	stats := &LicenseCodeStats{}
	err := r.db.Pool.QueryRow(ctx, query).Scan(
		&stats.Total, &stats.Activated, &stats.Active, &stats.Revoked,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get license code stats: %w", err)
	}

	return stats, nil
}
