package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const forexLicenseColumns = `
	id, user_id, license_key, plan_type, status, trades_used_today,
	last_trade_date, expires_at, payment_status, created_at, updated_at
`

func scanForexLicense(row pgx.Row) (*ForexLicense, error) {
	lic := &ForexLicense{}
	err := row.Scan(
		&lic.ID, &lic.UserID, &lic.LicenseKey, &lic.PlanType, &lic.Status,
		&lic.TradesUsedToday, &lic.LastTradeDate, &lic.ExpiresAt,
		&lic.PaymentStatus, &lic.CreatedAt, &lic.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return lic, nil
}

// CreateForexLicense inserts a new forex license
func (r *Repository) CreateForexLicense(ctx context.Context, lic *ForexLicense) error {
	query := `
		INSERT INTO forex_licenses (user_id, license_key, plan_type, status, expires_at, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		lic.UserID,
		lic.LicenseKey,
		lic.PlanType,
		lic.Status,
		lic.ExpiresAt,
		lic.PaymentStatus,
	).Scan(&lic.ID, &lic.CreatedAt, &lic.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create forex license: %w", err)
	}

	return nil
}

// GetForexLicenseByKey retrieves a forex license by its key
func (r *Repository) GetForexLicenseByKey(ctx context.Context, key string) (*ForexLicense, error) {
	query := `SELECT ` + forexLicenseColumns + ` FROM forex_licenses WHERE license_key = $1`

	lic, err := scanForexLicense(r.db.Pool.QueryRow(ctx, query, key))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get forex license: %w", err)
	}

	return lic, nil
}

// GetForexLicensesByUser lists a user's forex licenses, newest first
func (r *Repository) GetForexLicensesByUser(ctx context.Context, userID string) ([]*ForexLicense, error) {
	query := `SELECT ` + forexLicenseColumns + ` FROM forex_licenses WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list forex licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*ForexLicense
	for rows.Next() {
		lic, err := scanForexLicense(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, lic)
	}

	return licenses, rows.Err()
}

// UpdateForexLicense loads the license row under a row lock, applies fn, and
// persists the mutated fields in the same transaction. Same contract as
// UpdateSubscription: check and increment cannot interleave.
func (r *Repository) UpdateForexLicense(ctx context.Context, key string, fn func(*ForexLicense) error) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + forexLicenseColumns + ` FROM forex_licenses WHERE license_key = $1 FOR UPDATE`

	lic, err := scanForexLicense(tx.QueryRow(ctx, query, key))
	if err == pgx.ErrNoRows {
		return fmt.Errorf("forex license not found: %s", key)
	}
	if err != nil {
		return fmt.Errorf("failed to lock forex license: %w", err)
	}

	if err := fn(lic); err != nil {
		return err
	}

	update := `
		UPDATE forex_licenses SET
			plan_type = $2, status = $3, trades_used_today = $4, last_trade_date = $5,
			expires_at = $6, payment_status = $7, updated_at = NOW()
		WHERE license_key = $1
	`

	_, err = tx.Exec(ctx, update,
		key,
		lic.PlanType,
		lic.Status,
		lic.TradesUsedToday,
		lic.LastTradeDate,
		lic.ExpiresAt,
		lic.PaymentStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to update forex license: %w", err)
	}

	return tx.Commit(ctx)
}

// MarkForexPaymentStatus updates only the payment status for a license key
func (r *Repository) MarkForexPaymentStatus(ctx context.Context, key string, status PaymentStatus) error {
	query := `UPDATE forex_licenses SET payment_status = $2, updated_at = NOW() WHERE license_key = $1`

	tag, err := r.db.Pool.Exec(ctx, query, key, status)
	if err != nil {
		return fmt.Errorf("failed to mark payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("forex license not found: %s", key)
	}

	return nil
}
