package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"crypto-trading-saas/internal/plans"
)

const subscriptionColumns = `
	id, user_id, COALESCE(wallet_address, ''), plan_tier, plan_version, billing_cycle,
	status, start_date, end_date, auto_renew, daily_trades_used, daily_trades_reset_at,
	total_trades_used, timezone, created_at, updated_at
`

func scanSubscription(row pgx.Row) (*UserSubscription, error) {
	sub := &UserSubscription{}
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.WalletAddress, &sub.PlanTier, &sub.PlanVersion,
		&sub.BillingCycle, &sub.Status, &sub.StartDate, &sub.EndDate, &sub.AutoRenew,
		&sub.DailyTradesUsed, &sub.DailyTradesResetAt, &sub.TotalTradesUsed,
		&sub.Timezone, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// GetSubscriptionByUserID retrieves a user's subscription
func (r *Repository) GetSubscriptionByUserID(ctx context.Context, userID string) (*UserSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`

	sub, err := scanSubscription(r.db.Pool.QueryRow(ctx, query, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

// CreateSubscription inserts a new subscription row
func (r *Repository) CreateSubscription(ctx context.Context, sub *UserSubscription) error {
	query := `
		INSERT INTO subscriptions (
			user_id, wallet_address, plan_tier, plan_version, billing_cycle, status,
			start_date, end_date, auto_renew, daily_trades_used, daily_trades_reset_at,
			total_trades_used, timezone
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		sub.UserID,
		sub.WalletAddress,
		sub.PlanTier,
		sub.PlanVersion,
		sub.BillingCycle,
		sub.Status,
		sub.StartDate,
		sub.EndDate,
		sub.AutoRenew,
		sub.DailyTradesUsed,
		sub.DailyTradesResetAt,
		sub.TotalTradesUsed,
		sub.Timezone,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

// CreateDefaultSubscription provisions the free-tier subscription every new
// user starts on. The far-future end date stands in for "does not expire".
func (r *Repository) CreateDefaultSubscription(ctx context.Context, userID string, catalogVersion int) (*UserSubscription, error) {
	now := time.Now().UTC()
	sub := &UserSubscription{
		UserID:             userID,
		PlanTier:           plans.TierFree,
		PlanVersion:        catalogVersion,
		BillingCycle:       plans.CycleMonthly,
		Status:             StatusActive,
		StartDate:          now,
		EndDate:            now.AddDate(100, 0, 0),
		DailyTradesResetAt: now,
		Timezone:           "UTC",
	}

	if err := r.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return sub, nil
}

// UpdateSubscription loads the user's subscription row under a row lock,
// applies fn to it, and persists the mutated fields in the same transaction.
// This is the atomic check-and-increment primitive: two concurrent callers
// serialize on the row, so a quota check and the increment it authorizes
// cannot interleave with another caller's.
func (r *Repository) UpdateSubscription(ctx context.Context, userID string, fn func(*UserSubscription) error) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 FOR UPDATE`

	sub, err := scanSubscription(tx.QueryRow(ctx, query, userID))
	if err == pgx.ErrNoRows {
		return fmt.Errorf("subscription not found for user %s", userID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock subscription: %w", err)
	}

	if err := fn(sub); err != nil {
		return err
	}

	update := `
		UPDATE subscriptions SET
			plan_tier = $2, plan_version = $3, billing_cycle = $4, status = $5,
			start_date = $6, end_date = $7, auto_renew = $8,
			daily_trades_used = $9, daily_trades_reset_at = $10, total_trades_used = $11,
			timezone = $12, updated_at = NOW()
		WHERE user_id = $1
	`

	_, err = tx.Exec(ctx, update,
		userID,
		sub.PlanTier,
		sub.PlanVersion,
		sub.BillingCycle,
		sub.Status,
		sub.StartDate,
		sub.EndDate,
		sub.AutoRenew,
		sub.DailyTradesUsed,
		sub.DailyTradesResetAt,
		sub.TotalTradesUsed,
		sub.Timezone,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	return tx.Commit(ctx)
}

// ExpireLapsedSubscriptions flips active subscriptions past their end date to
// expired. Lifetime subscriptions are skipped.
func (r *Repository) ExpireLapsedSubscriptions(ctx context.Context) (int64, error) {
	query := `
		UPDATE subscriptions
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND billing_cycle != $3 AND end_date < NOW()
	`

	tag, err := r.db.Pool.Exec(ctx, query, StatusExpired, StatusActive, plans.CycleLifetime)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}

	return tag.RowsAffected(), nil
}

// CountSubscriptionsByTier returns subscription counts grouped by plan tier
func (r *Repository) CountSubscriptionsByTier(ctx context.Context) (map[plans.PlanTier]int, error) {
	query := `SELECT plan_tier, COUNT(*) FROM subscriptions GROUP BY plan_tier`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	defer rows.Close()

	counts := make(map[plans.PlanTier]int)
	for rows.Next() {
		var tier plans.PlanTier
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, err
		}
		counts[tier] = count
	}

	return counts, rows.Err()
}
