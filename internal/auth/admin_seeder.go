package auth

import (
	"context"
	"fmt"
	"log"

	"crypto-trading-saas/internal/database"
)

// SeedAdminRole grants the admin role to the configured admin account at
// startup. Admin access is the is_admin flag on the user record, resolved
// into the JWT at login; nothing in the request path compares emails.
// A missing account is not an error, the operator may not have registered yet.
func SeedAdminRole(ctx context.Context, repo *database.Repository, adminEmail string) error {
	if adminEmail == "" {
		return nil
	}

	user, err := repo.GetUserByEmail(ctx, adminEmail)
	if err != nil {
		return fmt.Errorf("failed to look up admin account: %w", err)
	}
	if user == nil {
		log.Printf("Admin account %s not registered yet, skipping role seed", adminEmail)
		return nil
	}

	if user.IsAdmin {
		return nil
	}

	if err := repo.SetUserAdmin(ctx, user.ID, true); err != nil {
		return fmt.Errorf("failed to grant admin role: %w", err)
	}

	log.Printf("Granted admin role to user %s", user.ID)
	return nil
}
