package diagnose

import (
	"context"
	"fmt"

	"github.com/Jeffreasy/MarketplaceOps/internal/report"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

// ProviderCheck verifies provider accounts can receive work and payouts.
type ProviderCheck struct{}

func (c *ProviderCheck) Name() string { return "providers" }

func (c *ProviderCheck) Description() string {
	return "payout recipients, unapproved providers with bookings, provider user roles"
}

func (c *ProviderCheck) Run(ctx context.Context, db storage.DB) ([]Finding, error) {
	return runRules(ctx, db, c.Name(), []rule{
		{
			query: `
				SELECT id, business_name
				FROM providers
				WHERE status = 'APPROVED'
				  AND (paystack_recipient_code IS NULL OR paystack_recipient_code = '')`,
			level: report.LevelWarn,
			clean: "every approved provider has a Paystack transfer recipient",
			message: func(row []string) string {
				return fmt.Sprintf("%s has no transfer recipient; payouts will fail", row[1])
			},
		},
		{
			query: `
				SELECT p.id, p.status, COUNT(b.id)
				FROM providers p
				JOIN bookings b ON b.provider_id = p.id
				WHERE p.status <> 'APPROVED'
				GROUP BY p.id, p.status`,
			level: report.LevelWarn,
			clean: "only approved providers hold bookings",
			message: func(row []string) string {
				return fmt.Sprintf("status %s but has %s bookings", row[1], row[2])
			},
		},
		{
			query: `
				SELECT p.id, u.email, u.role
				FROM providers p
				JOIN users u ON u.id = p.user_id
				WHERE u.role <> 'PROVIDER'`,
			level: report.LevelFail,
			clean: "every provider account has the PROVIDER role",
			message: func(row []string) string {
				return fmt.Sprintf("user %s has role %s", row[1], row[2])
			},
		},
	})
}
