package diagnose

import (
	"context"
	"fmt"

	"github.com/Jeffreasy/MarketplaceOps/internal/report"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

// EscrowCheck verifies that payments, payouts and bookings agree on where
// the money is.
type EscrowCheck struct {
	opts Options
}

func (c *EscrowCheck) Name() string { return "escrow" }

func (c *EscrowCheck) Description() string {
	return "held payments, releases without payouts, payout amounts and stuck releases"
}

func (c *EscrowCheck) Run(ctx context.Context, db storage.DB) ([]Finding, error) {
	staleBefore := c.opts.now().Add(-c.opts.StaleEscrow)

	return runRules(ctx, db, c.Name(), []rule{
		{
			query: `
				SELECT p.id, b.id
				FROM payments p
				JOIN bookings b ON b.id = p.booking_id
				WHERE p.status = 'ESCROW' AND b.status = 'CANCELLED'`,
			level: report.LevelFail,
			clean: "no funds held for cancelled bookings",
			message: func(row []string) string {
				return fmt.Sprintf("held in escrow but booking %s is cancelled (expected REFUNDED)", row[1])
			},
		},
		{
			query: `
				SELECT p.id
				FROM payments p
				LEFT JOIN payouts o ON o.payment_id = p.id
				WHERE p.status = 'RELEASED' AND o.id IS NULL`,
			level: report.LevelFail,
			clean: "every released payment has a payout",
			message: func(row []string) string {
				return "released without a payout record"
			},
		},
		{
			query: `
				SELECT o.id, p.status
				FROM payouts o
				JOIN payments p ON p.id = o.payment_id
				WHERE o.status = 'COMPLETED' AND p.status <> 'RELEASED'`,
			level: report.LevelFail,
			clean: "completed payouts only exist for released payments",
			message: func(row []string) string {
				return fmt.Sprintf("payout completed while payment is %s", row[1])
			},
		},
		{
			query: `
				SELECT o.id, o.amount, p.amount - COALESCE(p.platform_fee, p.amount * $1 / 10000)
				FROM payouts o
				JOIN payments p ON p.id = o.payment_id
				WHERE o.amount > p.amount - COALESCE(p.platform_fee, p.amount * $1 / 10000)`,
			args:  []any{c.opts.PlatformFeeBPS},
			level: report.LevelFail,
			clean: "no payout exceeds payment minus platform fee",
			message: func(row []string) string {
				return fmt.Sprintf("payout amount %s exceeds releasable %s", row[1], row[2])
			},
		},
		{
			query: `
				SELECT b.id, p.id, b.updated_at
				FROM bookings b
				JOIN payments p ON p.booking_id = b.id
				WHERE b.status = 'COMPLETED' AND p.status = 'ESCROW' AND b.updated_at < $1`,
			args:  []any{staleBefore},
			level: report.LevelWarn,
			clean: fmt.Sprintf("no completed booking has funds held longer than %s", c.opts.StaleEscrow),
			message: func(row []string) string {
				return fmt.Sprintf("completed since %s but payment %s still in escrow", row[2], row[1])
			},
		},
		{
			query: `
				SELECT b.id
				FROM bookings b
				WHERE b.status = 'AWAITING_CONFIRMATION'
				  AND NOT EXISTS (SELECT 1 FROM job_proofs j WHERE j.booking_id = b.id)`,
			level: report.LevelWarn,
			clean: "every booking awaiting confirmation has job proof",
			message: func(row []string) string {
				return "awaiting confirmation without job proof"
			},
		},
	})
}
