package diagnose

import (
	"context"
	"fmt"

	"github.com/Jeffreasy/MarketplaceOps/internal/report"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

// BookingCheck reports the booking status breakdown and bookings whose state
// is not backed by a payment or an active service.
type BookingCheck struct{}

func (c *BookingCheck) Name() string { return "bookings" }

func (c *BookingCheck) Description() string {
	return "status breakdown, unpaid bookings past confirmation, bookings on inactive services"
}

func (c *BookingCheck) Run(ctx context.Context, db storage.DB) ([]Finding, error) {
	rows, err := queryStrings(ctx, db, `SELECT status, COUNT(*) FROM bookings GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("booking breakdown: %w", err)
	}

	findings := make([]Finding, 0, len(rows))
	for _, row := range rows {
		findings = append(findings, Finding{
			Check:   c.Name(),
			Level:   report.LevelOK,
			Subject: row[0],
			Message: row[1] + " bookings",
		})
	}

	rest, err := runRules(ctx, db, c.Name(), []rule{
		{
			query: `
				SELECT b.id, b.status
				FROM bookings b
				WHERE b.status IN ('IN_PROGRESS', 'AWAITING_CONFIRMATION', 'COMPLETED', 'DISPUTED')
				  AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.booking_id = b.id)`,
			level: report.LevelFail,
			clean: "every booking past confirmation has a payment",
			message: func(row []string) string {
				return fmt.Sprintf("%s without any payment", row[1])
			},
		},
		{
			query: `
				SELECT b.id, s.name
				FROM bookings b
				JOIN services s ON s.id = b.service_id
				WHERE s.is_active = false AND b.status IN ('PENDING', 'CONFIRMED')`,
			level: report.LevelWarn,
			clean: "no upcoming booking references an inactive service",
			message: func(row []string) string {
				return fmt.Sprintf("upcoming booking for inactive service %q", row[1])
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return append(findings, rest...), nil
}
