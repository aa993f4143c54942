package diagnose

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Jeffreasy/MarketplaceOps/internal/market"
	"github.com/Jeffreasy/MarketplaceOps/internal/report"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

// CurrencyCheck verifies the currency and amount columns of payments.
type CurrencyCheck struct {
	opts Options
}

func (c *CurrencyCheck) Name() string { return "currency" }

func (c *CurrencyCheck) Description() string {
	return "payment currency codes, non-positive amounts and booking total mismatches"
}

const currencyDistributionQuery = `
	SELECT COALESCE(currency, 'NULL') AS currency, COUNT(*)
	FROM payments
	GROUP BY currency
	ORDER BY COUNT(*) DESC`

func (c *CurrencyCheck) Run(ctx context.Context, db storage.DB) ([]Finding, error) {
	rows, err := queryStrings(ctx, db, currencyDistributionQuery)
	if err != nil {
		return nil, fmt.Errorf("currency distribution: %w", err)
	}

	var findings []Finding
	add := func(level report.Level, subject, msg string) {
		findings = append(findings, Finding{Check: c.Name(), Level: level, Subject: subject, Message: msg})
	}

	if len(rows) == 0 {
		add(report.LevelInfo, "", "no payments recorded")
	}

	for _, row := range rows {
		code, count := row[0], row[1]
		n, _ := strconv.Atoi(count)
		normalized := market.NormalizeCurrency(code)

		switch {
		case code == "NULL" || normalized == "":
			add(report.LevelFail, "", fmt.Sprintf("%d payments have no currency (fix with: opsctl fix currency)", n))
		case !market.IsSupportedCurrency(normalized):
			add(report.LevelFail, code, fmt.Sprintf("%d payments use unsupported currency", n))
		case code != normalized:
			add(report.LevelWarn, code, fmt.Sprintf("%d payments use non-canonical code, expected %q", n, normalized))
		case c.opts.DefaultCurrency != "" && code != c.opts.DefaultCurrency:
			add(report.LevelInfo, code, fmt.Sprintf("%d payments in %s, default is %s", n, code, c.opts.DefaultCurrency))
		default:
			add(report.LevelOK, code, fmt.Sprintf("%d payments", n))
		}
	}

	rest, err := runRules(ctx, db, c.Name(), []rule{
		{
			query: `SELECT id, amount FROM payments WHERE amount <= 0 ORDER BY created_at DESC`,
			level: report.LevelFail,
			clean: "all payment amounts are positive",
			message: func(row []string) string {
				return fmt.Sprintf("non-positive amount %s", row[1])
			},
		},
		{
			query: `
				SELECT p.id, p.amount, b.total_amount, COALESCE(p.currency, '')
				FROM payments p
				JOIN bookings b ON b.id = p.booking_id
				WHERE p.amount <> b.total_amount
				ORDER BY p.created_at DESC`,
			level: report.LevelWarn,
			clean: "payment amounts match booking totals",
			message: func(row []string) string {
				paid, _ := strconv.ParseInt(row[1], 10, 64)
				total, _ := strconv.ParseInt(row[2], 10, 64)
				cur := market.NormalizeCurrency(row[3])
				if cur == "" {
					cur = c.opts.DefaultCurrency
				}
				return fmt.Sprintf("paid %s but booking total is %s",
					market.FormatAmount(cur, paid), market.FormatAmount(cur, total))
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return append(findings, rest...), nil
}
