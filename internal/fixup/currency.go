package fixup

import (
	"context"
	"errors"
	"fmt"

	"github.com/Jeffreasy/MarketplaceOps/internal/market"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// BackfillCurrency sets missing payment currencies to currency and
// normalises case and whitespace of the rest.
func BackfillCurrency(currency string) Fixup {
	return func(ctx context.Context, db storage.DB) (Result, error) {
		var res Result
		if !market.IsSupportedCurrency(currency) {
			return res, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
		}

		r, err := db.ExecContext(ctx, `
			UPDATE payments SET currency = $1
			WHERE currency IS NULL OR btrim(currency) = ''`, currency)
		if err != nil {
			return res, fmt.Errorf("failed to backfill currency: %w", err)
		}
		if err := res.add("backfill missing currency", currency, r); err != nil {
			return res, err
		}

		r, err = db.ExecContext(ctx, `
			UPDATE payments SET currency = upper(btrim(currency))
			WHERE currency <> upper(btrim(currency))`)
		if err != nil {
			return res, fmt.Errorf("failed to normalise currency: %w", err)
		}
		if err := res.add("normalise currency codes", "payments", r); err != nil {
			return res, err
		}

		return res, nil
	}
}
