package fixup

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Jeffreasy/MarketplaceOps/internal/diagnose"
	"github.com/Jeffreasy/MarketplaceOps/internal/market"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

// PatchEnums adds enum values the application writes but the database lacks.
// Missing types are reported and left to Prisma migrations. Needs
// PostgreSQL 12 or later, which allows ADD VALUE inside a transaction.
func PatchEnums(schema string) Fixup {
	return func(ctx context.Context, db storage.DB) (Result, error) {
		var res Result

		actual, err := diagnose.Enums(ctx, db, schema)
		if err != nil {
			return res, err
		}

		for _, d := range diagnose.EnumDrift(actual, market.EnumValues) {
			if d.TypeMissing {
				res.Changes = append(res.Changes, Change{Action: "skipped, type missing", Target: d.Type})
				continue
			}
			for _, value := range d.Missing {
				stmt := fmt.Sprintf("ALTER TYPE %s ADD VALUE IF NOT EXISTS %s",
					pgx.Identifier{schema, d.Type}.Sanitize(), quoteLiteral(value))
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					return res, fmt.Errorf("failed to add %s.%s: %w", d.Type, value, err)
				}
				// ALTER TYPE reports no row count.
				res.Changes = append(res.Changes, Change{Action: "add enum value", Target: d.Type + "." + value, Rows: 1})
			}
		}
		return res, nil
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
