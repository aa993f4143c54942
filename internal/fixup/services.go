package fixup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

var ErrUnknownCategory = errors.New("category not in catalog")

// EnsureServices inserts catalog services missing from their category and
// reactivates deactivated ones. only restricts the run to some category
// slugs; empty means all. Categories absent from the database are reported
// and skipped; run StandardizeCategories first.
func EnsureServices(catalog *Catalog, only []string) Fixup {
	return func(ctx context.Context, db storage.DB) (Result, error) {
		var res Result

		for _, slug := range only {
			if _, ok := catalog.Category(slug); !ok {
				return res, fmt.Errorf("%w: %s", ErrUnknownCategory, slug)
			}
		}

		for _, cat := range catalog.Categories {
			if len(only) > 0 && !slices.Contains(only, cat.Slug) {
				continue
			}

			var categoryID string
			err := db.QueryRowContext(ctx, `SELECT id FROM service_categories WHERE slug = $1`, cat.Slug).Scan(&categoryID)
			if errors.Is(err, sql.ErrNoRows) {
				res.Changes = append(res.Changes, Change{Action: "skipped, category missing", Target: cat.Slug})
				continue
			}
			if err != nil {
				return res, fmt.Errorf("failed to look up category %s: %w", cat.Slug, err)
			}

			for _, svc := range cat.Services {
				r, err := db.ExecContext(ctx, `
					INSERT INTO services (id, name, description, category_id, base_price, is_active, created_at, updated_at)
					SELECT $1, $2::text, $3, $4, $5, true, now(), now()
					WHERE NOT EXISTS (
						SELECT 1 FROM services WHERE category_id = $4 AND lower(name) = lower($2::text)
					)`,
					uuid.NewString(), svc.Name, svc.Description, categoryID, svc.BasePrice,
				)
				if err != nil {
					return res, fmt.Errorf("failed to insert service %q: %w", svc.Name, err)
				}
				if err := res.add("insert service", cat.Slug+"/"+svc.Name, r); err != nil {
					return res, err
				}

				r, err = db.ExecContext(ctx, `
					UPDATE services SET is_active = true, updated_at = now()
					WHERE category_id = $1 AND lower(name) = lower($2) AND is_active = false`,
					categoryID, svc.Name,
				)
				if err != nil {
					return res, fmt.Errorf("failed to reactivate service %q: %w", svc.Name, err)
				}
				if err := res.add("reactivate service", cat.Slug+"/"+svc.Name, r); err != nil {
					return res, err
				}
			}
		}
		return res, nil
	}
}
