package fixup

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

// StandardizeCategories upserts the canonical categories, moves services out
// of alias categories and deactivates non-canonical categories left empty.
func StandardizeCategories(catalog *Catalog) Fixup {
	return func(ctx context.Context, db storage.DB) (Result, error) {
		var res Result

		for _, cat := range catalog.Categories {
			r, err := db.ExecContext(ctx, `
				INSERT INTO service_categories (id, name, slug, description, is_active)
				VALUES ($1, $2, $3, $4, true)
				ON CONFLICT (slug) DO UPDATE
				SET name = EXCLUDED.name, description = EXCLUDED.description, is_active = true
				WHERE service_categories.name IS DISTINCT FROM EXCLUDED.name
				   OR service_categories.description IS DISTINCT FROM EXCLUDED.description
				   OR service_categories.is_active = false`,
				uuid.NewString(), cat.Name, cat.Slug, cat.Description,
			)
			if err != nil {
				return res, fmt.Errorf("failed to upsert category %s: %w", cat.Slug, err)
			}
			if err := res.add("upsert category", cat.Slug, r); err != nil {
				return res, err
			}

			// The slug itself catches case variants such as "Cleaning".
			for _, alias := range append([]string{cat.Slug}, cat.Aliases...) {
				r, err := db.ExecContext(ctx, `
					UPDATE services
					SET category_id = (SELECT id FROM service_categories WHERE slug = $1), updated_at = now()
					WHERE category_id IN (
						SELECT id FROM service_categories
						WHERE slug <> $1 AND (lower(slug) = lower($2) OR lower(name) = lower($2))
					)`, cat.Slug, alias)
				if err != nil {
					return res, fmt.Errorf("failed to move services from %q: %w", alias, err)
				}
				if err := res.add("move services", alias+" -> "+cat.Slug, r); err != nil {
					return res, err
				}
			}
		}

		slugs := catalog.CanonicalSlugs()
		args := make([]any, len(slugs))
		for i, s := range slugs {
			args[i] = s
		}
		r, err := db.ExecContext(ctx, `
			UPDATE service_categories SET is_active = false
			WHERE is_active = true
			  AND slug NOT IN (`+placeholders(1, len(slugs))+`)
			  AND NOT EXISTS (SELECT 1 FROM services s WHERE s.category_id = service_categories.id)`,
			args...,
		)
		if err != nil {
			return res, fmt.Errorf("failed to deactivate categories: %w", err)
		}
		if err := res.add("deactivate empty categories", "non-canonical", r); err != nil {
			return res, err
		}

		return res, nil
	}
}
