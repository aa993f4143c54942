package diagnose

import (
	"context"
	"fmt"

	"github.com/Jeffreasy/MarketplaceOps/internal/report"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

// CategoryCheck verifies services sit in active categories and that the
// active category set matches the canonical catalog.
type CategoryCheck struct {
	opts Options
}

func (c *CategoryCheck) Name() string { return "categories" }

func (c *CategoryCheck) Description() string {
	return "services on missing or inactive categories, duplicate slugs, non-canonical categories"
}

func (c *CategoryCheck) Run(ctx context.Context, db storage.DB) ([]Finding, error) {
	findings, err := runRules(ctx, db, c.Name(), []rule{
		{
			query: `
				SELECT s.id, s.name, COALESCE(c.slug, '')
				FROM services s
				LEFT JOIN service_categories c ON c.id = s.category_id
				WHERE s.is_active = true AND (c.id IS NULL OR c.is_active = false)`,
			level: report.LevelFail,
			clean: "every active service belongs to an active category",
			message: func(row []string) string {
				if row[2] == "" {
					return fmt.Sprintf("%q has no category", row[1])
				}
				return fmt.Sprintf("%q belongs to inactive category %q", row[1], row[2])
			},
		},
		{
			query: `
				SELECT lower(slug), COUNT(*)
				FROM service_categories
				GROUP BY lower(slug)
				HAVING COUNT(*) > 1`,
			level: report.LevelFail,
			clean: "category slugs are unique",
			message: func(row []string) string {
				return fmt.Sprintf("slug used by %s categories", row[1])
			},
		},
	})
	if err != nil {
		return nil, err
	}

	if len(c.opts.CanonicalSlugs) == 0 {
		return findings, nil
	}

	canonical := make(map[string]bool, len(c.opts.CanonicalSlugs))
	for _, slug := range c.opts.CanonicalSlugs {
		canonical[slug] = true
	}

	rows, err := queryStrings(ctx, db, `SELECT slug, name FROM service_categories WHERE is_active = true ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("active categories: %w", err)
	}

	seen := make(map[string]bool, len(rows))
	stray := 0
	for _, row := range rows {
		seen[row[0]] = true
		if !canonical[row[0]] {
			stray++
			findings = append(findings, Finding{
				Check:   c.Name(),
				Level:   report.LevelWarn,
				Subject: row[0],
				Message: fmt.Sprintf("%q is not a canonical category (fix with: opsctl fix categories)", row[1]),
			})
		}
	}

	for _, slug := range sortedKeys(canonical) {
		if !seen[slug] {
			findings = append(findings, Finding{
				Check:   c.Name(),
				Level:   report.LevelWarn,
				Subject: slug,
				Message: "canonical category is missing or inactive",
			})
			stray++
		}
	}

	if stray == 0 {
		findings = append(findings, Finding{
			Check:   c.Name(),
			Level:   report.LevelOK,
			Message: fmt.Sprintf("active categories match the catalog (%d)", len(canonical)),
		})
	}

	return findings, nil
}
