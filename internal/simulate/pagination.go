package simulate

import (
	"context"
	"errors"
	"fmt"

	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

var (
	ErrUnknownTable    = errors.New("table cannot be paginated")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 1000")
)

// Paginated tables. Both are keyed by text ids.
var pageTables = map[string]bool{
	"services": true,
	"bookings": true,
}

// PageStats is the outcome of paging through a table in one mode.
type PageStats struct {
	Pages      int
	Rows       int
	Duplicates int
	Missing    int // rows counted in the table but never returned
}

type PaginationResult struct {
	Table         string
	PageSize      int
	Total         int
	ExpectedPages int
	Offset        PageStats
	Keyset        PageStats
	Mismatched    int // ids returned by one mode but not the other
}

// Problems lists every violated expectation; empty means pagination is sound.
func (r *PaginationResult) Problems() []string {
	var out []string
	for _, m := range []struct {
		mode  string
		stats PageStats
	}{{"offset", r.Offset}, {"keyset", r.Keyset}} {
		if m.stats.Pages != r.ExpectedPages {
			out = append(out, fmt.Sprintf("%s: %d pages, expected %d", m.mode, m.stats.Pages, r.ExpectedPages))
		}
		if m.stats.Duplicates > 0 {
			out = append(out, fmt.Sprintf("%s: %d duplicate ids", m.mode, m.stats.Duplicates))
		}
		if m.stats.Missing > 0 {
			out = append(out, fmt.Sprintf("%s: %d rows never returned", m.mode, m.stats.Missing))
		}
	}
	if r.Mismatched > 0 {
		out = append(out, fmt.Sprintf("offset and keyset disagree on %d ids", r.Mismatched))
	}
	return out
}

// Pagination pages through table with LIMIT/OFFSET and with keyset
// pagination on id and checks both return every row exactly once.
func Pagination(ctx context.Context, db storage.DB, table string, pageSize int) (*PaginationResult, error) {
	if !pageTables[table] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	if pageSize < 1 || pageSize > 1000 {
		return nil, ErrInvalidPageSize
	}

	res := &PaginationResult{Table: table, PageSize: pageSize}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&res.Total); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", table, err)
	}
	res.ExpectedPages = (res.Total + pageSize - 1) / pageSize
	// Stop runaway loops if the table grows while paging.
	maxPages := res.ExpectedPages + 2

	offsetSeen := make(map[string]int)
	for offset := 0; res.Offset.Pages < maxPages; {
		ids, err := queryIDs(ctx, db, `SELECT id FROM `+table+` ORDER BY id LIMIT $1 OFFSET $2`, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("offset page %d: %w", res.Offset.Pages+1, err)
		}
		if len(ids) == 0 {
			break
		}
		res.Offset.Pages++
		record(&res.Offset, offsetSeen, ids)
		offset += len(ids)
		if len(ids) < pageSize {
			break
		}
	}

	keysetSeen := make(map[string]int)
	for cursor := ""; res.Keyset.Pages < maxPages; {
		ids, err := queryIDs(ctx, db, `SELECT id FROM `+table+` WHERE id > $1 ORDER BY id LIMIT $2`, cursor, pageSize)
		if err != nil {
			return nil, fmt.Errorf("keyset page %d: %w", res.Keyset.Pages+1, err)
		}
		if len(ids) == 0 {
			break
		}
		res.Keyset.Pages++
		record(&res.Keyset, keysetSeen, ids)
		cursor = ids[len(ids)-1]
		if len(ids) < pageSize {
			break
		}
	}

	res.Offset.Missing = max(res.Total-len(offsetSeen), 0)
	res.Keyset.Missing = max(res.Total-len(keysetSeen), 0)
	for id := range offsetSeen {
		if _, ok := keysetSeen[id]; !ok {
			res.Mismatched++
		}
	}
	for id := range keysetSeen {
		if _, ok := offsetSeen[id]; !ok {
			res.Mismatched++
		}
	}
	return res, nil
}

func record(stats *PageStats, seen map[string]int, ids []string) {
	for _, id := range ids {
		if seen[id] > 0 {
			stats.Duplicates++
		}
		seen[id]++
		stats.Rows++
	}
}

func queryIDs(ctx context.Context, db storage.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
