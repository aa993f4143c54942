package audit

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Action is the category of a recorded mutation.
type Action string

const (
	ActionFixCategories Action = "FIX_CATEGORIES"
	ActionFixServices   Action = "FIX_SERVICES"
	ActionFixCurrency   Action = "FIX_CURRENCY"
	ActionFixEnums      Action = "FIX_ENUMS"
	ActionSimulateKeep  Action = "SIMULATE_ESCROW_KEEP"
	ActionMigrateUp     Action = "MIGRATE_UP"
	ActionMigrateDown   Action = "MIGRATE_DOWN"
)

// Entry describes one applied mutation.
type Entry struct {
	Actor        string
	Action       Action
	Target       string // host/database
	RowsAffected int64
	Details      map[string]any
}

// Trail writes audit entries as JSON lines with a log_type marker so log
// aggregators can route them to a separate index.
type Trail struct {
	logger *slog.Logger
}

func NewTrail(w io.Writer) *Trail {
	// Separate handler so the format does not depend on the app logger.
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &Trail{logger: slog.New(handler)}
}

func (t *Trail) Log(ctx context.Context, id uuid.UUID, e Entry) {
	fields := []any{
		slog.String("log_type", "AUDIT_TRAIL"),
		slog.String("audit_id", id.String()),
		slog.String("actor", e.Actor),
		slog.String("action", string(e.Action)),
		slog.String("target", e.Target),
		slog.Int64("rows_affected", e.RowsAffected),
		slog.Time("timestamp_utc", time.Now().UTC()),
	}
	if len(e.Details) > 0 {
		fields = append(fields, slog.Any("details", e.Details))
	}

	t.logger.InfoContext(ctx, "audit_event", fields...)
}
