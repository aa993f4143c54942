package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

// Recorder persists entries to ops_audit_log and mirrors them to the trail.
type Recorder struct {
	trail  *Trail
	logger *slog.Logger
}

func NewRecorder(trail *Trail, logger *slog.Logger) *Recorder {
	return &Recorder{
		trail:  trail,
		logger: logger,
	}
}

// Record inserts e through db, normally the transaction that made the
// change, so the mutation and its audit row commit together.
func (r *Recorder) Record(ctx context.Context, db storage.DB, e Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		r.logger.Error("audit_details_marshal_failed", "error", err)
		details = []byte("{}")
	}

	id := uuid.New()
	_, err = db.ExecContext(ctx, `
		INSERT INTO ops_audit_log (id, actor, action, target, rows_affected, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		id.String(), e.Actor, string(e.Action), e.Target, e.RowsAffected, string(details),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log (is `opsctl migrate up` applied?): %w", err)
	}

	r.trail.Log(ctx, id, e)
	return nil
}

// Log writes e to the trail only. Used where the audit table may not exist,
// such as schema migrations.
func (r *Recorder) Log(ctx context.Context, e Entry) {
	r.trail.Log(ctx, uuid.New(), e)
}
