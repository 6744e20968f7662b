package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/platinummonkey/groundwork/pkg/db"
)

// DBLogger inserts audit rows into audit_logs
type DBLogger struct {
	q   db.Querier
	now func() time.Time
}

// NewDBLogger creates a database backed audit logger
func NewDBLogger(q db.Querier) *DBLogger {
	return &DBLogger{q: q, now: func() time.Time { return time.Now().UTC() }}
}

// Log inserts one row
func (l *DBLogger) Log(ctx context.Context, entry Entry) error {
	if entry.Action == "" || entry.Entity == "" {
		return fmt.Errorf("audit entry requires action and entity")
	}

	metadata := []byte("{}")
	if len(entry.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	query, args, err := sq.Insert("audit_logs").
		Columns("id", "user_id", "project_id", "action", "entity", "entity_id", "metadata", "created_at").
		Values(uuid.NewString(), nullable(entry.UserID), nullable(entry.ProjectID),
			entry.Action, entry.Entity, entry.EntityID, string(metadata), l.now()).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build audit insert: %w", err)
	}

	if _, err := l.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
