package audit

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/db"
)

const maxSearchLimit = 500

var recordColumns = []string{"id", "user_id", "project_id", "action", "entity", "entity_id", "metadata", "created_at"}

// Store reads the audit trail
type Store struct {
	q db.Querier
}

// NewStore creates a Store
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// Search returns matching records newest first, and the total match count
func (s *Store) Search(ctx context.Context, filter SearchFilter) ([]*Record, int64, error) {
	where := filterConditions(filter)

	countSQL, countArgs, err := sq.Select("COUNT(*)").From("audit_logs").Where(where).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build audit count: %w", err)
	}
	var total int64
	if err := s.q.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	query, args, err := sq.Select(recordColumns...).From("audit_logs").Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).Offset(uint64(filter.Offset)).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build audit search: %w", err)
	}

	var records []*Record
	if err := sqlscan.Select(ctx, s.q, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to search audit logs: %w", err)
	}
	for _, r := range records {
		r.decode()
	}
	return records, total, nil
}

// Get returns a single record
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	query, args, err := sq.Select(recordColumns...).From("audit_logs").Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit get: %w", err)
	}

	var record Record
	if err := sqlscan.Get(ctx, s.q, &record, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, apperr.NotFound("Audit log")
		}
		return nil, fmt.Errorf("failed to get audit log: %w", err)
	}
	record.decode()
	return &record, nil
}

func (r *Record) decode() {
	if json.Valid([]byte(r.MetadataJSON)) {
		r.Metadata = json.RawMessage(r.MetadataJSON)
	} else {
		r.Metadata = json.RawMessage("{}")
	}
}

func filterConditions(filter SearchFilter) sq.And {
	where := sq.And{}
	if filter.UserID != "" {
		where = append(where, sq.Eq{"user_id": filter.UserID})
	}
	if filter.ProjectID != "" {
		where = append(where, sq.Eq{"project_id": filter.ProjectID})
	}
	if filter.Action != "" {
		where = append(where, sq.Eq{"action": filter.Action})
	}
	if filter.Entity != "" {
		where = append(where, sq.Eq{"entity": filter.Entity})
	}
	if filter.EntityID != "" {
		where = append(where, sq.Eq{"entity_id": filter.EntityID})
	}
	if filter.StartTime != nil {
		where = append(where, sq.GtOrEq{"created_at": *filter.StartTime})
	}
	if filter.EndTime != nil {
		where = append(where, sq.Lt{"created_at": *filter.EndTime})
	}
	return where
}
