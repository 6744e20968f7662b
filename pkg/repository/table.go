package repository

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/db"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Page bounds a list query. A zero Limit returns every row.
type Page struct {
	Limit  int
	Offset int
}

// table is the project scoped CRUD core shared by every repository
type table[T any] struct {
	q         db.Querier
	name      string
	entity    string
	projectID string
	columns   []string
	mutable   map[string]bool
	updatedAt bool
	lockRows  bool
	now       func() time.Time
}

func newTable[T any](s scope, name, entity string, mutable ...string) *table[T] {
	var zero T
	columns := dbColumns(reflect.TypeOf(zero))

	t := &table[T]{
		q:         s.q,
		name:      name,
		entity:    entity,
		projectID: s.projectID,
		columns:   columns,
		mutable:   make(map[string]bool, len(mutable)),
		lockRows:  s.lockRows,
		now:       s.now,
	}
	for _, c := range columns {
		if c == "updated_at" {
			t.updatedAt = true
		}
	}
	for _, c := range mutable {
		t.mutable[c] = true
	}
	return t
}

func (t *table[T]) scoped() sq.Eq {
	return sq.Eq{"project_id": t.projectID}
}

func (t *table[T]) findMany(ctx context.Context, where sq.Sqlizer, orderBy string, page Page) ([]*T, int64, error) {
	conds := sq.And{t.scoped()}
	if where != nil {
		conds = append(conds, where)
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From(t.name).Where(conds).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build %s count: %w", t.name, err)
	}
	var total int64
	if err := t.q.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count %s: %w", t.name, err)
	}

	builder := psql.Select(t.columns...).From(t.name).Where(conds).OrderBy(orderBy, "id")
	if page.Limit > 0 {
		builder = builder.Limit(uint64(page.Limit)).Offset(uint64(page.Offset))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build %s query: %w", t.name, err)
	}

	rows := []*T{}
	if err := sqlscan.Select(ctx, t.q, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list %s: %w", t.name, err)
	}
	return rows, total, nil
}

func (t *table[T]) findAll(ctx context.Context, where sq.Sqlizer, orderBy string) ([]*T, error) {
	rows, _, err := t.findMany(ctx, where, orderBy, Page{})
	return rows, err
}

func (t *table[T]) findByID(ctx context.Context, id string) (*T, error) {
	return t.get(ctx, id, false)
}

// findForUpdate is findByID holding a row lock until the surrounding
// transaction ends, for read-modify-write of running totals.
func (t *table[T]) findForUpdate(ctx context.Context, id string) (*T, error) {
	return t.get(ctx, id, t.lockRows)
}

func (t *table[T]) get(ctx context.Context, id string, lock bool) (*T, error) {
	builder := psql.Select(t.columns...).From(t.name).
		Where(sq.And{t.scoped(), sq.Eq{"id": id}})
	if lock {
		builder = builder.Suffix("FOR UPDATE")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s query: %w", t.name, err)
	}

	var row T
	if err := sqlscan.Get(ctx, t.q, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, apperr.NotFound(t.entity)
		}
		return nil, fmt.Errorf("failed to get %s: %w", t.entity, err)
	}
	return &row, nil
}

// insert writes row with the scope's project id and a fresh id when row has
// none. It sets the id, project id and timestamps back on row.
func (t *table[T]) insert(ctx context.Context, row *T, suffix ...string) (int64, error) {
	values := dbValues(row)

	id, _ := values["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	now := t.now()
	values["id"] = id
	values["project_id"] = t.projectID
	if _, ok := values["created_at"]; ok {
		values["created_at"] = now
	}
	if t.updatedAt {
		values["updated_at"] = now
	}

	builder := psql.Insert(t.name).SetMap(values)
	if len(suffix) > 0 {
		builder = builder.Suffix(strings.Join(suffix, " "))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build %s insert: %w", t.name, err)
	}
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperr.FromDB(fmt.Errorf("failed to insert %s: %w", t.entity, err), t.entity)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", t.entity, err)
	}

	setDBValue(row, "id", id)
	setDBValue(row, "project_id", t.projectID)
	if _, ok := values["created_at"]; ok {
		setDBValue(row, "created_at", now)
	}
	if t.updatedAt {
		setDBValue(row, "updated_at", now)
	}
	return n, nil
}

// update applies the mutable subset of changes to one scoped row and
// returns the row as stored.
func (t *table[T]) update(ctx context.Context, id string, changes map[string]interface{}) (*T, error) {
	set := make(map[string]interface{}, len(changes)+1)
	for column, value := range changes {
		if t.mutable[column] {
			set[column] = value
		}
	}
	if len(set) == 0 {
		return t.findByID(ctx, id)
	}
	if t.updatedAt {
		set["updated_at"] = t.now()
	}

	query, args, err := psql.Update(t.name).SetMap(set).
		Where(sq.And{t.scoped(), sq.Eq{"id": id}}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s update: %w", t.name, err)
	}
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.FromDB(fmt.Errorf("failed to update %s: %w", t.entity, err), t.entity)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", t.entity, err)
	} else if n == 0 {
		return nil, apperr.NotFound(t.entity)
	}
	return t.findByID(ctx, id)
}

// set writes columns without the mutable whitelist. Internal state changes
// such as paid amounts and statuses go through here.
func (t *table[T]) set(ctx context.Context, id string, values map[string]interface{}) error {
	if t.updatedAt {
		values["updated_at"] = t.now()
	}
	query, args, err := psql.Update(t.name).SetMap(values).
		Where(sq.And{t.scoped(), sq.Eq{"id": id}}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build %s update: %w", t.name, err)
	}
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", t.entity, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to update %s: %w", t.entity, err)
	} else if n == 0 {
		return apperr.NotFound(t.entity)
	}
	return nil
}

func (t *table[T]) delete(ctx context.Context, id string) error {
	n, err := t.deleteWhere(ctx, sq.Eq{"id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(t.entity)
	}
	return nil
}

func (t *table[T]) deleteWhere(ctx context.Context, where sq.Sqlizer) (int64, error) {
	query, args, err := psql.Delete(t.name).Where(sq.And{t.scoped(), where}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build %s delete: %w", t.name, err)
	}
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperr.FromDB(fmt.Errorf("failed to delete %s: %w", t.entity, err), t.entity)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", t.entity, err)
	}
	return n, nil
}

// existingIDs returns which of ids exist in scope
func (t *table[T]) existingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	query, args, err := psql.Select("id").From(t.name).
		Where(sq.And{t.scoped(), sq.Eq{"id": ids}}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s lookup: %w", t.name, err)
	}
	var found []string
	if err := sqlscan.Select(ctx, t.q, &found, query, args...); err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", t.name, err)
	}
	set := make(map[string]bool, len(found))
	for _, id := range found {
		set[id] = true
	}
	return set, nil
}

func missing(ids []string, found map[string]bool) []string {
	var out []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !found[id] && !seen[id] {
			out = append(out, id)
		}
		seen[id] = true
	}
	return out
}

func dbColumns(typ reflect.Type) []string {
	var cols []string
	for i := 0; i < typ.NumField(); i++ {
		if col := dbTag(typ.Field(i)); col != "" {
			cols = append(cols, col)
		}
	}
	return cols
}

func dbTag(f reflect.StructField) string {
	tag := strings.SplitN(f.Tag.Get("db"), ",", 2)[0]
	if tag == "-" || !f.IsExported() {
		return ""
	}
	return tag
}

func dbValues(row interface{}) map[string]interface{} {
	v := reflect.Indirect(reflect.ValueOf(row))
	values := make(map[string]interface{}, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		if col := dbTag(v.Type().Field(i)); col != "" {
			values[col] = v.Field(i).Interface()
		}
	}
	return values
}

func setDBValue(row interface{}, column string, value interface{}) {
	v := reflect.Indirect(reflect.ValueOf(row))
	for i := 0; i < v.NumField(); i++ {
		if dbTag(v.Type().Field(i)) == column {
			v.Field(i).Set(reflect.ValueOf(value))
			return
		}
	}
}
