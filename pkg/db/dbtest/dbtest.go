// Package dbtest opens migrated in-memory SQLite databases and seeds the
// identity tables for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/groundwork/pkg/db"
)

// New returns a fresh migrated database that is closed when the test ends.
// The pool holds one connection, so code under test must not use the *sql.DB
// while it holds an open transaction.
func New(t testing.TB) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	conn, err := sql.Open(db.DialectSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	if err := db.Migrate(context.Background(), conn, db.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// Now is a fixed timestamp used by seeds
var Now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// SeedUser inserts an active user with the given system role and returns its id
func SeedUser(t testing.TB, conn *sql.DB, email, systemRole string) string {
	t.Helper()
	id := uuid.NewString()
	mustExec(t, conn,
		`INSERT INTO users (id, external_id, email, name, system_role, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, "ext-"+id, email, email, systemRole, true, Now, Now)
	return id
}

// SeedProject inserts a project owned by ownerID and returns its id
func SeedProject(t testing.TB, conn *sql.DB, name, ownerID string) string {
	t.Helper()
	id := uuid.NewString()
	mustExec(t, conn,
		`INSERT INTO projects (id, name, status, archived, budget_total, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, name, "ACTIVE", false, "0", ownerID, Now, Now)
	return id
}

// SeedMember adds userID to projectID with the given project role
func SeedMember(t testing.TB, conn *sql.DB, projectID, userID, role string) {
	t.Helper()
	mustExec(t, conn,
		`INSERT INTO project_members (id, project_id, user_id, role, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), projectID, userID, role, true, Now, Now)
}

// SeedModuleAccess grants module flags to userID on projectID
func SeedModuleAccess(t testing.TB, conn *sql.DB, projectID, userID, module string, view, edit, upload, request bool) {
	t.Helper()
	mustExec(t, conn,
		`INSERT INTO user_module_access (id, user_id, project_id, module, can_view, can_edit, can_upload, can_request, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.NewString(), userID, projectID, module, view, edit, upload, request, Now, Now)
}

// Count returns SELECT COUNT(*) for a table with an optional where clause
func Count(t testing.TB, conn *sql.DB, table, where string, args ...interface{}) int {
	t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := conn.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func mustExec(t testing.TB, conn *sql.DB, query string, args ...interface{}) {
	t.Helper()
	if _, err := conn.Exec(query, args...); err != nil {
		t.Fatalf("seed: %v", err)
	}
}
