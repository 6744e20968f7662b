package db_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/groundwork/pkg/db"
	"github.com/platinummonkey/groundwork/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		url    string
		driver string
		dsn    string
		ok     bool
	}{
		{"postgres://u:p@localhost/gw?sslmode=disable", db.DialectPostgres, "postgres://u:p@localhost/gw?sslmode=disable", true},
		{"postgresql://localhost/gw", db.DialectPostgres, "postgresql://localhost/gw", true},
		{"sqlite3://./gw.db", db.DialectSQLite, "./gw.db", true},
		{"file:gw.db?_foreign_keys=on", db.DialectSQLite, "file:gw.db?_foreign_keys=on", true},
		{"mysql://localhost", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, dsn, err := db.ParseURL(tt.url)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.dsn, dsn)
		})
	}
}

func TestDialectOf(t *testing.T) {
	assert.Equal(t, db.DialectSQLite, db.DialectOf(dbtest.New(t)))
	assert.Equal(t, "", db.DialectOf(nil))

	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "", db.DialectOf(conn))

	pg, err := sql.Open(db.DialectPostgres, "postgres://localhost/groundwork?sslmode=disable")
	require.NoError(t, err)
	defer pg.Close()
	assert.Equal(t, db.DialectPostgres, db.DialectOf(pg))
}

func TestMigrate_CreatesSchema(t *testing.T) {
	conn := dbtest.New(t)

	owner := dbtest.SeedUser(t, conn, "owner@example.com", "STAFF")
	project := dbtest.SeedProject(t, conn, "Harbor Tower", owner)
	dbtest.SeedMember(t, conn, project, owner, "OWNER")

	assert.Equal(t, 1, dbtest.Count(t, conn, "project_members", "project_id = $1", project))
	for _, table := range []string{"tasks", "budget_items", "bid_invitations", "payments", "audit_logs"} {
		assert.Equal(t, 0, dbtest.Count(t, conn, table, ""))
	}
}

func TestMigrate_ForeignKeysEnforced(t *testing.T) {
	conn := dbtest.New(t)
	_, err := conn.Exec(`INSERT INTO tasks (id, project_id, title, created_by, created_at, updated_at)
		VALUES ('t1', 'missing-project', 'orphan', 'u1', $1, $1)`, dbtest.Now)
	assert.Error(t, err)
}

func TestPool_LazyOpen(t *testing.T) {
	pool := db.NewPool(db.ConnectionConfig{URL: "sqlite3://file::memory:"})
	assert.Equal(t, "", pool.Dialect())

	conn, err := pool.Get(context.Background())
	require.NoError(t, err)
	again, err := pool.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, conn, again)
	assert.Equal(t, db.DialectSQLite, pool.Dialect())
	assert.NoError(t, pool.Close(context.Background()))
}

func TestWithTx(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer conn.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE invoices").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = db.WithTx(context.Background(), conn, func(tx *sql.Tx) error {
			_, err := tx.Exec("UPDATE invoices SET status = 'PAID'")
			return err
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer conn.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("budget item update failed")
		err = db.WithTx(context.Background(), conn, func(tx *sql.Tx) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
