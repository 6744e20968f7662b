//go:build integration

package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/db"
	"github.com/platinummonkey/groundwork/pkg/db/dbtest"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/platinummonkey/groundwork/pkg/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("groundwork_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, dialect, err := db.Open(ctx, db.ConnectionConfig{URL: url, MaxOpenConns: 5, MaxIdleConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Equal(t, db.DialectPostgres, dialect)

	require.NoError(t, db.Migrate(ctx, conn, dialect))
	return conn
}

func TestPostgresMigrationsRoundTrip(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()

	require.NoError(t, db.MigrationStatus(ctx, conn, db.DialectPostgres))
	require.NoError(t, db.Rollback(ctx, conn, db.DialectPostgres))

	var exists bool
	require.NoError(t, conn.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'invoices')`).Scan(&exists))
	assert.False(t, exists)

	require.NoError(t, db.Migrate(ctx, conn, db.DialectPostgres))
	require.NoError(t, conn.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'invoices')`).Scan(&exists))
	assert.True(t, exists)
}

func TestPostgresPaymentRollsUpAtomically(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()

	owner := dbtest.SeedUser(t, conn, "pm@example.com", "STAFF")
	project := dbtest.SeedProject(t, conn, "Riverside Duplex", owner)
	dbtest.SeedMember(t, conn, project, owner, "OWNER")

	engine := rbac.NewEngine(conn, audit.NewDBLogger(conn), logrus.New())
	sc, err := engine.CreateSecurityContext(ctx, owner, project)
	require.NoError(t, err)
	repos, err := repository.New(conn, sc)
	require.NoError(t, err)

	vendor := &repository.Vendor{Name: "Ada Framing"}
	require.NoError(t, repos.Vendors.Create(ctx, vendor))
	inv := &repository.Invoice{Number: "INV-1", VendorID: vendor.ID, Amount: decimal.NewFromInt(1000)}
	require.NoError(t, repos.Invoices.Create(ctx, inv))

	_, err = repos.RecordPayment(ctx, repository.PaymentInput{InvoiceID: inv.ID, Amount: decimal.NewFromInt(1500)})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, 0, dbtest.Count(t, conn, "payments", ""))

	result, err := repos.RecordPayment(ctx, repository.PaymentInput{InvoiceID: inv.ID, Amount: decimal.NewFromInt(400)})
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceStatusPartiallyPaid, result.Invoice.Status)
	assert.True(t, result.Invoice.PaidAmount.Equal(decimal.NewFromInt(400)))

	result, err = repos.RecordPayment(ctx, repository.PaymentInput{InvoiceID: inv.ID, Amount: decimal.NewFromInt(600)})
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceStatusPaid, result.Invoice.Status)
	assert.Equal(t, 2, dbtest.Count(t, conn, "payments", "invoice_id = $1", inv.ID))
}

func TestPostgresConcurrentPaymentsSerialize(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()

	owner := dbtest.SeedUser(t, conn, "pm@example.com", "STAFF")
	project := dbtest.SeedProject(t, conn, "Riverside Duplex", owner)
	dbtest.SeedMember(t, conn, project, owner, "OWNER")

	engine := rbac.NewEngine(conn, audit.NewDBLogger(conn), logrus.New())
	sc, err := engine.CreateSecurityContext(ctx, owner, project)
	require.NoError(t, err)
	repos, err := repository.New(conn, sc)
	require.NoError(t, err)

	vendor := &repository.Vendor{Name: "Ada Framing"}
	require.NoError(t, repos.Vendors.Create(ctx, vendor))
	inv := &repository.Invoice{Number: "INV-7", VendorID: vendor.ID, Amount: decimal.NewFromInt(100)}
	require.NoError(t, repos.Invoices.Create(ctx, inv))

	const workers = 4
	start := make(chan struct{})
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			<-start
			_, err := repos.RecordPayment(ctx, repository.PaymentInput{InvoiceID: inv.ID, Amount: decimal.NewFromInt(80)})
			errs <- err
		}()
	}
	close(start)

	succeeded := 0
	for i := 0; i < workers; i++ {
		if err := <-errs; err == nil {
			succeeded++
		} else {
			assert.True(t, apperr.Is(err, apperr.KindValidation), err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, dbtest.Count(t, conn, "payments", "invoice_id = $1", inv.ID))

	stored, err := repos.Invoices.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.PaidAmount.Equal(decimal.NewFromInt(80)), stored.PaidAmount.String())
}
