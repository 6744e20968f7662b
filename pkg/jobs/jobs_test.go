package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/platinummonkey/groundwork/pkg/config"
	"github.com/platinummonkey/groundwork/pkg/db/dbtest"
	"github.com/platinummonkey/groundwork/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJobs = config.JobsConfig{Enabled: true, OverdueSchedule: "0 * * * *", CleanupSchedule: "*/10 * * * *"}

type countingCleaner struct{ calls int }

func (c *countingCleaner) Cleanup() int {
	c.calls++
	return 3
}

func TestMarkOverdueInvoices(t *testing.T) {
	conn := dbtest.New(t)
	owner := dbtest.SeedUser(t, conn, "owner@example.com", "STAFF")
	project := dbtest.SeedProject(t, conn, "Riverside", owner)

	vendor := uuid.NewString()
	_, err := conn.Exec(`INSERT INTO vendors (id, project_id, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		vendor, project, "Acme Framing", dbtest.Now, dbtest.Now)
	require.NoError(t, err)

	insert := func(number, status string, due *time.Time) {
		_, err := conn.Exec(`INSERT INTO invoices (id, project_id, number, vendor_id, amount, paid_amount, status, due_date, issued_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			uuid.NewString(), project, number, vendor, "100", "0", status, due, dbtest.Now, dbtest.Now, dbtest.Now)
		require.NoError(t, err)
	}
	past := dbtest.Now.Add(-48 * time.Hour)
	future := dbtest.Now.Add(48 * time.Hour)
	insert("INV-1", "PENDING", &past)
	insert("INV-2", "PARTIALLY_PAID", &past)
	insert("INV-3", "PAID", &past)
	insert("INV-4", "PENDING", &future)
	insert("INV-5", "PENDING", nil)

	s, err := NewScheduler(conn, testJobs, nil, nil, logrus.New())
	require.NoError(t, err)
	s.now = func() time.Time { return dbtest.Now }

	n, err := s.MarkOverdueInvoices(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 2, dbtest.Count(t, conn, "invoices", "status = $1", "OVERDUE"))
	assert.Equal(t, 1, dbtest.Count(t, conn, "invoices", "status = $1", "PAID"))

	n, err = s.MarkOverdueInvoices(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestJobFailureIsCounted(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	mock.ExpectExec("UPDATE invoices SET status").WillReturnError(assert.AnError)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	s, err := NewScheduler(conn, testJobs, nil, metrics, logrus.New())
	require.NoError(t, err)

	s.wrap("overdue_invoices", func(ctx context.Context) error {
		_, err := s.MarkOverdueInvoices(ctx)
		return err
	})()

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("overdue_invoices", "error")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulerRegistersJobs(t *testing.T) {
	cleaner := &countingCleaner{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	s, err := NewScheduler(nil, testJobs, cleaner, metrics, logrus.New())
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)

	s.cron.Entries()[1].Job.Run()
	assert.Equal(t, 1, cleaner.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("rate_limit_cleanup", "success")))

	s.Start()
	require.NoError(t, s.Stop(context.Background()))

	_, err = NewScheduler(nil, config.JobsConfig{OverdueSchedule: "not a schedule"}, nil, nil, logrus.New())
	assert.Error(t, err)
}
