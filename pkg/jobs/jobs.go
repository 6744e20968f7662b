// Package jobs runs periodic maintenance with robfig/cron.
//
// Jobs run outside any request, so they are the only code allowed to touch
// rows across projects.
package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/platinummonkey/groundwork/pkg/config"
	"github.com/platinummonkey/groundwork/pkg/observability"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Cleaner drops idle rate limiter state
type Cleaner interface {
	Cleanup() int
}

// Scheduler owns the cron runner and the jobs registered on it
type Scheduler struct {
	cron    *cron.Cron
	conn    *sql.DB
	cleaner Cleaner
	metrics *observability.Metrics
	logger  logrus.FieldLogger
	timeout time.Duration
	now     func() time.Time
}

// NewScheduler registers the configured jobs. cleaner may be nil when the
// rate limiter keeps no local state.
func NewScheduler(conn *sql.DB, cfg config.JobsConfig, cleaner Cleaner, metrics *observability.Metrics, logger logrus.FieldLogger) (*Scheduler, error) {
	logger = logger.WithField("component", "jobs")
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.PrintfLogger(logger)), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		conn:    conn,
		cleaner: cleaner,
		metrics: metrics,
		logger:  logger,
		timeout: 5 * time.Minute,
		now:     func() time.Time { return time.Now().UTC() },
	}

	if _, err := s.cron.AddFunc(cfg.OverdueSchedule, s.wrap("overdue_invoices", func(ctx context.Context) error {
		n, err := s.MarkOverdueInvoices(ctx)
		if err == nil && n > 0 {
			s.logger.WithField("invoices", n).Info("Marked invoices overdue")
		}
		return err
	})); err != nil {
		return nil, fmt.Errorf("failed to schedule overdue invoices: %w", err)
	}

	if cleaner != nil {
		if _, err := s.cron.AddFunc(cfg.CleanupSchedule, s.wrap("rate_limit_cleanup", func(context.Context) error {
			if n := s.cleaner.Cleanup(); n > 0 {
				s.logger.WithField("keys", n).Debug("Dropped idle rate limiter keys")
			}
			return nil
		})); err != nil {
			return nil, fmt.Errorf("failed to schedule rate limiter cleanup: %w", err)
		}
	}

	return s, nil
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("jobs", len(s.cron.Entries())).Info("Job scheduler started")
}

// Stop stops scheduling and waits for running jobs or ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MarkOverdueInvoices flags unpaid invoices whose due date has passed
func (s *Scheduler) MarkOverdueInvoices(ctx context.Context) (int64, error) {
	now := s.now()
	query, args, err := psql.Update("invoices").
		Set("status", "OVERDUE").
		Set("updated_at", now).
		Where(sq.And{
			sq.Eq{"status": []string{"PENDING", "PARTIALLY_PAID"}},
			sq.NotEq{"due_date": nil},
			sq.Lt{"due_date": now},
		}).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue invoices: %w", err)
	}
	return res.RowsAffected()
}

func (s *Scheduler) wrap(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		status := "success"
		if err := fn(ctx); err != nil {
			status = "error"
			s.logger.WithError(err).WithField("job", name).Error("Job failed")
		}
		if s.metrics != nil {
			s.metrics.JobRunsTotal.WithLabelValues(name, status).Inc()
		}
		s.logger.WithFields(logrus.Fields{"job": name, "duration": time.Since(start)}).Debug("Job finished")
	}
}
