package audit

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Logger appends audit entries
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NoOpLogger discards entries
type NoOpLogger struct{}

// Log implements Logger
func (NoOpLogger) Log(context.Context, Entry) error { return nil }

// LogrusLogger mirrors audit entries into the structured log stream so they
// reach log shipping even when the database write fails.
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger creates a Logger writing to logger at info level
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{logger: logger.WithField("component", "audit")}
}

// Log implements Logger
func (l *LogrusLogger) Log(_ context.Context, entry Entry) error {
	fields := logrus.Fields{
		"action":    entry.Action,
		"entity":    entry.Entity,
		"entity_id": entry.EntityID,
	}
	if entry.UserID != "" {
		fields["user_id"] = entry.UserID
	}
	if entry.ProjectID != "" {
		fields["project_id"] = entry.ProjectID
	}
	if len(entry.Metadata) > 0 {
		fields["metadata"] = entry.Metadata
	}
	l.logger.WithFields(fields).Info("audit")
	return nil
}

// MultiLogger writes every entry to each logger in order. All loggers are
// attempted; their errors are joined.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log implements Logger
func (m *MultiLogger) Log(ctx context.Context, entry Entry) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
