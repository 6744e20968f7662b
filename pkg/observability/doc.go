// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Structured Logging
//
// The process logger is a *logrus.Logger. Request scoped loggers carry the
// request id, user id and project id and are stored in the request context:
//
//	logger := observability.NewLogger(logrus.InfoLevel, "json", os.Stdout)
//	ctx = observability.WithLogger(ctx, logger.WithField("request_id", id))
//	observability.LoggerFromContext(ctx).Info("task created")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.PolicyDecisionsTotal.WithLabelValues("BUDGET", "read", "allow").Inc()
//
// # Health
//
// HealthChecker serves /healthz (liveness) and /readyz (database and redis).
package observability
