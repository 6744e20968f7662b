package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/groundwork/pkg/api"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/auth"
	"github.com/platinummonkey/groundwork/pkg/config"
	"github.com/platinummonkey/groundwork/pkg/db"
	"github.com/platinummonkey/groundwork/pkg/jobs"
	"github.com/platinummonkey/groundwork/pkg/middleware"
	"github.com/platinummonkey/groundwork/pkg/observability"
	"github.com/platinummonkey/groundwork/pkg/projects"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/platinummonkey/groundwork/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			migrate, _ := cmd.Flags().GetBool("migrate")
			return serve(cmd.Context(), cfg, migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	entry := logger.WithField("version", version)

	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	if cfg.Identity.IssuerURL == "" {
		return fmt.Errorf("IDP_ISSUER_URL is required")
	}

	shutdown := observability.NewShutdownManager(entry, cfg.Server.ShutdownTimeout)

	otel, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, entry)
	if err != nil {
		return err
	}
	if otel != nil {
		shutdown.Register("otel", otel.Shutdown)
	}

	pool := db.NewPool(db.ConnectionConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	conn, err := pool.Get(ctx)
	if err != nil {
		return err
	}
	shutdown.Register("database", pool.Close)
	if migrate {
		if err := db.Migrate(ctx, conn, pool.Dialect()); err != nil {
			return err
		}
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
		metrics.RegisterDBStats(conn)
	}

	var redisClient *redis.Client
	if cfg.RateLimit.RedisURL != "" {
		redisClient, err = storage.NewRedisClient(ctx, cfg.RateLimit.RedisURL)
		if err != nil {
			return err
		}
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	var auditLogger audit.Logger = audit.NewDBLogger(conn)
	if cfg.Observability.AuditMirror {
		auditLogger = audit.NewMultiLogger(auditLogger, audit.NewLogrusLogger(entry))
	}
	engine := rbac.NewEngine(conn, auditLogger, entry, rbac.WithMetrics(metrics))

	var projectOpts []projects.Option
	if sa := cfg.Identity.ServiceAccount; sa != nil {
		projectOpts = append(projectOpts, projects.WithProvisioner(auth.NewAdminClient(sa)))
	} else {
		entry.Warn("No identity service account configured; invites will not provision accounts")
	}
	projectService := projects.NewService(conn, engine, auditLogger, entry, projectOpts...)

	verifier := auth.NewCachingVerifier(
		auth.NewOIDCVerifier(cfg.Identity.IssuerURL, cfg.Identity.ClientID),
		cfg.Identity.CacheSize, cfg.Identity.CacheTTL,
	).WithMetrics(metrics)

	var (
		rateLimit *middleware.RateLimitMiddleware
		cleaner   jobs.Cleaner
	)
	if cfg.RateLimit.Enabled {
		var limiter middleware.Limiter
		if redisClient != nil {
			limiter = middleware.NewRedisLimiter(redisClient, cfg.RateLimit.Window)
		} else {
			memory := middleware.NewMemoryLimiter(cfg.RateLimit.Window)
			limiter, cleaner = memory, memory
		}
		rateLimit = middleware.NewRateLimitMiddleware(limiter, engine, metrics, entry)
	}

	health := observability.NewHealthChecker(conn, redisClient, version)

	var documents storage.DocumentStore
	if cfg.Storage.Enabled() {
		s3Store, err := storage.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		documents = s3Store
		health.WithCheck("object_storage", s3Store.HealthCheck)
	} else {
		entry.Warn("S3_BUCKET is not set; document uploads are disabled")
	}

	if cfg.Webhook.Secret == "" {
		entry.Warn("WEBHOOK_SECRET is not set; webhooks will reject every request")
	}

	server := api.NewServer(api.Deps{
		DB:            conn,
		Engine:        engine,
		Projects:      projectService,
		Audit:         auditLogger,
		Verifier:      verifier,
		RateLimit:     rateLimit,
		Documents:     documents,
		Health:        health,
		Metrics:       metrics,
		Logger:        entry,
		Server:        cfg.Server,
		WebhookSecret: cfg.Webhook.Secret,
		Tracing:       otel != nil,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	shutdown.Register("http", httpServer.Shutdown)

	if cfg.Jobs.Enabled {
		scheduler, err := jobs.NewScheduler(conn, cfg.Jobs, cleaner, metrics, entry)
		if err != nil {
			return err
		}
		scheduler.Start()
		shutdown.Register("jobs", scheduler.Stop)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entry.WithField("addr", httpServer.Addr).Info("Starting groundwork API")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		entry.Info("Shutting down")
		return shutdown.Shutdown(context.WithoutCancel(gctx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"version": version}).Info("Stopped")
	return nil
}
