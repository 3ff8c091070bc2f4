package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/taskhub/pkg/api"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/config"
	"github.com/platinummonkey/taskhub/pkg/jobs"
	"github.com/platinummonkey/taskhub/pkg/mailer"
	"github.com/platinummonkey/taskhub/pkg/middleware"
	"github.com/platinummonkey/taskhub/pkg/notes"
	"github.com/platinummonkey/taskhub/pkg/observability"
	"github.com/platinummonkey/taskhub/pkg/projects"
	"github.com/platinummonkey/taskhub/pkg/storage"
	"github.com/platinummonkey/taskhub/pkg/storage/postgres"
	"github.com/platinummonkey/taskhub/pkg/tasks"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("taskhub exited with error")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.WithField("version", version).Info("Starting TaskHub")

	db, err := postgres.Open(ctx, postgres.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		logger.Info("Database migrations applied")
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB
		opts.MaxRetries = cfg.Redis.MaxRetries
		opts.PoolSize = cfg.Redis.PoolSize
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("Connected to Redis")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		return err
	}

	dispatcher, err := newDispatcher(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	auditLogger, err := newAuditLogger(db, logger)
	if err != nil {
		return err
	}
	recorder := audit.NewRecorder(auditLogger, logger)

	users := auth.NewPostgresUserStore(db)
	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessTokenSecret,
		RefreshSecret: cfg.Auth.RefreshTokenSecret,
		AccessTTL:     cfg.Auth.AccessTokenExpiry,
		RefreshTTL:    cfg.Auth.RefreshTokenExpiry,
	}, users)
	if err != nil {
		return err
	}
	credentials := auth.NewCredentialService(users, issuer, auth.ServiceConfig{
		BcryptCost:      cfg.Auth.BcryptCost,
		OneTimeTokenTTL: cfg.Auth.OneTimeTokenExpiry,
	})

	deps := api.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics,
		Credentials: credentials,
		Projects:    projects.NewPostgresService(db),
		Tasks:       tasks.NewService(db, uploader, tasks.Config{MaxAttachments: cfg.Limits.MaxAttachments}, logger),
		Notes:       notes.NewPostgresService(db),
		Uploader:    uploader,
		Mailer:      dispatcher,
		Audit:       recorder,
	}
	deps.LoginLimiter, deps.EmailLimiter = newLimiters(ctx, cfg, redisClient)

	server := api.NewServer(deps)
	if !cfg.ObjectStorageEnabled() {
		server.Router().PathPrefix("/static/").Handler(
			http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.Storage.LocalDir))))
	}

	scheduler := jobs.NewScheduler(logger, metrics)
	if err := scheduler.AddTokenJanitor(cfg.Jobs.TokenJanitorSchedule, credentials); err != nil {
		return err
	}
	scheduler.Start()

	checker := observability.NewHealthChecker(db, redisClient, version)
	checker.AddCheck("storage", uploader.HealthCheck)
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	observability.RegisterMetricsEndpoint(healthMux, registry)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(healthServer.Shutdown)
	shutdown.RegisterShutdownFunc(scheduler.Stop)
	shutdown.RegisterShutdownFunc(dispatcher.Shutdown)
	shutdown.RegisterShutdownFunc(recorder.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("API server listening")
		return serve(httpServer)
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		return serve(healthServer)
	})
	g.Go(func() error {
		done := make(chan error, 1)
		go func() { done <- shutdown.WaitForShutdown() }()
		select {
		case err := <-done:
			return err
		case <-gctx.Done():
			// a listener failed; stop everything else
			return shutdown.Shutdown()
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("TaskHub stopped")
	return nil
}

func serve(s *http.Server) error {
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s failed: %w", s.Addr, err)
	}
	return nil
}

func newUploader(ctx context.Context, cfg *config.Config) (storage.Uploader, error) {
	if cfg.ObjectStorageEnabled() {
		u, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Endpoint:       cfg.Storage.S3Endpoint,
			Region:         cfg.Storage.S3Region,
			Bucket:         cfg.Storage.S3Bucket,
			AccessKey:      cfg.Storage.S3AccessKey,
			SecretKey:      cfg.Storage.S3SecretKey,
			ForcePathStyle: cfg.Storage.S3ForcePathStyle,
			PublicBaseURL:  cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		if err := u.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return u, nil
	}
	return storage.NewFileSystemUploader(cfg.Storage.LocalDir, cfg.BaseURI+"/static")
}

func newDispatcher(ctx context.Context, cfg *config.Config, logger *logrus.Logger, metrics *observability.Metrics) (*mailer.Dispatcher, error) {
	var m mailer.Mailer
	switch cfg.Mail.Driver {
	case "smtp":
		smtp, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:      cfg.Mail.Host,
			Port:      cfg.Mail.Port,
			Username:  cfg.Mail.Username,
			Password:  cfg.Mail.Password,
			From:      cfg.Mail.From,
			TLSPolicy: cfg.Mail.TLSPolicy,
		})
		if err != nil {
			return nil, err
		}
		m = smtp
	default:
		m = mailer.NewLogMailer(logger)
	}
	return mailer.NewDispatcher(ctx, m, mailer.DispatcherConfig{BaseURI: cfg.BaseURI}, logger, metrics), nil
}

// newAuditLogger persists audit events and mirrors them to the log
func newAuditLogger(db *sql.DB, logger *logrus.Logger) (audit.Logger, error) {
	dbLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return nil, err
	}
	return audit.NewMultiLogger(dbLogger, audit.NewLogrusLogger(logger)), nil
}

// newLimiters returns Redis-backed limiters shared across replicas when
// Redis is configured, and per-process token buckets otherwise
func newLimiters(ctx context.Context, cfg *config.Config, client *redis.Client) (login, email middleware.Limiter) {
	loginConfig, emailConfig := api.LimitConfigs(cfg)
	if client != nil {
		return middleware.NewDistributedRateLimiter(client, loginConfig, "taskhub"),
			middleware.NewDistributedRateLimiter(client, emailConfig, "taskhub")
	}

	loginLimiter := middleware.NewRateLimiter(loginConfig)
	emailLimiter := middleware.NewRateLimiter(emailConfig)
	loginLimiter.StartCleanup(ctx)
	emailLimiter.StartCleanup(ctx)
	return loginLimiter, emailLimiter
}
