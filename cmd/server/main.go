package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/garnizeh/intake/api"
	dbfs "github.com/garnizeh/intake/db"
	"github.com/garnizeh/intake/internal/audit"
	"github.com/garnizeh/intake/internal/config"
	"github.com/garnizeh/intake/internal/db"
	"github.com/garnizeh/intake/internal/jobs"
	"github.com/garnizeh/intake/internal/lifecycle"
	"github.com/garnizeh/intake/internal/notify"
	"github.com/garnizeh/intake/internal/repository/sqlite"
	"github.com/garnizeh/intake/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	api.SetLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Info("starting intake server", slog.String("version", version), slog.String("build_time", buildTime))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("close db", slog.Any("err", err))
		}
	}()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	repos := sqlite.New(database, logger).Repository()
	sink := audit.NewRepoSink(repos.Log, logger)

	mailer, err := newMailer(cfg.Mail, logger)
	if err != nil {
		return err
	}

	var dispatcher notify.Dispatcher
	if cfg.Notify.Mode == "inline" {
		dispatcher = notify.NewInline(mailer, sink, logger)
	} else {
		jobRepo := jobs.NewRepository(database)
		if n, err := jobRepo.RequeueRunning(ctx); err != nil {
			return err
		} else if n > 0 {
			logger.Warn("requeued jobs interrupted by a previous run", slog.Int64("count", n))
		}
		dispatcher = notify.NewOutbox(jobRepo, cfg.Notify.MaxAttempts, logger)
		pool := jobs.NewWorkerPool(jobRepo, map[string]jobs.Handler{
			notify.JobType: notify.EmailHandler(mailer),
		}, logger, cfg.Notify.WorkerCount, jobs.WithPollInterval(cfg.Notify.PollInterval))
		pool.Start(ctx)
		defer pool.Stop()
	}

	store, closeStore, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	policy, err := api.NewPolicy(cfg.Policy.Overrides)
	if err != nil {
		return err
	}

	svc := lifecycle.NewService(repos, sink, dispatcher,
		lifecycle.WithGuard(lifecycle.Guard(cfg.Lifecycle.Guard)),
		lifecycle.WithLogger(logger))

	handler, err := api.SetupRoutes(cfg, version, buildTime, api.Deps{
		Repos:   repos,
		Service: svc,
		Sink:    sink,
		Store:   store,
		Policy:  policy,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

func newMailer(cfg config.MailConfig, logger *slog.Logger) (notify.Mailer, error) {
	switch cfg.Transport {
	case "smtp":
		return notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			FromName: cfg.FromName,
			From:     cfg.From,
		})
	case "sendgrid":
		return notify.NewSendGridMailer(cfg.SendGridAPIKey, cfg.FromName, cfg.From)
	default:
		return notify.NewLogMailer(logger), nil
	}
}

func newStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, func(), error) {
	if cfg.Backend == "gcs" {
		s, err := storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.CredentialsFile, cfg.SignedURLTTL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	s, err := storage.NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {}, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
