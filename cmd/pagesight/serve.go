package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/de3sec/pagesight/internal/config"
	"github.com/de3sec/pagesight/internal/events"
	"github.com/de3sec/pagesight/internal/handlers"
	"github.com/de3sec/pagesight/internal/logging"
	"github.com/de3sec/pagesight/internal/middleware"
	"github.com/de3sec/pagesight/internal/realtime"
	"github.com/de3sec/pagesight/internal/repository"
	"github.com/de3sec/pagesight/internal/sampling"
	"github.com/de3sec/pagesight/internal/server"
	"github.com/de3sec/pagesight/internal/service"
	"github.com/de3sec/pagesight/pkg/tokens"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analytics collector and query API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("pagesight"))
	logging.SetDefault(logger)

	slog.Info("Starting PageSight",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)

	if cfg.Database.AutoMigrate {
		slog.Info("Running database migrations", slog.String("path", cfg.Database.MigrationsPath))
		m, err := migrate.New("file://"+cfg.Database.MigrationsPath, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to initialize migrations: %w", err)
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Info("Database migrations completed")
	}

	store, err := repository.NewPostgresStore(context.Background(), cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer store.Close()

	var tracker realtime.Tracker
	if cfg.Redis.URL != "" {
		rt, err := realtime.NewRedisTracker(cfg.Redis.URL)
		if err != nil {
			slog.Warn("Realtime tracker unavailable, realtime queries will use the event store",
				slog.String("error", err.Error()))
			tracker = &realtime.NoOpTracker{}
		} else {
			slog.Info("Realtime tracker connected", slog.String("redis_url", cfg.Redis.URL))
			tracker = rt
		}
	} else {
		slog.Info("Redis not configured, realtime queries will use the event store")
		tracker = &realtime.NoOpTracker{}
	}

	var publisher events.Publisher
	if cfg.NATS.URL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATS.URL, "pagesight")
		if err != nil {
			slog.Warn("Event publisher unavailable, continuing without",
				slog.String("error", err.Error()))
			publisher = &events.NoOpPublisher{}
		} else {
			slog.Info("Event publisher connected", slog.String("nats_url", cfg.NATS.URL))
			publisher = pub
			defer pub.Close()
		}
	} else {
		publisher = &events.NoOpPublisher{}
	}

	ingestSvc := service.NewIngestService(store, tracker, publisher, sampling.New(), logger)
	analyticsSvc := service.NewAnalyticsService(store, tracker, logger)
	registrySvc := service.NewRegistryService(store, logger)

	tokenGen := tokens.NewTokenGenerator(cfg.Auth.JWTSecret)

	router := server.NewRouter(server.Handlers{
		Collect:   handlers.NewCollectHandler(ingestSvc, logger),
		Analytics: handlers.NewAnalyticsHandler(analyticsSvc, logger),
		Websites:  handlers.NewWebsitesHandler(registrySvc, logger),
		Script:    handlers.NewScriptHandler(store, cfg.Server.PublicBaseURL, logger),
		Health:    handlers.NewHealthHandler(store),
		Auth:      middleware.NewAuthMiddleware(tokenGen),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      limitBody(router, cfg.Collector.MaxBodySize),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("PageSight listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		slog.Info("Shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	slog.Info("Server stopped gracefully")
	return nil
}

// limitBody caps request bodies so oversized collect payloads fail the JSON
// decode instead of buffering unbounded input.
func limitBody(next http.Handler, max int64) http.Handler {
	if max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	})
}
