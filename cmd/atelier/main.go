package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atelier-ai/atelier/internal/app"
	"github.com/atelier-ai/atelier/internal/apps"
	"github.com/atelier-ai/atelier/internal/audit"
	"github.com/atelier-ai/atelier/internal/datasets"
	"github.com/atelier-ai/atelier/internal/observability"
	"github.com/atelier-ai/atelier/internal/permission"
	"github.com/atelier-ai/atelier/internal/platform/cache"
	"github.com/atelier-ai/atelier/internal/platform/db"
	"github.com/atelier-ai/atelier/internal/resource"
	"github.com/atelier-ai/atelier/internal/team"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	teamService := team.NewService(team.NewRepository(pool))
	appsRepo := apps.NewRepository(pool)
	datasetsRepo := datasets.NewRepository(pool)
	tree := resource.NewTreeMux(appsRepo, datasetsRepo)

	permService := permission.NewService(
		permission.NewRepository(pool),
		teamService,
		tree,
		cache.NewLocker(redisClient),
		audit.NewLogger(pool),
		metrics,
		logger,
	)

	permService.SetSyncLockTTL(cfg.SyncLockTTL)

	lister := resource.NewLister(permService, metrics, logger, appsRepo, datasetsRepo)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AppsHandler:     resource.NewHandler(apps.Domain(), lister, permService, teamService),
		DatasetsHandler: resource.NewHandler(datasets.Domain(), lister, permService, teamService),
		AuditHandler:    audit.NewHandler(audit.NewService(audit.NewSQLRepository(pool))),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
