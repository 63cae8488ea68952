package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-fleet/internal/app"
	"github.com/odyssey-erp/odyssey-fleet/internal/authz"
	jobmetrics "github.com/odyssey-erp/odyssey-fleet/internal/jobs"
	"github.com/odyssey-erp/odyssey-fleet/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fleet/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

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

	var catalog *authz.Catalog
	if cfg.AuthzCatalogPath != "" {
		catalog, err = authz.LoadCatalog(cfg.AuthzCatalogPath)
	} else {
		catalog, err = authz.DefaultCatalog()
	}
	if err != nil {
		logger.Error("load module catalog", slog.Any("error", err))
		os.Exit(1)
	}

	store := authz.NewStore(pool, catalog, logger, cfg.ReservedRoles()...)
	driftJob := jobs.NewRuleDriftJob(store, catalog, logger, jobmetrics.NewMetrics(nil))

	driftTask, err := jobs.NewRuleDriftScanTask("")
	if err != nil {
		logger.Error("build drift task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRuleDriftScan, Handler: driftJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WorkerDriftCron, Task: driftTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
