package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/autovisiontech/dealership/internal/app"
	jobmetrics "github.com/autovisiontech/dealership/internal/jobs"
	"github.com/autovisiontech/dealership/internal/media"
	"github.com/autovisiontech/dealership/internal/observability"
	"github.com/autovisiontech/dealership/internal/platform/db"
	"github.com/autovisiontech/dealership/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: time.Hour})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	store, err := media.NewDiskStore(cfg.UploadDir, cfg.UploadBaseURL, logger)
	if err != nil {
		logger.Error("init media store", slog.Any("error", err))
		os.Exit(1)
	}
	sweepJob := jobs.NewMediaSweepJob(
		media.NewSweeper(store, logger, metrics),
		jobs.PGReferences{Pool: pool},
		cfg.MediaSweepGrace,
		logger,
		jobMetrics,
	)
	mailJob := &jobs.MailJob{Logger: logger, Metrics: jobMetrics}

	sweepTask, err := jobs.NewMediaSweepTask(time.Time{})
	if err != nil {
		logger.Error("build media sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
			{Type: jobs.TaskMediaSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.MediaSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
