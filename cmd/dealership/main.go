package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/autovisiontech/dealership/cmd/dealership/cli"
	"github.com/autovisiontech/dealership/internal/app"
	"github.com/autovisiontech/dealership/internal/auth"
	"github.com/autovisiontech/dealership/internal/cars"
	"github.com/autovisiontech/dealership/internal/comments"
	"github.com/autovisiontech/dealership/internal/media"
	"github.com/autovisiontech/dealership/internal/observability"
	"github.com/autovisiontech/dealership/internal/platform/cache"
	"github.com/autovisiontech/dealership/internal/platform/db"
	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/reservations"
	"github.com/autovisiontech/dealership/internal/shared"
	"github.com/autovisiontech/dealership/internal/users"
	"github.com/autovisiontech/dealership/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if len(os.Args) > 1 {
		os.Exit(cli.Run(ctx, cfg.RedisAddr, os.Args[1:], os.Stdout, logger))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: time.Hour})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)

	catalog := rbac.DefaultCatalog()
	guard := rbac.NewGuard(auth.NewSessionResolver(sessionManager, authRepo), catalog)
	rbacMiddleware := rbac.Middleware{Guard: guard, Logger: logger, Metrics: metrics}

	store, err := media.NewDiskStore(cfg.UploadDir, cfg.UploadBaseURL, logger)
	if err != nil {
		logger.Error("init media store", slog.Any("error", err))
		os.Exit(1)
	}
	intake := media.NewIntake(store, cfg.UploadMaxFileBytes, logger, metrics)
	reconciler := media.NewReconciler(store, logger, metrics)
	compensator := media.NewCompensator(store, logger, metrics)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	idempotency := shared.NewIdempotencyStore(redisClient, 24*time.Hour)

	carsService := cars.NewService(cars.NewRepository(dbpool), reconciler, logger)
	usersService := users.NewService(users.NewRepository(dbpool), reconciler, shared.NewAuditLogger(dbpool), logger)
	reservationsService := reservations.NewService(reservations.NewRepository(dbpool), jobClient, logger)
	commentsService := comments.NewService(comments.NewRepository(dbpool), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Metrics:             metrics,
		RBACMiddleware:      rbacMiddleware,
		AuthHandler:         auth.NewHandler(logger, authService, sessionManager, rbacMiddleware),
		CarsHandler:         cars.NewHandler(logger, carsService, intake, compensator, rbacMiddleware),
		UsersHandler:        users.NewHandler(logger, usersService, intake, compensator, rbacMiddleware),
		ReservationsHandler: reservations.NewHandler(logger, reservationsService, rbacMiddleware).WithIdempotency(idempotency),
		CommentsHandler:     comments.NewHandler(logger, commentsService, rbacMiddleware),
		PermissionsHandler:  rbac.NewPermissionsHandler(logger, catalog, rbacMiddleware),
		JobHandler:          jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
