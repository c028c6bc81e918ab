package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/gpo-backend/internal/cron"
	"github.com/angelmondragon/gpo-backend/internal/demand"
	"github.com/angelmondragon/gpo-backend/internal/grouporders"
	"github.com/angelmondragon/gpo-backend/internal/groups"
	"github.com/angelmondragon/gpo-backend/internal/keylock"
	"github.com/angelmondragon/gpo-backend/internal/savings"
	"github.com/angelmondragon/gpo-backend/pkg/config"
	"github.com/angelmondragon/gpo-backend/pkg/db"
	"github.com/angelmondragon/gpo-backend/pkg/instance"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
	"github.com/angelmondragon/gpo-backend/pkg/metrics"
	"github.com/angelmondragon/gpo-backend/pkg/migrate"
	"github.com/angelmondragon/gpo-backend/pkg/outbox"
	"github.com/angelmondragon/gpo-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := cron.NewRegistry()

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       outbox.NewRepository(dbClient.DB()),
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	mustRegister(logg, registry, retentionJob)

	if cfg.GPO.AutoPoolEnabled {
		poolingJob, err := newPoolingJob(cfg, logg, dbClient, redisClient)
		if err != nil {
			logg.Error(context.Background(), "failed to create pooling job", err)
			os.Exit(1)
		}
		mustRegister(logg, registry, poolingJob)
	}

	lock, err := cron.NewRedisLock(redisClient, cfg.App.Env, 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.GPO.PoolInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(groupCtx) })
	if addr := cfg.Service.MetricsAddr; addr != "" {
		group.Go(func() error { return metrics.Serve(groupCtx, addr, prometheus.DefaultGatherer, logg) })
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func newPoolingJob(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (cron.Job, error) {
	locker, err := keylock.NewRedisLocker(redisClient, cfg.GPO.KeyLockTTL, cfg.GPO.KeyLockWait)
	if err != nil {
		return nil, err
	}
	conn := dbClient.DB()
	gpoMetrics := metrics.NewGPOMetrics(prometheus.DefaultRegisterer)

	groupService, err := groups.NewService(groups.NewRepository(conn), cfg.GPO)
	if err != nil {
		return nil, err
	}
	demandService, err := demand.NewService(demand.NewRepository(conn), groupService)
	if err != nil {
		return nil, err
	}
	savingsService, err := savings.NewService(savings.NewRepository(conn), gpoMetrics)
	if err != nil {
		return nil, err
	}
	orderService, err := grouporders.NewService(grouporders.ServiceParams{
		Repo:    grouporders.NewRepository(conn),
		Tx:      dbClient,
		Groups:  groupService,
		Demand:  demandService,
		Savings: savingsService,
		Outbox:  outbox.NewService(outbox.NewRepository(conn), logg),
		Locker:  locker,
		Logger:  logg,
		Metrics: gpoMetrics,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewPoolingJob(cron.PoolingJobParams{
		Logger:    logg,
		Groups:    groupService,
		Demand:    demandService,
		Orders:    orderService,
		Lookahead: cfg.GPO.PoolLookaheadMonths,
	})
}

func mustRegister(logg *logger.Logger, registry *cron.Registry, job cron.Job) {
	if err := registry.Register(job); err != nil {
		logg.Error(context.Background(), "failed to register cron job", err)
		os.Exit(1)
	}
}
