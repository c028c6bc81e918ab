package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/gpo-backend/api/routes"
	"github.com/angelmondragon/gpo-backend/internal/demand"
	"github.com/angelmondragon/gpo-backend/internal/grouporders"
	"github.com/angelmondragon/gpo-backend/internal/groups"
	"github.com/angelmondragon/gpo-backend/internal/intents"
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
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gpoMetrics := metrics.NewGPOMetrics(registry)

	locker, err := keylock.NewRedisLocker(redisClient, cfg.GPO.KeyLockTTL, cfg.GPO.KeyLockWait)
	if err != nil {
		logg.Error(context.Background(), "failed to create key locker", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	groupService, err := groups.NewService(groups.NewRepository(conn), cfg.GPO)
	if err != nil {
		logg.Error(context.Background(), "failed to create group service", err)
		os.Exit(1)
	}
	intentService, err := intents.NewService(intents.ServiceParams{
		Repo:    intents.NewRepository(conn),
		Tx:      dbClient,
		Locker:  locker,
		Logger:  logg,
		Metrics: gpoMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create intent service", err)
		os.Exit(1)
	}
	demandService, err := demand.NewService(demand.NewRepository(conn), groupService)
	if err != nil {
		logg.Error(context.Background(), "failed to create demand service", err)
		os.Exit(1)
	}
	savingsService, err := savings.NewService(savings.NewRepository(conn), gpoMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create savings service", err)
		os.Exit(1)
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
		logg.Error(context.Background(), "failed to create group order service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			groupService,
			intentService,
			demandService,
			orderService,
			savingsService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
