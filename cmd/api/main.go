package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/orderplanner/api/routes"
	"github.com/angelmondragon/orderplanner/internal/ingest"
	product "github.com/angelmondragon/orderplanner/internal/products"
	"github.com/angelmondragon/orderplanner/internal/weeks"
	"github.com/angelmondragon/orderplanner/pkg/config"
	"github.com/angelmondragon/orderplanner/pkg/db"
	"github.com/angelmondragon/orderplanner/pkg/instance"
	"github.com/angelmondragon/orderplanner/pkg/logger"
	"github.com/angelmondragon/orderplanner/pkg/metrics"
	"github.com/angelmondragon/orderplanner/pkg/migrate"
	"github.com/angelmondragon/orderplanner/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
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

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	planningMetrics := metrics.NewPlanningMetrics(prometheus.DefaultRegisterer)

	deps := routes.Dependencies{
		DB:      dbClient,
		Metrics: promhttp.Handler(),
		Now:     time.Now,
	}

	var locker weeks.WeekLocker = weeks.NewLocalLocker()
	if cfg.Redis.Enabled() {
		var redisClient *redis.Client
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
		deps.Redis = redisClient

		locker, err = weeks.NewRedisLocker(weeks.RedisLockerParams{
			Client:   redisClient,
			Instance: instance.GetID(),
			TTL:      cfg.Planning.LockTTL,
			Wait:     cfg.Planning.LockWait,
			Poll:     cfg.Planning.LockPollInterval,
			Metrics:  planningMetrics,
			Logger:   logg,
		})
		if err != nil {
			return err
		}
	} else {
		logg.Warn(ctx, "redis not configured, week locks are process-local")
	}

	parser, err := ingest.NewParser(cfg.Import)
	if err != nil {
		return err
	}

	productRepo := product.NewRepository(dbClient.DB())
	weekService, err := weeks.NewService(weeks.ServiceParams{
		Repository:     weeks.NewRepository(dbClient.DB()),
		Products:       productRepo,
		DB:             dbClient,
		Locker:         locker,
		Parser:         parser,
		Metrics:        planningMetrics,
		Logger:         logg,
		OpenWeeksAhead: cfg.Planning.OpenWeeksAhead,
	})
	if err != nil {
		return err
	}
	productService, err := product.NewService(productRepo, dbClient, weekService, logg)
	if err != nil {
		return err
	}
	deps.Weeks = weekService
	deps.Products = productService

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-serveErr
}
