package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rakibulhasan-dev/bazarly-backend/api/routes"
	"github.com/rakibulhasan-dev/bazarly-backend/internal/inventory"
	internalorders "github.com/rakibulhasan-dev/bazarly-backend/internal/orders"
	"github.com/rakibulhasan-dev/bazarly-backend/internal/payments"
	bkashwebhook "github.com/rakibulhasan-dev/bazarly-backend/internal/webhooks/bkash"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/bkash"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/config"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/db"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/logger"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/metrics"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/migrate"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/outbox"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/redis"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/webhookverify"
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
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	adjuster := inventory.NewAdjuster()
	ordersRepo := internalorders.NewRepository(dbClient.DB())

	ordersSvc, err := internalorders.NewService(ordersRepo, dbClient, outboxSvc, adjuster)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	gateway := bkash.NewClient(cfg.Bkash, logg)
	if !gateway.IsConfigured() {
		logg.Warn(context.Background(), "bkash credentials missing, payment initiation degrades to advisory")
	}

	engine, err := payments.NewEngine(payments.EngineParams{
		Orders:    ordersRepo,
		Payments:  payments.NewRepository(dbClient.DB()),
		Tx:        dbClient,
		Gateway:   gateway,
		Inventory: adjuster,
		Outbox:    outboxSvc,
		Metrics:   paymentMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments engine", err)
		os.Exit(1)
	}

	guard, err := bkashwebhook.NewGuard(redisClient, cfg.Webhook.DedupTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}
	webhookSvc, err := bkashwebhook.NewService(bkashwebhook.ServiceParams{
		Verifier: webhookverify.HMACVerifier{
			Header: cfg.Webhook.SignatureHeader,
			Secret: cfg.Webhook.Secret,
		},
		Guard:   guard,
		Engine:  engine,
		Metrics: paymentMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.RouterParams{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		Orders:         ordersSvc,
		Engine:         engine,
		WebhookService: webhookSvc,
		Metrics:        registry,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
