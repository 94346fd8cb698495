package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"spicepay/config"
	"spicepay/gateway/middleware"
	"spicepay/gateway/paymob"
	"spicepay/gateway/server"
	"spicepay/observability/logging"
	"spicepay/observability/otel"
	"spicepay/storage/deliveries"
	"spicepay/storage/orders"
)

func main() {
	configPath := flag.String("config", "paymentsd.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.Setup("paymentsd", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enable {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "paymentsd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			logger.Error("init telemetry", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
			}
		}()
	}

	db, err := openOrderDB(cfg)
	if err != nil {
		logger.Error("open order database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := orders.AutoMigrate(db); err != nil {
		logger.Error("migrate order schema", slog.String("error", err.Error()))
		os.Exit(1)
	}

	deliveryLog, err := deliveries.Open(cfg.DeliveryLogPath)
	if err != nil {
		logger.Error("open delivery log", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := deliveryLog.Close(); err != nil {
			logger.Warn("close delivery log", slog.String("error", err.Error()))
		}
	}()

	verifier, err := paymob.NewVerifier(cfg.PaymobHMACSecret)
	if err != nil {
		logger.Error("configure verifier", slog.String("error", err.Error()))
		os.Exit(1)
	}

	gateway := server.New(server.Config{
		Orders:     orders.NewGormStore(db),
		Deliveries: deliveryLog,
		Verifier:   verifier,
		Logger:     logger,
		RateLimit: middleware.Limit{
			PerMinute: cfg.CallbackRatePerMinute,
			Burst:     cfg.CallbackBurst,
		},
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(gateway.Handler(), "paymentsd"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("payments gateway listening", slog.String("addr", cfg.ListenAddress))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("payments gateway stopped")
}

// openOrderDB prefers the Postgres DSN and falls back to an embedded SQLite
// file for single-node deployments.
func openOrderDB(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{}
	if cfg.DatabaseURL != "" {
		return gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
	}
	return gorm.Open(sqlite.Open(cfg.DatabasePath), gormCfg)
}
