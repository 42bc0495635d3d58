package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/joao-fontenele/storefront-payments/internal/biteship"
	"github.com/joao-fontenele/storefront-payments/internal/catalog"
	"github.com/joao-fontenele/storefront-payments/internal/checkout"
	"github.com/joao-fontenele/storefront-payments/internal/config"
	"github.com/joao-fontenele/storefront-payments/internal/messaging"
	"github.com/joao-fontenele/storefront-payments/internal/notify"
	"github.com/joao-fontenele/storefront-payments/internal/orders"
	"github.com/joao-fontenele/storefront-payments/internal/shipping"
	"github.com/joao-fontenele/storefront-payments/internal/telemetry"
	"github.com/joao-fontenele/storefront-payments/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireShipping(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(ctx, postgresURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	httpClient := telemetry.NewHTTPClient(cfg.HTTPClientTimeout)
	orderRepo := orders.NewOrderRepository(db)

	orchestrator := shipping.NewOrchestrator(
		biteship.NewClient(cfg.Biteship.BaseURL, cfg.Biteship.APIKey, httpClient),
		orderRepo, catalog.NewProductRepository(db), cfg, logger,
	)
	dispatcher := notify.NewDispatcher(
		notify.NewMailer(cfg.Mail.BaseURL, cfg.Mail.APIKey, cfg.Mail.From, httpClient),
		orderRepo, notify.NewAccountRepository(db), cfg.Mail.StoreName, logger,
	)
	followUp := worker.NewFollowUpHandler(checkout.NewSubmissionRepository(db), orderRepo, orchestrator, dispatcher, logger)

	brokers := strings.Split(kafkaBrokers, ",")
	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderPaid, "order-follow-up", logger,
		messaging.WithRetry(5, 2*time.Second),
	)
	defer func() { _ = consumer.Close() }()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting order follow-up worker", "brokers", brokers)

	if err := consumer.Consume(ctx, followUp.Handle); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
