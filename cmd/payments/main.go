package main

import (
	"context"
	"log/slog"
	"net/http"
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
	"github.com/joao-fontenele/storefront-payments/internal/payments"
	"github.com/joao-fontenele/storefront-payments/internal/shipping"
	"github.com/joao-fontenele/storefront-payments/internal/signature"
	"github.com/joao-fontenele/storefront-payments/internal/telemetry"
	"github.com/joao-fontenele/storefront-payments/internal/tripay"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "payments", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("payments", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequirePayments(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireShipping(); err != nil {
		// Callbacks still create orders; shipments fail until this is fixed.
		logger.Warn("shipping settings incomplete", "error", err)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(ctx, postgresURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var publisher payments.EventPublisher
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		producer := messaging.NewProducer(strings.Split(kafkaBrokers, ","), messaging.TopicOrderPaid)
		defer func() { _ = producer.Close() }()
		publisher = producer
		logger.Info("publishing order.paid events", "brokers", kafkaBrokers)
	}

	httpClient := telemetry.NewHTTPClient(cfg.HTTPClientTimeout)

	submissionRepo := checkout.NewSubmissionRepository(db)
	orderRepo := orders.NewOrderRepository(db)
	productRepo := catalog.NewProductRepository(db)

	orchestrator := shipping.NewOrchestrator(
		biteship.NewClient(cfg.Biteship.BaseURL, cfg.Biteship.APIKey, httpClient),
		orderRepo, productRepo, cfg, logger,
	)
	dispatcher := notify.NewDispatcher(
		notify.NewMailer(cfg.Mail.BaseURL, cfg.Mail.APIKey, cfg.Mail.From, httpClient),
		orderRepo, notify.NewAccountRepository(db), cfg.Mail.StoreName, logger,
	)

	reconciler := payments.NewReconciler(payments.ReconcilerDeps{
		Verifier:     signature.NewVerifier(cfg.Tripay.PrivateKey),
		Resolver:     checkout.NewResolver(submissionRepo),
		Materializer: orders.NewMaterializer(submissionRepo, orderRepo),
		Orders:       orderRepo,
		Shipper:      orchestrator,
		Notifier:     dispatcher,
		Publisher:    publisher,
	}, logger)
	transactions := payments.NewTransactionService(tripay.NewClient(cfg.Tripay, httpClient), submissionRepo, logger)

	paymentsHandler := payments.NewHandler(reconciler, transactions, logger)
	ordersHandler := orders.NewHandler(orderRepo, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /payments/callback", telemetry.WithHTTPRoute(paymentsHandler.HandleCallback))
	mux.HandleFunc("GET /payments/callback", telemetry.WithHTTPRoute(paymentsHandler.HandleCallbackHealth))
	mux.HandleFunc("POST /payments/transactions", telemetry.WithHTTPRoute(paymentsHandler.HandleCreateTransaction))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(ordersHandler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGet))
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      telemetry.NewHandler(mux, "payments"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("starting payments service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
