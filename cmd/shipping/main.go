package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/joao-fontenele/storefront-payments/internal/biteship"
	"github.com/joao-fontenele/storefront-payments/internal/catalog"
	"github.com/joao-fontenele/storefront-payments/internal/config"
	"github.com/joao-fontenele/storefront-payments/internal/orders"
	"github.com/joao-fontenele/storefront-payments/internal/returns"
	"github.com/joao-fontenele/storefront-payments/internal/shipping"
	"github.com/joao-fontenele/storefront-payments/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "shipping", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("shipping", "0.1.0")
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
	if err := cfg.RequireShipping(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
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

	aggregator := biteship.NewClient(cfg.Biteship.BaseURL, cfg.Biteship.APIKey, telemetry.NewHTTPClient(cfg.HTTPClientTimeout))
	orderRepo := orders.NewOrderRepository(db)
	productRepo := catalog.NewProductRepository(db)

	orchestrator := shipping.NewOrchestrator(aggregator, orderRepo, productRepo, cfg, logger)
	returnService := shipping.NewReturnService(orchestrator, returns.NewReturnRepository(db), orderRepo, logger)

	shippingHandler := shipping.NewHandler(aggregator, orchestrator, cfg.Biteship.CourierList(), logger)
	returnsHandler := returns.NewHandler(returnService, logger)
	catalogHandler := catalog.NewHandler(productRepo, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /shipping/rates", telemetry.WithHTTPRoute(shippingHandler.HandleRates))
	mux.HandleFunc("GET /shipping/tracking/{waybill}", telemetry.WithHTTPRoute(shippingHandler.HandleTracking))
	mux.HandleFunc("POST /returns/{id}/approve", telemetry.WithHTTPRoute(returnsHandler.HandleApprove))
	mux.HandleFunc("GET /products/{productId}/dimensions", telemetry.WithHTTPRoute(catalogHandler.HandleGetDimensions))
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      telemetry.NewHandler(mux, "shipping"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting shipping service", "port", port)
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
