package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joao-fontenele/storefront-payments/internal/gateway"
	"github.com/joao-fontenele/storefront-payments/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "gateway", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	paymentsServiceURL := os.Getenv("PAYMENTS_SERVICE_URL")
	if paymentsServiceURL == "" {
		logger.Error("PAYMENTS_SERVICE_URL is required")
		os.Exit(1)
	}

	shippingServiceURL := os.Getenv("SHIPPING_SERVICE_URL")
	if shippingServiceURL == "" {
		logger.Error("SHIPPING_SERVICE_URL is required")
		os.Exit(1)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	rps := envFloat("RATE_LIMIT_RPS", 10)
	burst := int(envFloat("RATE_LIMIT_BURST", 20))

	httpClient := telemetry.NewHTTPClient(30 * time.Second)

	handler := gateway.NewHandler(
		gateway.NewServiceProxy(paymentsServiceURL, httpClient),
		gateway.NewServiceProxy(shippingServiceURL, httpClient),
		logger,
	)
	limiter := gateway.NewRateLimiter(rps, burst, logger)
	staff := gateway.NewStaffAuth(jwtSecret, logger)

	public := func(h http.HandlerFunc) http.Handler {
		return limiter.Middleware(telemetry.WithHTTPRoute(h))
	}
	staffOnly := func(h http.HandlerFunc) http.Handler {
		return limiter.Middleware(staff.Middleware(telemetry.WithHTTPRoute(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /payments/callback", public(handler.HandlePayments))
	mux.Handle("GET /payments/callback", public(handler.HandlePayments))
	mux.Handle("POST /payments/transactions", public(handler.HandlePayments))
	mux.Handle("POST /shipping/rates", public(handler.HandleShipping))
	mux.Handle("GET /shipping/tracking/{waybill}", public(handler.HandleShipping))
	mux.Handle("GET /products/{productId}/dimensions", public(handler.HandleShipping))
	mux.Handle("GET /orders", staffOnly(handler.HandlePayments))
	mux.Handle("GET /orders/{id}", staffOnly(handler.HandlePayments))
	mux.Handle("POST /returns/{id}/approve", staffOnly(handler.HandleShipping))

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      telemetry.NewHandler(mux, "gateway"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go limiter.Cleanup(cleanupCtx, time.Minute)

	go func() {
		logger.Info("starting gateway service", "port", port)
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

func envFloat(name string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(name), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
