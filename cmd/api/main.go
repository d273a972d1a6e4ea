package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/square-bookings/internal/api/router"
	"github.com/wolfman30/square-bookings/internal/app/bootstrap"
	"github.com/wolfman30/square-bookings/internal/auth"
	"github.com/wolfman30/square-bookings/internal/booking"
	appconfig "github.com/wolfman30/square-bookings/internal/config"
	"github.com/wolfman30/square-bookings/internal/http/handlers"
	"github.com/wolfman30/square-bookings/internal/notify"
	"github.com/wolfman30/square-bookings/internal/observability/metrics"
	"github.com/wolfman30/square-bookings/internal/observability/tracing"
	"github.com/wolfman30/square-bookings/internal/square"
	"github.com/wolfman30/square-bookings/internal/verify"
	"github.com/wolfman30/square-bookings/internal/web"
	"github.com/wolfman30/square-bookings/pkg/logging"
)

func main() {
	// Missing .env is fine.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting square-bookings server",
		"env", cfg.Env,
		"port", cfg.Port,
		"sandbox", cfg.SquareSandbox,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.OTelServiceName,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
		Environment: cfg.Env,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	handler, cleanup, err := buildApp(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer cleanup()

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// setupMetrics registers the booking collectors plus the Go runtime ones and
// returns the /metrics handler.
func setupMetrics(reg *prometheus.Registry) (http.Handler, *metrics.BookingMetrics) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewBookingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// buildApp wires the remote clients, the booking service and the router.
// The returned cleanup waits for in-flight confirmations, then releases Redis
// and limiter resources. Run it after the HTTP server has stopped.
func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg *prometheus.Registry) (http.Handler, func(), error) {
	metricsHandler, bookingMetrics := setupMetrics(reg)

	squareClient := square.NewClient(cfg.SquareAccessToken, logger).
		WithBaseURL(cfg.SquareAPIBaseURL()).
		WithObserver(bookingMetrics)
	verifyClient := verify.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioVerificationSID, logger).
		WithObserver(bookingMetrics)

	emailSender, err := bootstrap.BuildEmailSender(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	notifier := notify.NewNotifier(emailSender, bootstrap.BuildSMSSender(cfg, logger), cfg.PublicBaseURL, logger)

	svc := booking.NewService(booking.Deps{
		Catalog:   squareClient,
		Bookings:  squareClient,
		Team:      squareClient,
		Customers: squareClient,
		Cards:     squareClient,
		Payments:  squareClient,
		Locations: squareClient,
		Verifier:  verifyClient,
		Tokens:    auth.NewTokenIssuer(cfg.VerifyTokenSecret, cfg.VerifyTokenTTL),
		Notifier:  notifier,
		Metrics:   bookingMetrics,
	}, booking.Options{
		LocationID:    cfg.SquareLocationID,
		Currency:      cfg.DepositCurrency,
		ReferenceID:   cfg.SquareReferenceID,
		LeadTime:      cfg.AvailabilityLeadTime,
		WindowDays:    cfg.AvailabilityWindowDays,
		Timezone:      cfg.Location(),
		NotifyTimeout: cfg.NotifyTimeout,
	}, logger)

	pages, err := web.NewRenderer(web.PaymentsConfig{
		ApplicationID: cfg.SquareApplicationID,
		LocationID:    cfg.SquareLocationID,
		Sandbox:       cfg.SquareSandbox,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("templates: %w", err)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	limiter, closeLimiter := bootstrap.BuildSMSLimiter(cfg, redisClient, logger)
	cleanup := func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.NotifyTimeout)
		defer cancel()
		if err := svc.Wait(drainCtx); err != nil {
			logger.Warn("pending confirmations abandoned", "error", err)
		}
		closeLimiter()
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}

	traceName := ""
	if cfg.OTelEnabled {
		traceName = cfg.OTelServiceName
	}
	handler := router.New(&router.Config{
		Logger:             logger,
		Booking:            handlers.NewBookingHandler(svc, pages, logger),
		SMSLimiter:         limiter,
		RateLimitFailOpen:  true,
		Metrics:            bookingMetrics,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowOrigins,
		TraceName:          traceName,
	})
	return handler, cleanup, nil
}
