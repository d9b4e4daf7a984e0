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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/booking-feed/internal/config"
	"github.com/jwalitptl/booking-feed/internal/handler/health"
	notificationHandler "github.com/jwalitptl/booking-feed/internal/handler/notification"
	promHandler "github.com/jwalitptl/booking-feed/internal/handler/prometheus"
	"github.com/jwalitptl/booking-feed/internal/presenter"
	"github.com/jwalitptl/booking-feed/internal/repository/rest"
	"github.com/jwalitptl/booking-feed/internal/router"
	eventService "github.com/jwalitptl/booking-feed/internal/service/event"
	notificationService "github.com/jwalitptl/booking-feed/internal/service/notification"
	"github.com/jwalitptl/booking-feed/internal/transport"
	"github.com/jwalitptl/booking-feed/pkg/logger"
	"github.com/jwalitptl/booking-feed/pkg/metrics"
	"github.com/jwalitptl/booking-feed/pkg/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Logging.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Logging.Pretty,
	})
	// Middleware logs through the global logger.
	log.Logger = appLogger.ZL

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(cfg.Monitoring.Namespace, registry)

	// Initialize the event broker
	broker, err := transport.Open(ctx, cfg, appLogger, m)
	if err != nil {
		appLogger.Fatal(err, "failed to create event broker")
	}
	defer broker.Close()

	// Initialize backend repositories
	backend := rest.NewClient(cfg.ToBackendConfig(), m, appLogger)
	notificationRepo := rest.NewNotificationRepository(backend)
	customerRepo := rest.NewCustomerRepository(backend)

	// Initialize services
	notificationLog := notificationService.NewLog(m)
	acker := notificationService.NewAcknowledger(notificationLog, notificationRepo, notificationService.AckConfig{
		StaffID: cfg.Staff.ID,
		Timeout: cfg.Feed.AckTimeout,
	}, m, appLogger)

	source := eventService.NewSource(broker, notificationLog, cfg.ToSourceConfig(),
		eventService.WithHistory(notificationRepo),
		eventService.WithReconciler(acker),
		eventService.WithMetrics(m),
		eventService.WithLogger(appLogger),
	)
	svc := notificationService.NewService(notificationLog, acker, source)

	// Initialize handlers
	directory := presenter.NewCustomerDirectory(customerRepo, cfg.Customers.CacheTTL, cfg.Customers.CleanupInterval)
	notifH := notificationHandler.NewHandler(svc, notificationRepo, presenter.NewRenderer(directory), cfg.Feed.Scope, appLogger)
	healthH := health.NewHandler(source)
	metricsH := promHandler.New(cfg.Monitoring.Namespace, registry)

	// Setup router
	r := router.NewRouter(notifH, healthH, metricsH, cfg.ToRouterConfig())
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return source.Run(gctx)
	})

	if cfg.HistorySync.Enabled {
		historySync := worker.NewHistorySync(notificationRepo, notificationLog, acker, cfg.ToWorkerConfig(), appLogger, m)
		g.Go(func() error {
			return historySync.Start(gctx)
		})
	}

	g.Go(func() error {
		appLogger.Info("Starting server", "addr", srv.Addr, "channel", cfg.Channel(), "transport", cfg.Feed.Transport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Fatal(err, "server exited with error")
	}
	appLogger.Info("Server exited properly")
}
