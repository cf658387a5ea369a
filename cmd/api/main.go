package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"busticket/internal/api"
	"busticket/internal/config"
	"busticket/internal/database"
	"busticket/internal/domain"
	"busticket/internal/events"
	"busticket/internal/filestore"
	"busticket/internal/google"
	"busticket/internal/logging"
	"busticket/internal/metrics"
	"busticket/internal/notify"
	"busticket/internal/payment"
	"busticket/internal/repository"
	"busticket/internal/service"
	"busticket/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	loc, err := cfg.App.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	store, db, degraded, err := openStore(cfg, &logger)
	if err != nil {
		return err
	}
	defer store.Close()
	metrics.SetStorageBackend(store.Name())

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus()
	sinks, sinkClosers := initSinks(ctx, cfg, &logger)
	defer func() {
		for _, c := range sinkClosers {
			_ = c.Close()
		}
	}()
	dispatcher := worker.NewDispatcher(sinks, cfg.Events.QueueSize, worker.PolicyFromConfig(cfg.Events.Retry), redisClient,
		logging.Component(&logger, "dispatcher"))
	dispatcher.Attach(bus)
	go dispatcher.Start(ctx)

	bookings := service.NewBookingService(service.BookingServiceDeps{
		Store:    store,
		Locker:   initLocker(cfg, redisClient, &logger),
		Gateway:  initGateway(cfg, &logger),
		Events:   bus,
		Config:   cfg.Booking,
		Currency: cfg.Payments.Currency,
		Location: loc,
		Logger:   logging.Component(&logger, "bookings"),
	})
	payments := service.NewPaymentService(store,
		payment.NewSignatureVerifier(cfg.Payments.Razorpay.KeySecret),
		cfg.Payments.PayHere.MerchantSecret,
		bus,
		logging.Component(&logger, "payments"))
	vehicles := service.NewVehicleService(store, loc, logging.Component(&logger, "vehicles"))
	auth := service.NewAuthService(store, cfg.Auth, cfg.App.Name, logging.Component(&logger, "auth"))

	seedVehicles(ctx, cfg, store, &logger)
	if err := auth.EnsureBootstrapAdmin(ctx, cfg.Auth.BootstrapAdmin); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	if db != nil {
		go database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup")).Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(api.Deps{
		App:                cfg.App,
		API:                cfg.API,
		CancellationWindow: cfg.Booking.CancellationWindow,
		Currency:           cfg.Payments.Currency,
		Location:           loc,
		Bookings:           bookings,
		Payments:           payments,
		Vehicles:           vehicles,
		Auth:               auth,
		Store:              store,
		Degraded:           degraded,
		Logger:             logging.Component(&logger, "http"),
	})

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// openStore probes SQLite once at startup and falls back to the JSON file
// store when it cannot be opened within the probe timeout.
func openStore(cfg *config.Config, logger *zerolog.Logger) (domain.Store, *database.DB, bool, error) {
	type probe struct {
		db  *database.DB
		err error
	}
	result := make(chan probe, 1)
	go func() {
		db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
		result <- probe{db: db, err: err}
	}()

	select {
	case p := <-result:
		if p.err == nil {
			return p.db, p.db, false, nil
		}
		logger.Warn().Err(p.err).Str("db_path", cfg.Database.Path).Msg("SQLite unavailable, using file store")
	case <-time.After(cfg.Database.ProbeTimeout):
		logger.Warn().Dur("timeout", cfg.Database.ProbeTimeout).Msg("SQLite probe timed out, using file store")
		go func() {
			if p := <-result; p.db != nil {
				_ = p.db.Close()
			}
		}()
	}

	fs, err := filestore.Open(cfg.Database.FileStorePath, logging.Component(logger, "filestore"))
	if err != nil {
		return nil, nil, false, fmt.Errorf("open file store: %w", err)
	}
	return fs, nil, true, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := redisClient.Ping(pingCtx).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initLocker(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.SeatLocker {
	memory := repository.NewMemorySeatLocker()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverSeatLocker(
		repository.NewRedisSeatLocker(redisClient, cfg.Redis.LockTTL),
		memory,
		logging.Component(logger, "seat-locker"),
	)
}

func initGateway(cfg *config.Config, logger *zerolog.Logger) domain.CheckoutGateway {
	if !cfg.Payments.PayHere.Enabled() {
		logger.Info().Msg("PayHere not configured, online payments disabled")
		return nil
	}
	return payment.NewPayHereClient(cfg.Payments.PayHere, cfg.Payments.Currency, logging.Component(logger, "payhere"))
}

func initSinks(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) ([]worker.Sink, []io.Closer) {
	var (
		sinks   []worker.Sink
		closers []io.Closer
	)

	if cfg.Events.Kafka.Topic != "" {
		sink := notify.NewKafkaSink(cfg.Events.Kafka, logging.Component(logger, "kafka"))
		sinks = append(sinks, sink)
		closers = append(closers, sink)
	}

	if cfg.Events.AMQP.URL != "" {
		sink, err := notify.DialAMQP(cfg.Events.AMQP, logging.Component(logger, "amqp"))
		if err != nil {
			logger.Warn().Err(err).Msg("amqp init failed, continuing without amqp")
		} else {
			sinks = append(sinks, sink)
			closers = append(closers, sink)
		}
	}

	if cfg.Telegram.BotToken != "" && len(cfg.Telegram.AdminChatIDs) > 0 {
		sink, err := notify.NewTelegramSink(cfg.Telegram, cfg.Payments.Currency, logging.Component(logger, "telegram"))
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without admin alerts")
		} else {
			sinks = append(sinks, sink)
		}
	}

	if cfg.Google.CredentialsFile != "" && cfg.Google.LedgerSpreadsheetID != "" {
		sink, err := initLedger(ctx, cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("google sheets init failed, continuing without ledger")
		} else {
			sinks = append(sinks, sink)
		}
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info().Strs("sinks", names).Msg("event sinks configured")
	return sinks, closers
}

func initLedger(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*google.LedgerSink, error) {
	sink, err := google.NewLedgerSink(ctx, cfg.Google, logging.Component(logger, "sheets"))
	if err != nil {
		return nil, err
	}
	if err := sink.EnsureHeader(ctx); err != nil {
		return nil, err
	}
	if err := sink.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("ledger cache warm-up failed")
	}
	return sink, nil
}

func seedVehicles(ctx context.Context, cfg *config.Config, store domain.Store, logger *zerolog.Logger) {
	if cfg.Seed.VehiclesFile == "" {
		return
	}
	catalog, err := service.LoadVehicleCatalog(cfg.Seed.VehiclesFile)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info().Str("path", cfg.Seed.VehiclesFile).Msg("no vehicle catalog, skipping seed")
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.Seed.VehiclesFile).Msg("load vehicle catalog")
		return
	}
	if _, err := service.SeedVehicles(ctx, store, catalog, logging.Component(logger, "seed")); err != nil {
		logger.Error().Err(err).Msg("seed vehicles")
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if !cfg.API.HTTP.Enabled {
			logger.Warn().Msg("HTTP API is disabled in config")
			return
		}
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
