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
	"strconv"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"classbook/internal/api"
	"classbook/internal/config"
	"classbook/internal/database"
	"classbook/internal/domain"
	"classbook/internal/events"
	"classbook/internal/export"
	"classbook/internal/google"
	"classbook/internal/logging"
	"classbook/internal/metrics"
	"classbook/internal/models"
	"classbook/internal/repository"
	"classbook/internal/service"
	"classbook/internal/worker"

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

	db, err := database.Open(cfg.Database, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	defer (func() { _ = repository.Close(redisClient) })()

	// События публикуются только после коммита; доставка идёт через outbox.
	bus := events.NewEventBus()
	outbox := worker.NewNotificationWorker(db, redisClient, cfg.Notifications.Worker, logging.Component(logger, "notifications"))
	if cfg.Notifications.Enabled {
		registerSenders(ctx, cfg, outbox, logger)
		service.NewNotifier(outbox, notifierSettings(cfg), logging.Component(logger, "notifier")).Subscribe(bus)
	}

	throttle := initThrottle(redisClient, logger)
	accounts := service.NewAccountService(db, throttle, bus, service.AccountSettings{
		LoginMaxAttempts:  cfg.Auth.LoginMaxAttempts,
		LoginWindow:       cfg.Auth.LoginWindow,
		AdminUsername:     cfg.Auth.AdminUsername,
		AdminPasswordHash: cfg.Auth.AdminPasswordHash,
	}, logging.Component(logger, "accounts"))
	classes := service.NewClassService(db, cfg.Admission.MinEnrollment, logging.Component(logger, "classes"))
	admission := service.NewAdmissionService(db, db, accounts, db, bus,
		cfg.Admission.Mode, cfg.Admission.MinEnrollment, logging.Component(logger, "admission"))

	if err := seedClasses(ctx, cfg.Database, classes, logger); err != nil {
		return err
	}

	exporter, err := export.NewExporter(cfg.Exports)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Admission: admission,
		Accounts:  accounts,
		Classes:   classes,
		Exporter:  exporter,
		Sessions:  api.NewSessionManager(cfg.Auth),
		Tokens:    api.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Outbox:    outbox,
		Ready:     db.PingContext,
	}

	var grpcServer *api.GRPCServer
	if cfg.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.GRPC, deps, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}
	httpServer := api.NewHTTPServer(cfg.HTTP, deps, logger)

	var wg sync.WaitGroup
	startBackground(ctx, &wg, cfg, db, outbox, logger)
	startMetrics(ctx, cfg, logger)

	err = startServers(ctx, grpcServer, httpServer, cfg, logger)
	wg.Wait()
	return err
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "main"), closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initThrottle prefers Redis and falls back to process memory when Redis is
// missing or goes down.
func initThrottle(client *redis.Client, logger *zerolog.Logger) domain.ThrottleRepository {
	memory := repository.NewMemoryThrottleRepository()
	if client == nil {
		return memory
	}
	return repository.NewFailoverThrottleRepository(repository.NewRedisThrottleRepository(client), memory,
		logging.Component(logger, "throttle"))
}

func notifierSettings(cfg *config.Config) service.NotifierSettings {
	n := cfg.Notifications
	settings := service.NotifierSettings{
		AdminEmail:      n.AdminEmail,
		EmailEnabled:    n.SMTP.Enabled,
		TelegramEnabled: n.Telegram.Enabled,
		SheetsEnabled:   n.Sheets.Enabled,
	}
	if n.Telegram.ChatID != 0 {
		settings.TelegramChatID = strconv.FormatInt(n.Telegram.ChatID, 10)
	}
	return settings
}

func registerSenders(ctx context.Context, cfg *config.Config, outbox *worker.NotificationWorker, logger *zerolog.Logger) {
	n := cfg.Notifications

	if n.SMTP.Enabled {
		outbox.Register(models.ChannelEmail, worker.NewMailer(n.SMTP))
		logger.Info().Str("host", n.SMTP.Host).Msg("email channel enabled")
	}

	if n.Telegram.Enabled {
		sender, err := worker.NewTelegramSender(n.Telegram)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram")
		} else {
			outbox.Register(models.ChannelTelegram, sender)
			logger.Info().Msg("telegram channel enabled")
		}
	}

	if n.Sheets.Enabled {
		sheet, err := initRosterSheet(ctx, n.Sheets)
		if err != nil {
			logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		} else {
			outbox.Register(models.ChannelSheets, worker.NewRosterSender(sheet))
			logger.Info().Str("spreadsheet_id", n.Sheets.SpreadsheetID).Msg("google sheets connected")
		}
	}
}

func initRosterSheet(ctx context.Context, cfg config.SheetsConfig) (*google.RosterSheet, error) {
	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	sheet, err := google.NewRosterSheet(initCtx, cfg.CredentialsFile, cfg.SpreadsheetID, cfg.SheetName)
	if err != nil {
		return nil, err
	}
	if err := sheet.TestConnection(initCtx); err != nil {
		return nil, err
	}
	if err := sheet.EnsureHeader(initCtx); err != nil {
		return nil, err
	}
	if err := sheet.WarmUpCache(initCtx); err != nil {
		return nil, err
	}
	return sheet, nil
}

func startBackground(
	ctx context.Context,
	wg *sync.WaitGroup,
	cfg *config.Config,
	db *database.DB,
	outbox *worker.NotificationWorker,
	logger *zerolog.Logger,
) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		outbox.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup")).Start(ctx)
	}()
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	errCh := make(chan error, 2)

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	if cfg.HTTP.Enabled {
		go func() {
			if err := httpServer.Start(); err != nil {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	logger.Info().
		Bool("grpc", grpcServer != nil).
		Int("http_port", cfg.HTTP.Port).
		Str("admission_mode", cfg.Admission.Mode).
		Msg("classbook started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("classbook stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

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
