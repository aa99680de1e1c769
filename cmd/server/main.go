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

	"consultbot/internal/api"
	"consultbot/internal/bot"
	"consultbot/internal/classifier"
	"consultbot/internal/config"
	"consultbot/internal/conversation"
	"consultbot/internal/database"
	"consultbot/internal/database/postgres"
	"consultbot/internal/domain"
	"consultbot/internal/events"
	"consultbot/internal/google"
	"consultbot/internal/logging"
	"consultbot/internal/metrics"
	"consultbot/internal/models"
	"consultbot/internal/payment"
	"consultbot/internal/repository"
	"consultbot/internal/scheduling"
	"consultbot/internal/service"
	"consultbot/internal/store"
	"consultbot/internal/transport"
	"consultbot/internal/verification"
	"consultbot/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout     = 10 * time.Second
	activeGaugeInterval = 15 * time.Second
	defaultConfigPath   = "configs/config.yaml"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

// storage is the appointment store selected by database.driver.
type storage struct {
	bookings  domain.AppointmentStore
	tasks     worker.TaskStore
	sqlite    *database.DB
	readiness func(ctx context.Context) error
	close     func()
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}
	recorder := metrics.Recorder{}

	st, err := initStorage(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer st.close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	stateService, snapshots := initStateService(cfg, redisClient, &logger)

	catalog := models.Catalog{Services: cfg.Services, Consultants: cfg.Consultants}
	intents, err := initClassifier(ctx, cfg, catalog, &logger)
	if err != nil {
		return err
	}

	eventBus := events.NewEventBus()
	if cfg.NATS.Enabled {
		bridge, err := transport.Connect(cfg.NATS, &logger)
		if err != nil {
			logger.Warn().Err(err).Msg("NATS unavailable, booking events stay in-process")
		} else {
			bridge.Attach(eventBus)
			defer func() { _ = bridge.Close() }()
		}
	}

	calendarWorker := initCalendarWorker(ctx, cfg, st, redisClient, recorder, &logger)
	var syncWorker domain.CalendarSyncWorker
	if calendarWorker != nil {
		syncWorker = calendarWorker
		go calendarWorker.Start(ctx)
	}

	bookingService := service.NewBookingService(st.bookings, eventBus, syncWorker, recorder, &logger)

	sched, err := scheduling.NewService(cfg.Scheduling, st.bookings, &logger)
	if err != nil {
		return fmt.Errorf("init scheduling: %w", err)
	}

	manager := conversation.NewManager(ctx, conversation.Deps{
		Store:        bookingService,
		Scheduling:   sched,
		Verification: initVerification(cfg, redisClient, &logger),
		Payment:      payment.NewGateway(cfg.Payment, &logger),
		Classifier:   intents,
		Snapshots:    snapshots,
		Catalog:      catalog,
		Recorder:     recorder,
		Logger:       &logger,
	}, conversation.Options{
		QuiescenceInterval: cfg.Conversation.QuiescenceInterval,
		QueueSize:          cfg.Conversation.QueueSize,
		Currency:           cfg.Payment.Currency,
		OTPHint:            cfg.Verification.FixedCode,
	})
	defer manager.Shutdown()

	if cfg.Monitoring.PrometheusEnabled {
		go trackActiveConversations(ctx, manager)
	}

	if cfg.Backup.Enabled {
		if st.sqlite == nil {
			logger.Warn().Str("driver", cfg.Database.Driver).Msg("Backups are only supported for sqlite, skipping")
		} else {
			backupService := database.NewBackupService(st.sqlite.Path(), cfg.Backup, &logger)
			go backupService.Start(ctx)
		}
	}

	if cfg.API.Enabled {
		shutdown, err := startAPI(ctx, cfg, api.Deps{
			Conversations: manager,
			Bookings:      bookingService,
			Scheduling:    sched,
			Catalog:       catalog,
			Readiness:     readinessCheck(st, redisClient),
			Metrics:       metricsHandler(cfg),
		}, &logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	if cfg.Telegram.Enabled {
		return startBot(ctx, cfg, manager, stateService, catalog, &logger)
	}

	logger.Info().Msg("Service started")
	<-ctx.Done()
	logger.Info().Msg("Shutting down...")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "server-main").Logger()

	return cfg, logger, closer, nil
}

func initStorage(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*storage, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("Ошибка инициализации базы данных")
			return nil, err
		}
		return &storage{
			bookings:  db,
			tasks:     db,
			sqlite:    db,
			readiness: db.PingContext,
			close:     func() { _ = db.Close() },
		}, nil
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.Database.Postgres, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Ошибка подключения к PostgreSQL")
			return nil, err
		}
		return &storage{
			bookings:  pg,
			tasks:     worker.NewMemoryTaskStore(),
			readiness: pg.Ping,
			close:     pg.Close,
		}, nil
	}

	logger.Warn().Msg("Using in-memory booking store, bookings are lost on restart")
	return &storage{
		bookings: store.NewMemoryStore(),
		tasks:    worker.NewMemoryTaskStore(),
		close:    func() {},
	}, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		// клиент оставляем: failover-репозиторий вернется на Redis, когда он поднимется
		logger.Warn().Err(err).Msg("Redis unavailable")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("Redis connected")
	}
	return client
}

func initStateService(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) (*service.StateService, domain.ConversationRepository) {
	ttl := cfg.Conversation.SnapshotTTL
	memoryRepo := repository.NewMemoryConversationRepository(ttl)

	var repo domain.ConversationRepository = memoryRepo
	if cfg.Conversation.SnapshotStore == "redis" && redisClient != nil {
		primary := repository.NewRedisConversationRepository(redisClient, ttl)
		repo = repository.NewFailoverConversationRepository(primary, memoryRepo, logger)
	}

	window := time.Duration(cfg.Conversation.RateLimitWindow) * time.Second
	return service.NewStateService(repo, cfg.Conversation.RateLimitMessages, window, logger), repo
}

func initClassifier(ctx context.Context, cfg *config.Config, catalog models.Catalog, logger *zerolog.Logger) (domain.IntentClassifier, error) {
	if cfg.Classifier.Provider != "googleai" {
		logger.Info().Msg("Using keyword intent classifier")
		return classifier.NewKeywordClassifier(catalog), nil
	}

	llm, err := classifier.NewGoogleAI(ctx, cfg.Classifier, catalog, logger)
	if err != nil {
		return nil, fmt.Errorf("init classifier: %w", err)
	}
	logger.Info().Str("model", cfg.Classifier.Model).Msg("Using Google AI intent classifier")
	return llm, nil
}

func initVerification(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) *verification.Service {
	var codes verification.CodeStore = verification.NewMemoryCodeStore()
	if cfg.Verification.Store == "redis" && redisClient != nil {
		codes = verification.NewRedisCodeStore(redisClient)
	}
	return verification.NewService(cfg.Verification, codes, verification.NewLogSender(logger), logger)
}

func initCalendarWorker(
	ctx context.Context,
	cfg *config.Config,
	st *storage,
	redisClient *redis.Client,
	recorder metrics.Recorder,
	logger *zerolog.Logger,
) *worker.CalendarWorker {
	if !cfg.Calendar.Enabled {
		return nil
	}

	cal, err := google.NewCalendarClient(ctx, cfg.Calendar.CredentialsFile, cfg.Calendar.CalendarID, cfg.Calendar.TimeZone, cfg.Calendar.SlotDuration)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Google Calendar client")
		return nil
	}
	if err := cal.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("Google Calendar connection test failed")
		return nil
	}
	if email, err := google.GetServiceAccountEmail(cfg.Calendar.CredentialsFile); err == nil {
		logger.Info().Str("service_account", email).Str("calendar_id", cfg.Calendar.CalendarID).Msg("Google Calendar sync enabled")
	}

	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2, Jitter: 0.2}
	return worker.NewCalendarWorker(st.tasks, cal, redisClient, retryPolicy, recorder, logger)
}

func readinessCheck(st *storage, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		if st.readiness != nil {
			if err := st.readiness(ctx); err != nil {
				errs = append(errs, fmt.Errorf("database: %w", err))
			}
		}
		if redisClient != nil {
			if err := repository.Ping(ctx, redisClient); err != nil {
				errs = append(errs, fmt.Errorf("redis: %w", err))
			}
		}
		return errors.Join(errs...)
	}
}

func metricsHandler(cfg *config.Config) http.Handler {
	if !cfg.Monitoring.PrometheusEnabled {
		return nil
	}
	return promhttp.Handler()
}

func trackActiveConversations(ctx context.Context, manager *conversation.Manager) {
	ticker := time.NewTicker(activeGaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetActiveConversations(manager.Len())
		}
	}
}

func startAPI(ctx context.Context, cfg *config.Config, deps api.Deps, logger *zerolog.Logger) (func(), error) {
	var httpServer *api.HTTPServer
	if cfg.API.HTTP.Enabled {
		httpServer = api.NewHTTPServer(&cfg.API, deps, logger)
		go func() {
			if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("HTTP server stopped")
			}
		}()
	}

	var grpcServer *api.GRPCHealthServer
	if cfg.API.GRPC.Enabled {
		var err error
		grpcServer, err = api.NewGRPCHealthServer(&cfg.API, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return nil, err
		}
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("gRPC server stopped")
			}
		}()
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if grpcServer != nil {
			grpcServer.Shutdown(shutdownCtx)
		}
		if httpServer != nil {
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("HTTP server shutdown")
			}
		}
	}, nil
}

func startBot(
	ctx context.Context,
	cfg *config.Config,
	manager *conversation.Manager,
	stateService *service.StateService,
	catalog models.Catalog,
	logger *zerolog.Logger,
) error {
	botWrapper, err := bot.NewBotWrapper(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}
	tgService := service.NewTelegramService(botWrapper)

	var botMetrics *bot.Metrics
	if cfg.Monitoring.PrometheusEnabled {
		botMetrics = bot.NewMetrics(prometheus.DefaultRegisterer)
	}

	telegramBot, err := bot.NewBot(tgService, manager, stateService, catalog, botMetrics, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания бота")
		return err
	}

	logger.Info().Msg("Бот запущен...")
	telegramBot.Start(ctx)
	telegramBot.Stop()

	logger.Info().Msg("Shutdown complete.")
	return nil
}
