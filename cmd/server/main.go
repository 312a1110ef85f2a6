package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/api/openapi"
	"github.com/benvon/medvax-chat/internal/config"
	"github.com/benvon/medvax-chat/internal/database"
	"github.com/benvon/medvax-chat/internal/handlers"
	"github.com/benvon/medvax-chat/internal/logger"
	"github.com/benvon/medvax-chat/internal/middleware"
	"github.com/benvon/medvax-chat/internal/queue"
	"github.com/benvon/medvax-chat/internal/services/auth"
	"github.com/benvon/medvax-chat/internal/services/conversation"
	"github.com/benvon/medvax-chat/internal/services/gcp"
	"github.com/benvon/medvax-chat/internal/services/nlu"
	"github.com/benvon/medvax-chat/internal/services/session"
	"github.com/benvon/medvax-chat/internal/services/translate"
	"github.com/benvon/medvax-chat/internal/telemetry"
	"github.com/benvon/medvax-chat/internal/workers"
)

const (
	serviceName    = "medvax-chat-api"
	serviceVersion = "1.0.0"

	dlqInterval  = time.Hour
	dlqRetention = 24 * time.Hour
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging, including NLU request bodies")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(logger.Options{Service: serviceName, Debug: debugMode, Console: cfg.LogConsole})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.Strings("allowed_origins", cfg.AllowedOrigins()),
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("nlu_provider", cfg.NLUProvider),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	tracingService := ""
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(rootCtx, telemetry.Options{
				ServiceName:    serviceName,
				ServiceVersion: serviceVersion,
				Endpoint:       cfg.OTELEndpoint,
				Insecure:       true,
			})
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				tracingService = serviceName
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	// Session store
	db, err := database.Open(cfg.StoreDriver, cfg.DatabaseURL, cfg.SQLitePath, cfg.AutoMigrate)
	if err != nil {
		zapLogger.Fatal("failed_to_open_session_store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	var store session.Store
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
			}
		}()
		store = database.NewSessionRepository(db)
		zapLogger.Info("connected_to_database", zap.String("driver", cfg.StoreDriver))
	} else {
		store = session.NewMemoryStore()
		zapLogger.Warn("using_in_memory_session_store")
	}
	sessions := session.NewManager(store, zapLogger, session.WithStoreTimeout(cfg.StoreTimeout))

	// NLU engine and translation
	engine, err := nlu.DefaultRegistry().Engine(rootCtx, cfg.NLUProvider, nluSettings(cfg, zapLogger, debugMode))
	if err != nil {
		zapLogger.Fatal("failed_to_create_nlu_engine", zap.String("provider", cfg.NLUProvider), zap.Error(err))
	}
	translator := newTranslator(rootCtx, cfg, zapLogger)
	gateway := conversation.NewGateway(sessions, engine, translator, zapLogger,
		conversation.WithEngineTimeout(cfg.NLUTimeout),
		conversation.WithLanguageCode(cfg.NLULanguageCode),
	)

	// Job queue is optional; without it intents are trained in-process.
	var jobQueue *queue.RabbitMQQueue
	if cfg.RabbitMQURL != "" {
		jobQueue, err = queue.Connect(rootCtx, cfg.RabbitMQURL, queue.DefaultConnectAttempts, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
		}
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
	}

	// Rate limiting
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = middleware.NewRedisClient(rootCtx, cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_redis")
	}
	limiterStore, err := middleware.NewLimiterStore(redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_store", zap.Error(err))
	}
	var ratelimitSource middleware.RatelimitSource
	if db != nil {
		ratelimitSource = database.NewRatelimitConfigRepository(db)
	}
	rateLimiter := middleware.NewRateLimiter(limiterStore, ratelimitSource, zapLogger, cfg.RateLimitReloadInterval)

	// Admin authentication
	verifier, err := auth.NewVerifier(auth.Options{
		Secret:       cfg.AdminJWTSecret,
		JWKSURL:      cfg.AdminJWKSURL,
		Issuer:       cfg.AdminIssuer,
		RequiredRole: cfg.AdminRole,
	})
	if err != nil {
		zapLogger.Fatal("failed_to_create_admin_verifier", zap.Error(err))
	}

	scheduler := workers.NewCleanupScheduler(sessions, cfg.CleanupInterval, cfg.CleanupHighWaterMark, zapLogger)

	// Handlers
	var adminOpts []handlers.AdminOption
	if jobQueue != nil {
		adminOpts = append(adminOpts, handlers.WithJobQueue(jobQueue))
	} else if trainer, ok := engine.(nlu.IntentTrainer); ok {
		adminOpts = append(adminOpts, handlers.WithIntentTrainer(trainer))
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Chat:            handlers.NewChatHandler(gateway, zapLogger),
		Sessions:        handlers.NewSessionHandler(sessions, zapLogger),
		Admin:           handlers.NewAdminHandler(sessions, scheduler, zapLogger, adminOpts...),
		Health:          handlers.NewHealthChecker(sessions, dependencyChecks(db, redisClient, jobQueue), zapLogger),
		OpenAPI:         handlers.NewOpenAPIHandler(openapi.Spec),
		RateLimiter:     rateLimiter,
		AdminVerifier:   verifier,
		AllowedOrigins:  cfg.AllowedOrigins(),
		EnableHSTS:      cfg.EnableHSTS,
		MaxRequestBytes: cfg.MaxRequestBytes,
		RequestTimeout:  cfg.RequestTimeout,
		TracingService:  tracingService,
		Logger:          zapLogger,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	// Background loops
	go rateLimiter.Start(rootCtx)
	if cfg.CleanupEnabled {
		scheduler.Start(rootCtx)
	}
	if jobQueue != nil {
		dlqGC := queue.NewGarbageCollector(jobQueue, dlqInterval, dlqRetention, zapLogger)
		go func() {
			if err := dlqGC.Run(rootCtx); err != nil {
				zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
			}
		}()
		zapLogger.Info("started_dlq_garbage_collector",
			zap.Duration("interval", dlqInterval),
			zap.Duration("retention", dlqRetention),
		)
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	scheduler.Stop()
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// nluSettings maps configuration onto the settings of the selected engine.
func nluSettings(cfg *config.Config, log *zap.Logger, debugMode bool) nlu.Settings {
	s := nlu.Settings{
		ProjectID:       cfg.DialogflowProjectID,
		CredentialsFile: cfg.GoogleCredentialsFile,
		DebugMode:       debugMode,
		Logger:          log,
	}
	switch cfg.NLUProvider {
	case config.NLUProviderOpenAI:
		s.APIKey = cfg.OpenAIKey
		s.BaseURL = cfg.AIBaseURL
		s.Model = cfg.AIModel
	case config.NLUProviderGemini:
		s.APIKey = cfg.GeminiAPIKey
		s.Model = cfg.GeminiModel
	}
	return s
}

// newTranslator returns the Cloud Translation client, or a pass-through when
// translation is disabled or the client cannot be created.
func newTranslator(ctx context.Context, cfg *config.Config, log *zap.Logger) translate.Translator {
	if !cfg.TranslateEnabled {
		return translate.Noop{}
	}
	opts, err := gcp.ClientOptions(ctx, cfg.GoogleCredentialsFile, cfg.TranslateAPIKey)
	if err != nil {
		log.Warn("translation_disabled", zap.Error(err))
		return translate.Noop{}
	}
	t, err := translate.NewGoogle(ctx, cfg.TranslateTimeout, log, opts...)
	if err != nil {
		log.Warn("translation_disabled", zap.Error(err))
		return translate.Noop{}
	}
	return t
}

// dependencyChecks lists the extended health probes. Unconfigured services
// get a nil check.
func dependencyChecks(db *database.DB, redisClient *redis.Client, jobQueue *queue.RabbitMQQueue) map[string]handlers.DependencyCheck {
	checks := map[string]handlers.DependencyCheck{
		"database": nil,
		"redis":    nil,
		"rabbitmq": nil,
	}
	if db != nil {
		checks["database"] = db.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if jobQueue != nil {
		checks["rabbitmq"] = jobQueue.HealthCheck
	}
	return checks
}
