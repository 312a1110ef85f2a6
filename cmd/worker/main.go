package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/config"
	"github.com/benvon/medvax-chat/internal/database"
	"github.com/benvon/medvax-chat/internal/logger"
	"github.com/benvon/medvax-chat/internal/queue"
	"github.com/benvon/medvax-chat/internal/services/nlu"
	"github.com/benvon/medvax-chat/internal/services/session"
	"github.com/benvon/medvax-chat/internal/workers"
)

const serviceName = "medvax-chat-worker"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.New(logger.Options{Service: serviceName, Debug: debugMode, Console: cfg.LogConsole})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	if cfg.RabbitMQURL == "" && !cfg.WorkerRunCleanup {
		zapLogger.Fatal("worker_has_nothing_to_do",
			zap.String("hint", "set RABBITMQ_URL and/or WORKER_RUN_CLEANUP=true"),
		)
	}

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("nlu_provider", cfg.NLUProvider),
		zap.Bool("run_cleanup", cfg.WorkerRunCleanup),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	if cfg.RabbitMQURL != "" {
		jobQueue, err := queue.Connect(ctx, cfg.RabbitMQURL, queue.DefaultConnectAttempts, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
		}
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()

		trainer, err := newIntentTrainer(ctx, cfg, zapLogger, debugMode)
		if err != nil {
			zapLogger.Fatal("failed_to_create_intent_trainer", zap.Error(err))
		}

		msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
		if err != nil {
			zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
		}
		zapLogger.Info("consuming_training_jobs", zap.Int("prefetch", cfg.RabbitMQPrefetch))

		worker := workers.NewIntentTrainer(trainer, jobQueue, zapLogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx, msgChan, errChan)
		}()
	}

	if cfg.WorkerRunCleanup {
		db, err := database.Open(cfg.StoreDriver, cfg.DatabaseURL, cfg.SQLitePath, false)
		if err != nil {
			zapLogger.Fatal("failed_to_open_session_store", zap.Error(err))
		}
		if db == nil {
			zapLogger.Fatal("cleanup_requires_shared_store",
				zap.String("store_driver", cfg.StoreDriver),
			)
		}
		defer func() {
			if err := db.Close(); err != nil {
				zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
			}
		}()

		sessions := session.NewManager(database.NewSessionRepository(db), zapLogger,
			session.WithStoreTimeout(cfg.StoreTimeout))
		scheduler := workers.NewCleanupScheduler(sessions, cfg.CleanupInterval, cfg.CleanupHighWaterMark, zapLogger)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("worker_shutting_down")
	cancel()
	wg.Wait()
	zapLogger.Info("worker_stopped")
}

// newIntentTrainer builds the configured engine and checks that it can learn
// intents. Only the Dialogflow agent supports training.
func newIntentTrainer(ctx context.Context, cfg *config.Config, log *zap.Logger, debugMode bool) (nlu.IntentTrainer, error) {
	if cfg.NLUProvider != config.NLUProviderDialogflow {
		return nil, fmt.Errorf("NLU provider %s does not support intent training", cfg.NLUProvider)
	}
	engine, err := nlu.DefaultRegistry().Engine(ctx, cfg.NLUProvider, nlu.Settings{
		ProjectID:       cfg.DialogflowProjectID,
		CredentialsFile: cfg.GoogleCredentialsFile,
		DebugMode:       debugMode,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}
	trainer, ok := engine.(nlu.IntentTrainer)
	if !ok {
		return nil, errors.New("engine " + engine.Name() + " cannot train intents")
	}
	return trainer, nil
}
