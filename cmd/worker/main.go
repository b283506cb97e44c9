package main

import (
	"StudentVerify/internal/adapters/documents"
	"StudentVerify/internal/adapters/eventbus"
	"StudentVerify/internal/adapters/httpapi"
	"StudentVerify/internal/adapters/ocr"
	"StudentVerify/internal/adapters/postgres"
	"StudentVerify/internal/adapters/redis"
	"StudentVerify/internal/adapters/security"
	"StudentVerify/internal/adapters/telegram"
	"StudentVerify/internal/bot/moderator/handlers"
	"StudentVerify/internal/core/classifier"
	"StudentVerify/internal/core/pipeline"
	"StudentVerify/internal/shared/config"
	"StudentVerify/internal/shared/logger"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateWorker()
	}
	if err != nil {
		fmt.Printf("FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize Logger
	isDevMode := cfg.AppEnv == "dev"
	baseLogger := logger.New(isDevMode, "ocr-worker")
	if !isDevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	baseLogger.Info().
		Str("app_env", cfg.AppEnv).
		Str("worker_id", cfg.Worker.ID).
		Str("ocr_provider", cfg.OCR.Provider).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Security and storage
	secSvc, err := security.NewAESServiceFromHex(cfg.EncryptionKey, &baseLogger)
	if err != nil {
		baseLogger.Fatal().Err(err).Msg("Failed to initialize security service")
	}

	db, err := postgres.NewDB(ctx, cfg.Postgres.URL, &baseLogger)
	if err != nil {
		baseLogger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()
	repo := postgres.NewVerificationRepository(db, secSvc, &baseLogger)

	// 4. Pipeline collaborators
	signer, err := documents.NewSupabaseSigner(cfg.Storage.SupabaseURL, cfg.Storage.ServiceKey, cfg.Storage.Bucket, &baseLogger)
	if err != nil {
		baseLogger.Fatal().Err(err).Msg("Failed to initialize storage signer")
	}
	fetcher := documents.NewSignedFetcher(signer, documents.FetcherConfig{
		Timeout:      cfg.Download.Timeout,
		MaxBytes:     cfg.Download.MaxBytes,
		SignedURLTTL: cfg.Download.SignedURLTTL,
	}, &baseLogger)

	ocrProvider, closeOCR, err := ocr.New(ctx, cfg.OCR, &baseLogger)
	if err != nil {
		baseLogger.Fatal().Err(err).Msg("Failed to initialize OCR provider")
	}
	defer closeOCR()

	bus := eventbus.NewInMemoryEventBus(&baseLogger)

	// 5. Moderator notifications (send-only)
	if cfg.Telegram.ModeratorToken != "" && cfg.Telegram.ReviewChatID != 0 {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.ModeratorToken)
		if err != nil {
			baseLogger.Fatal().Err(err).Msg("Failed to connect moderator bot")
		}
		forwarder := handlers.NewForwardingHandler(telegram.NewClient(api, &baseLogger), cfg.Telegram.ReviewChatID, &baseLogger)
		forwarder.Subscribe(bus)
		baseLogger.Info().Str("bot", api.Self.UserName).Msg("Moderator notifications enabled")
	} else {
		baseLogger.Warn().Msg("TELEGRAM_MODERATOR_TOKEN or TELEGRAM_REVIEW_CHAT_ID not set, moderators will not be notified")
	}

	processor := pipeline.NewProcessor(
		repo,
		fetcher,
		ocrProvider,
		classifier.New(cfg.Classifier.Keywords),
		bus,
		pipeline.ProcessorConfig{
			WorkerID:     cfg.Worker.ID,
			MaxAttempts:  cfg.Worker.MaxAttempts,
			PreviewChars: cfg.Worker.PreviewChars,
		},
		&baseLogger,
	)
	scheduler := pipeline.NewScheduler(repo, processor, pipeline.SchedulerConfig{
		WorkerID:     cfg.Worker.ID,
		BatchSize:    cfg.Worker.BatchSize,
		PollInterval: cfg.Worker.PollInterval,
		LeaseTimeout: cfg.Worker.LeaseTimeout,
		DrainTimeout: cfg.Worker.DrainTimeout,
		Concurrency:  cfg.Worker.Concurrency,
	}, &baseLogger)

	// 6. Run. HTTP stays up until the scheduler has drained.
	g, gctx := errgroup.WithContext(ctx)
	httpCtx, stopHTTP := context.WithCancel(context.WithoutCancel(gctx))
	defer stopHTTP()

	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr)
		if err != nil {
			baseLogger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		listener := redis.NewListener(rdb, cfg.Redis.NudgeChannel, scheduler.Trigger, &baseLogger)
		if err := listener.Start(gctx); err != nil {
			baseLogger.Fatal().Err(err).Msg("Failed to subscribe to nudges")
		}
	}

	g.Go(func() error {
		defer stopHTTP()
		return scheduler.Run(gctx)
	})

	router := httpapi.NewWorkerRouter(scheduler, cfg.Worker.ID, cfg.Worker.SharedSecret, &baseLogger)
	server := httpapi.NewServer(cfg.Worker.ListenAddr, router, "worker_http", &baseLogger)
	g.Go(func() error {
		return server.Run(httpCtx)
	})

	baseLogger.Info().Msg("OCR worker started")
	if err := g.Wait(); err != nil {
		baseLogger.Error().Err(err).Msg("Worker stopped with error")
	}

	// Let moderator notifications for the last jobs go out.
	bus.Wait()
	baseLogger.Info().Msg("OCR worker stopped")
}
