package main

import (
	"StudentVerify/internal/adapters/eventbus"
	"StudentVerify/internal/adapters/httpapi"
	"StudentVerify/internal/adapters/postgres"
	"StudentVerify/internal/adapters/redis"
	"StudentVerify/internal/adapters/security"
	"StudentVerify/internal/adapters/telegram"
	"StudentVerify/internal/bot/moderator"
	_ "StudentVerify/internal/bot/moderator/handlers"
	"StudentVerify/internal/core/ports"
	"StudentVerify/internal/core/services"
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
		err = cfg.ValidateServer()
	}
	if err != nil {
		fmt.Printf("FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize Logger
	isDevMode := cfg.AppEnv == "dev"
	baseLogger := logger.New(isDevMode, "verify-api")
	if !isDevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	baseLogger.Info().Str("app_env", cfg.AppEnv).Msg("Configuration loaded")

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

	// 4. Worker nudges: Redis fan-out when available, else a direct HTTP call
	var nudger ports.Nudger
	switch {
	case cfg.Redis.Addr != "":
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr)
		if err != nil {
			baseLogger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		nudger = redis.NewNudger(rdb, cfg.Redis.NudgeChannel, &baseLogger)
	case cfg.API.WorkerURL != "":
		nudger = httpapi.NewHTTPNudger(cfg.API.WorkerURL, cfg.Worker.SharedSecret, cfg.API.WorkerTimeout, &baseLogger)
	default:
		baseLogger.Warn().Msg("No REDIS_ADDR or WORKER_URL, new requests wait for the worker's poll loop")
	}

	// 5. Services
	bus := eventbus.NewInMemoryEventBus(&baseLogger)
	statusSvc := services.NewStatusService(repo, &baseLogger)
	submitSvc := services.NewSubmissionService(repo, nudger, &baseLogger)
	moderationSvc := services.NewModerationService(repo, bus, &baseLogger)

	g, gctx := errgroup.WithContext(ctx)

	// 6. Moderator bot
	if cfg.Telegram.ModeratorToken != "" {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.ModeratorToken)
		if err != nil {
			baseLogger.Fatal().Err(err).Msg("Failed to connect moderator bot")
		}
		if len(cfg.Telegram.ModeratorIDs) == 0 {
			baseLogger.Warn().Msg("TELEGRAM_MODERATOR_IDS is empty, every review button will be refused")
		}
		botClient := telegram.NewClient(api, &baseLogger)
		router := moderator.NewModeratorRouter(cfg.Telegram.ModeratorIDs, botClient, bus, &baseLogger)
		moderator.RegisterAllHandlers(router, moderationSvc, botClient, &baseLogger)

		botServer := moderator.NewModeratorServer(api, bus, &baseLogger)
		g.Go(func() error {
			return botServer.Start(gctx)
		})
	}

	// 7. Application API
	verifier := httpapi.NewJWTVerifier(cfg.API.JWTSecret)
	appRouter := httpapi.NewAppRouter(statusSvc, submitSvc, verifier, cfg.API.CORSOrigins, &baseLogger)
	server := httpapi.NewServer(cfg.API.ListenAddr, appRouter, "app_http", &baseLogger)
	g.Go(func() error {
		return server.Run(gctx)
	})

	baseLogger.Info().Msg("Application API started")
	if err := g.Wait(); err != nil {
		baseLogger.Error().Err(err).Msg("Server stopped with error")
	}
	bus.Wait()
	baseLogger.Info().Msg("Application API stopped")
}
