package moderator

import (
	"StudentVerify/internal/core/ports"
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// ModeratorServer long-polls Telegram and publishes updates to the bus.
type ModeratorServer struct {
	api *tgbotapi.BotAPI
	bus ports.EventBus
	log zerolog.Logger
}

func NewModeratorServer(api *tgbotapi.BotAPI, bus ports.EventBus, baseLogger *zerolog.Logger) *ModeratorServer {
	return &ModeratorServer{
		api: api,
		bus: bus,
		log: baseLogger.With().Str("component", "moderator_server").Logger(),
	}
}

// Start polls until ctx is cancelled.
func (s *ModeratorServer) Start(ctx context.Context) error {
	s.log.Info().Str("bot", s.api.Self.UserName).Msg("Starting moderator bot in POLLING mode")

	// 1. Clear any existing webhook
	if _, err := s.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: false}); err != nil {
		s.log.Warn().Err(err).Msg("Failed to delete webhook (continuing anyway)")
	}

	// 2. Only callbacks and direct messages are routed
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := s.api.GetUpdatesChan(u)

	// 3. Poll and publish
	for {
		select {
		case <-ctx.Done():
			s.api.StopReceivingUpdates()
			s.log.Info().Msg("Polling stopped gracefully")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			s.publishUpdateToBus(ctx, update)
		}
	}
}

func (s *ModeratorServer) publishUpdateToBus(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		s.bus.Publish(ctx, TopicCallbackQuery, update)
	case update.Message != nil:
		s.bus.Publish(ctx, TopicMessage, update)
	}
}
