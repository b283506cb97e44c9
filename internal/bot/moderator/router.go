package moderator

import (
	"StudentVerify/internal/core/ports"
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Bus topics the polling server publishes raw updates on.
const (
	TopicCallbackQuery = "telegram:mod:callback_query"
	TopicMessage       = "telegram:mod:message"
)

// ModeratorRouter checks the moderator allow-list and routes callbacks by prefix.
type ModeratorRouter struct {
	log              zerolog.Logger
	moderators       map[int64]struct{}
	botClient        ports.BotClientPort
	callbackHandlers map[string]ports.CallbackHandler
}

// NewModeratorRouter creates a new admin bot router and subscribes it to the bus.
func NewModeratorRouter(
	moderatorIDs []int64,
	botClient ports.BotClientPort,
	bus ports.EventBus,
	baseLogger *zerolog.Logger,
) *ModeratorRouter {
	r := &ModeratorRouter{
		log:              baseLogger.With().Str("component", "moderator_router").Logger(),
		moderators:       make(map[int64]struct{}, len(moderatorIDs)),
		botClient:        botClient,
		callbackHandlers: make(map[string]ports.CallbackHandler),
	}
	for _, id := range moderatorIDs {
		r.moderators[id] = struct{}{}
	}

	bus.Subscribe(TopicCallbackQuery, r.handleEvent)
	bus.Subscribe(TopicMessage, r.handleEvent)
	return r
}

func (r *ModeratorRouter) RegisterCallbackHandler(handler ports.CallbackHandler) {
	prefix := handler.Prefix()
	r.callbackHandlers[prefix] = handler
	r.log.Info().Str("prefix", prefix).Msg("Registered new moderator callback")
}

// IsModerator reports whether a Telegram user may decide requests.
func (r *ModeratorRouter) IsModerator(telegramID int64) bool {
	_, ok := r.moderators[telegramID]
	return ok
}

func (r *ModeratorRouter) handleEvent(ctx context.Context, event ports.Event) error {
	update, ok := event.Data.(tgbotapi.Update)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", event.Data, event.Topic)
	}
	r.HandleUpdate(ctx, &update)
	return nil
}

// HandleUpdate is the main entry point for the admin bot
func (r *ModeratorRouter) HandleUpdate(ctx context.Context, update *tgbotapi.Update) {
	// 1. Convert to our generic BotUpdate
	botUpdate, isSupported := r.parseUpdate(update)
	if !isSupported {
		r.log.Debug().Int("update_id", update.UpdateID).Msg("Ignoring unsupported update type")
		return
	}

	// 2. Add logger context
	ctxLogger := r.log.With().
		Int64("user_id", botUpdate.UserID).
		Int64("chat_id", botUpdate.ChatID).
		Logger()
	ctx = ctxLogger.WithContext(ctx)

	// 3. Allow-list check
	if !r.IsModerator(botUpdate.UserID) {
		ctxLogger.Warn().Msg("Unauthorized user tried to access moderator bot")
		if botUpdate.CallbackQueryID != "" {
			r.botClient.AnswerCallbackQuery(ctx, ports.AnswerCallbackParams{
				CallbackQueryID: botUpdate.CallbackQueryID,
				Text:            "You are not allowed to review documents.",
				ShowAlert:       true,
			})
		}
		return
	}

	// 4. Route callbacks
	if botUpdate.CallbackData == nil {
		ctxLogger.Debug().Msg("Moderator bot received a plain message")
		return
	}
	for prefix, handler := range r.callbackHandlers {
		if strings.HasPrefix(*botUpdate.CallbackData, prefix) {
			ctxLogger.Info().Str("prefix", prefix).Msg("Routing to mod callback handler")
			if err := handler.Handle(ctx, botUpdate); err != nil {
				ctxLogger.Error().Err(err).Msg("Mod callback handler failed")
			}
			return
		}
	}

	ctxLogger.Warn().Str("data", *botUpdate.CallbackData).Msg("Moderator bot received unhandled callback")
}

func (r *ModeratorRouter) parseUpdate(update *tgbotapi.Update) (*ports.BotUpdate, bool) {
	if cb := update.CallbackQuery; cb != nil && cb.From != nil {
		bu := &ports.BotUpdate{
			UserID:          cb.From.ID,
			CallbackQueryID: cb.ID,
			CallbackData:    &cb.Data,
		}
		if cb.Message != nil {
			bu.MessageID = cb.Message.MessageID
			if cb.Message.Chat != nil {
				bu.ChatID = cb.Message.Chat.ID
			}
		}
		return bu, true
	}

	if msg := update.Message; msg != nil && msg.From != nil && msg.Chat != nil {
		return &ports.BotUpdate{
			MessageID: msg.MessageID,
			ChatID:    msg.Chat.ID,
			UserID:    msg.From.ID,
		}, true
	}

	return nil, false
}
