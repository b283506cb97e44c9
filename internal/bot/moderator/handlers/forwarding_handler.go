package handlers

import (
	"StudentVerify/internal/bot/messages"
	"StudentVerify/internal/core/ports"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ForwardingHandler posts requests awaiting review to the moderators' chat.
type ForwardingHandler struct {
	log          zerolog.Logger
	bot          ports.BotClientPort
	reviewChatID int64
}

func NewForwardingHandler(bot ports.BotClientPort, reviewChatID int64, baseLogger *zerolog.Logger) *ForwardingHandler {
	return &ForwardingHandler{
		log:          baseLogger.With().Str("component", "forwarding_handler").Logger(),
		bot:          bot,
		reviewChatID: reviewChatID,
	}
}

// Subscribe attaches the handler to the pending topic.
func (h *ForwardingHandler) Subscribe(bus ports.EventBus) {
	bus.Subscribe(ports.TopicVerificationPending, h.HandleEvent)
}

// HandleEvent sends one review post per pending request.
func (h *ForwardingHandler) HandleEvent(ctx context.Context, event ports.Event) error {
	ev, ok := event.Data.(ports.VerificationEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", event.Data, event.Topic)
	}
	log := h.log.With().Str("request_id", ev.RequestID.String()).Logger()

	params := messages.NewBuilder(h.reviewChatID).
		WithText(ReviewText(ev)).
		WithInlineButtons([][]ports.Button{{
			{Text: "✅ Approve", Data: ReviewCallbackData(actionApprove, ev.RequestID)},
			{Text: "❌ Reject", Data: ReviewCallbackData(actionReject, ev.RequestID)},
		}}).
		Build()

	if err := h.bot.SendMessage(ctx, params); err != nil {
		log.Error().Err(err).Msg("Failed to forward request to moderators")
		return err
	}
	log.Info().Msg("Forwarded request to moderators")
	return nil
}

// ReviewText renders the MarkdownV2 body of a review post.
func ReviewText(ev ports.VerificationEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Student document for review*\nRequest: `%s`\nUser: `%s`\n\n", ev.RequestID, ev.UserID)
	fmt.Fprintf(&b, "*Keyword hits \\(%d\\):* %s\n", ev.Matches, listOrDash(ev.Signals.KeywordHits))
	fmt.Fprintf(&b, "*Markers:* %s\n", listOrDash(ev.Signals.Markers))
	if ev.Signals.HasIDLikeNumber {
		fmt.Fprintf(&b, "*ID\\-like numbers:* %d\n", ev.Signals.IDLikeCount)
	}
	if ev.Signals.OCRProvider != "" {
		fmt.Fprintf(&b, "*OCR:* %s\n", messages.EscapeMarkdown(ev.Signals.OCRProvider))
	}
	if ev.Preview != "" {
		fmt.Fprintf(&b, "\n```\n%s\n```", messages.EscapeCode(ev.Preview))
	}
	return b.String()
}

func listOrDash(items []string) string {
	if len(items) == 0 {
		return "\\-"
	}
	return messages.EscapeMarkdown(strings.Join(items, ", "))
}
