package handlers

import (
	"StudentVerify/internal/bot/moderator"
	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/ports"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	reviewPrefix  = "review_"
	actionApprove = "approve"
	actionReject  = "reject"

	// RejectComment is stored as admin_comment when a moderator rejects from Telegram.
	RejectComment = "The document did not pass manual review. Please upload a clearer photo of a valid student card."
)

func init() {
	moderator.RegisterCallback(NewApprovalHandler)
}

// ReviewCallbackData encodes a button press as review_<action>_<uuid>.
func ReviewCallbackData(action string, requestID uuid.UUID) string {
	return reviewPrefix + action + "_" + requestID.String()
}

func parseReviewCallback(data string) (action string, id uuid.UUID, err error) {
	rest, ok := strings.CutPrefix(data, reviewPrefix)
	if !ok {
		return "", uuid.Nil, fmt.Errorf("missing %q prefix", reviewPrefix)
	}
	action, rawID, ok := strings.Cut(rest, "_")
	if !ok || (action != actionApprove && action != actionReject) {
		return "", uuid.Nil, fmt.Errorf("unknown action in %q", data)
	}
	id, err = uuid.Parse(rawID)
	if err != nil {
		return "", uuid.Nil, err
	}
	return action, id, nil
}

type approvalHandler struct {
	log     zerolog.Logger
	decider moderator.Decider
	bot     ports.BotClientPort
}

// NewApprovalHandler
func NewApprovalHandler(decider moderator.Decider, bot ports.BotClientPort, baseLogger *zerolog.Logger) ports.CallbackHandler {
	return &approvalHandler{
		log:     baseLogger.With().Str("component", "approval_handler").Logger(),
		decider: decider,
		bot:     bot,
	}
}

func (h *approvalHandler) Prefix() string {
	return reviewPrefix
}

func (h *approvalHandler) Handle(ctx context.Context, update *ports.BotUpdate) error {
	log := h.log.With().Int64("moderator_tg_id", update.UserID).Logger()

	// 1. Parse the callback data
	action, requestID, err := parseReviewCallback(*update.CallbackData)
	if err != nil {
		log.Error().Err(err).Str("data", *update.CallbackData).Msg("Invalid callback data format")
		return h.answer(ctx, update, "Unknown action.", true)
	}
	log = log.With().Str("request_id", requestID.String()).Str("action", action).Logger()

	// 2. Apply the decision
	moderatorID := "telegram:" + strconv.FormatInt(update.UserID, 10)
	var req *domain.VerificationRequest
	if action == actionApprove {
		req, err = h.decider.Approve(ctx, requestID, moderatorID)
	} else {
		req, err = h.decider.Reject(ctx, requestID, moderatorID, RejectComment)
	}

	// 3. Report back on the review post
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.answer(ctx, update, "Request not found.", true)
		return h.editMessage(ctx, update, fmt.Sprintf("Request %s no longer exists.", requestID))
	case errors.Is(err, domain.ErrInvalidTransition):
		h.answer(ctx, update, "Already decided.", true)
		status := "unknown"
		if req != nil {
			status = string(req.Status)
		}
		return h.editMessage(ctx, update, fmt.Sprintf("Request %s was already decided: %s.", requestID, status))
	case err != nil:
		log.Error().Err(err).Msg("Moderation decision failed")
		return h.answer(ctx, update, "Something went wrong, try again.", true)
	}

	log.Info().Str("status", string(req.Status)).Msg("Moderator decision recorded")
	h.answer(ctx, update, "Saved.", false)

	verdict := "✅ Approved"
	if req.Status == domain.StatusRejected {
		verdict = "❌ Rejected"
	}
	return h.editMessage(ctx, update, fmt.Sprintf("%s: request %s (moderator %d)", verdict, requestID, update.UserID))
}

func (h *approvalHandler) answer(ctx context.Context, update *ports.BotUpdate, text string, alert bool) error {
	return h.bot.AnswerCallbackQuery(ctx, ports.AnswerCallbackParams{
		CallbackQueryID: update.CallbackQueryID,
		Text:            text,
		ShowAlert:       alert,
	})
}

// editMessage replaces the review post with plain text and removes its buttons.
func (h *approvalHandler) editMessage(ctx context.Context, update *ports.BotUpdate, text string) error {
	return h.bot.EditMessageText(ctx, ports.EditMessageParams{
		ChatID:    update.ChatID,
		MessageID: update.MessageID,
		Text:      text,
	})
}
