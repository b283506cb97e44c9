package services

import (
	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/ports"
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ModerationService applies human decisions to requests awaiting review.
type ModerationService struct {
	repo ports.VerificationRepository
	bus  ports.EventBus
	log  zerolog.Logger
}

func NewModerationService(repo ports.VerificationRepository, bus ports.EventBus, baseLogger *zerolog.Logger) *ModerationService {
	return &ModerationService{
		repo: repo,
		bus:  bus,
		log:  baseLogger.With().Str("component", "moderation_service").Logger(),
	}
}

// Approve marks a 'pending' request approved.
func (s *ModerationService) Approve(ctx context.Context, requestID uuid.UUID, moderatorID string) (*domain.VerificationRequest, error) {
	return s.decide(ctx, ports.ModerationDecision{RequestID: requestID, Approve: true, ModeratorID: moderatorID})
}

// Reject marks a 'pending' request rejected. An empty comment is stored as NULL.
func (s *ModerationService) Reject(ctx context.Context, requestID uuid.UUID, moderatorID, comment string) (*domain.VerificationRequest, error) {
	d := ports.ModerationDecision{RequestID: requestID, ModeratorID: moderatorID}
	if c := strings.TrimSpace(comment); c != "" {
		d.Comment = &c
	}
	return s.decide(ctx, d)
}

func (s *ModerationService) decide(ctx context.Context, d ports.ModerationDecision) (*domain.VerificationRequest, error) {
	log := s.log.With().
		Str("request_id", d.RequestID.String()).
		Str("moderator_id", d.ModeratorID).
		Bool("approve", d.Approve).
		Logger()

	req, err := s.repo.Decide(ctx, d)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Msg("Moderation decision refused")
		} else {
			log.Error().Err(err).Msg("Moderation decision failed")
		}
		return req, err
	}
	log.Info().Str("status", string(req.Status)).Msg("Moderation decision applied")

	topic := ports.TopicVerificationRejected
	if req.Status == domain.StatusApproved {
		topic = ports.TopicVerificationApproved
	}
	if s.bus != nil {
		event := ports.VerificationEvent{
			RequestID: req.ID,
			UserID:    req.UserID,
			Status:    req.Status,
			Matches:   req.Matches,
		}
		if req.AdminComment != nil {
			event.LastError = *req.AdminComment
		}
		if err := s.bus.Publish(ctx, topic, event); err != nil {
			log.Error().Err(err).Msg("Failed to publish moderation event")
		}
	}
	return req, nil
}
