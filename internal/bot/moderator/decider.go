package moderator

import (
	"StudentVerify/internal/core/domain"
	"context"

	"github.com/google/uuid"
)

// Decider is the moderation surface the bot drives (services.ModerationService).
type Decider interface {
	Approve(ctx context.Context, requestID uuid.UUID, moderatorID string) (*domain.VerificationRequest, error)
	Reject(ctx context.Context, requestID uuid.UUID, moderatorID, comment string) (*domain.VerificationRequest, error)
}
