package ports

import (
	"StudentVerify/internal/core/domain"
	"context"
	"time"

	"github.com/google/uuid"
)

// ClaimParams describe one claim call. Every claim is a single atomic
// read-and-mark statement: rows returned are owned by WorkerID.
type ClaimParams struct {
	WorkerID     string
	Limit        int
	LeaseTimeout time.Duration
	Now          time.Time
}

// ClassifiedOutcome is the terminal-for-automation write after classification.
type ClassifiedOutcome struct {
	RequestID      uuid.UUID
	UserID         uuid.UUID
	Passed         bool
	Matches        int
	OCRTextPreview string
	Signals        domain.Signals
	LastError      *string // set on content rejection
}

// RetryOutcome puts a row back in the queue after a transient failure.
type RetryOutcome struct {
	RequestID   uuid.UUID
	NextRetryAt time.Time
	LastError   string
	Signals     domain.Signals
}

// ExhaustedOutcome is the terminal rejection after max attempts.
type ExhaustedOutcome struct {
	RequestID uuid.UUID
	UserID    uuid.UUID
	LastError string
	Signals   domain.Signals
}

// ModerationDecision is an admin approve/reject on a 'pending' row.
type ModerationDecision struct {
	RequestID   uuid.UUID
	Approve     bool
	Comment     *string
	ModeratorID string
}

// VerificationRepository is the Job Store.
type VerificationRepository interface {
	// ClaimBatch atomically claims up to Limit claimable rows.
	ClaimBatch(ctx context.Context, p ClaimParams) ([]*domain.VerificationRequest, error)

	// ClaimByID atomically claims one row if it is claimable; nil, nil otherwise.
	ClaimByID(ctx context.Context, id uuid.UUID, p ClaimParams) (*domain.VerificationRequest, error)

	// CompleteClassified writes pending/rejected, mirrors the profile and,
	// on rejection, inserts a notification. Fails with ErrLeaseLost if
	// workerID no longer owns the row.
	CompleteClassified(ctx context.Context, workerID string, out ClassifiedOutcome) error

	// ScheduleRetry returns the row to pending_ocr and clears the lease.
	ScheduleRetry(ctx context.Context, workerID string, out RetryOutcome) error

	// RejectExhausted finalizes a row that ran out of attempts.
	RejectExhausted(ctx context.Context, workerID string, out ExhaustedOutcome) error

	// ReleaseLease hands an unfinished row back to pending_ocr and refunds the
	// attempt its claim counted. Fails with ErrLeaseLost like the other writes.
	ReleaseLease(ctx context.Context, workerID string, id uuid.UUID) error

	// GetByIDForUser returns the row only if userID owns it; nil, nil otherwise.
	GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*domain.VerificationRequest, error)

	// GetByID is the moderator lookup; nil, nil when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.VerificationRequest, error)

	// CreateOrGetOpen inserts a pending_ocr row unless the user already has a
	// non-terminal one, in which case that row is returned with created=false.
	CreateOrGetOpen(ctx context.Context, userID uuid.UUID, filePath string) (req *domain.VerificationRequest, created bool, err error)

	// Decide applies a moderation decision; ErrInvalidTransition unless status is 'pending'.
	Decide(ctx context.Context, d ModerationDecision) (*domain.VerificationRequest, error)
}
