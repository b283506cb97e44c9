package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle status of a VerificationRequest.
type RequestStatus string

const (
	StatusPendingOCR RequestStatus = "pending_ocr"
	StatusProcessing RequestStatus = "processing"
	StatusPending    RequestStatus = "pending" // awaits human moderation
	StatusApproved   RequestStatus = "approved"
	StatusRejected   RequestStatus = "rejected"
)

// NonTerminalStatuses are the statuses that block a new submission by the same user.
var NonTerminalStatuses = []RequestStatus{StatusPendingOCR, StatusProcessing, StatusPending}

// IsTerminal reports whether the automated pipeline will never touch the row again.
// 'pending' is terminal for automation but still open to moderation.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// VerificationRequest is one uploaded student document and its processing state.
type VerificationRequest struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	FilePath       string // storage object key, never a public URL
	Status         RequestStatus
	AttemptCount   int
	LockedBy       *string
	LockedAt       *time.Time
	NextRetryAt    *time.Time
	LastError      *string
	AIPassed       *bool
	Matches        int
	OCRTextPreview *string // plaintext in memory, encrypted at rest
	Signals        *Signals
	AdminComment   *string
	DecidedBy      *string // moderator id
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DecidedAt      *time.Time
}

// Leased reports whether a worker currently holds the row.
func (r *VerificationRequest) Leased() bool {
	return r.LockedBy != nil && r.LockedAt != nil
}
