package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind identifies the notification template.
type NotificationKind string

const (
	NotifyVerificationApproved NotificationKind = "verification_approved"
	NotifyVerificationRejected NotificationKind = "verification_rejected"
)

// Notification is an outbox row; delivery is someone else's job.
type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Kind      NotificationKind
	Payload   map[string]any
	CreatedAt time.Time
}
