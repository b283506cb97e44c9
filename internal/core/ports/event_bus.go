package ports

import (
	"StudentVerify/internal/core/domain"
	"context"

	"github.com/google/uuid"
)

// Topics published on the in-process bus.
const (
	TopicVerificationPending  = "verification:pending"
	TopicVerificationRejected = "verification:rejected"
	TopicVerificationApproved = "verification:approved"
)

// Event is a generic wrapper for any event payload
type Event struct {
	Topic string
	Data  interface{}
}

// EventHandler is a function that can handle a specific event
type EventHandler func(ctx context.Context, event Event) error

// EventBus defines the interface for our in-process pub/sub system
type EventBus interface {
	// Publish sends an event to all subscribers of a topic
	Publish(ctx context.Context, topic string, data interface{}) error

	// Subscribe registers a handler for a specific topic
	Subscribe(topic string, handler EventHandler)
}

// VerificationEvent is the payload of every verification:* topic.
type VerificationEvent struct {
	RequestID uuid.UUID
	UserID    uuid.UUID
	Status    domain.RequestStatus
	Matches   int
	Preview   string // plaintext, in-process only
	Signals   domain.Signals
	LastError string
}
