package eventbus

import (
	"StudentVerify/internal/core/ports"
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// InMemoryBus implements ports.EventBus inside one process.
type InMemoryBus struct {
	log         zerolog.Logger
	subscribers map[string][]ports.EventHandler
	mu          sync.RWMutex
	running     sync.WaitGroup
}

var _ ports.EventBus = (*InMemoryBus)(nil)

// NewInMemoryEventBus creates a new, empty event bus.
func NewInMemoryEventBus(baseLogger *zerolog.Logger) *InMemoryBus {
	return &InMemoryBus{
		log:         baseLogger.With().Str("component", "in_memory_bus").Logger(),
		subscribers: make(map[string][]ports.EventHandler),
	}
}

// Publish fans the event out to every subscriber of topic, each in its own goroutine.
func (b *InMemoryBus) Publish(ctx context.Context, topic string, data interface{}) error {
	b.mu.RLock()
	handlers := b.subscribers[topic]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug().Str("topic", topic).Msg("Published event with no subscribers")
		return nil
	}

	event := ports.Event{Topic: topic, Data: data}

	// Handlers outlive the publisher's context but keep its values.
	hctx := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		b.running.Add(1)
		go func(h ports.EventHandler) {
			defer b.running.Done()
			if err := b.invoke(hctx, h, event); err != nil {
				b.log.Error().Err(err).Str("topic", topic).Msg("Event handler failed")
			}
		}(handler)
	}

	b.log.Debug().Str("topic", topic).Int("handlers", len(handlers)).Msg("Event published")
	return nil
}

func (b *InMemoryBus) invoke(ctx context.Context, h ports.EventHandler, event ports.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, event)
}

// Subscribe registers a handler for a specific topic.
func (b *InMemoryBus) Subscribe(topic string, handler ports.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[topic] = append(b.subscribers[topic], handler)
	b.log.Info().Str("topic", topic).Msg("New handler subscribed to topic")
}

// Wait blocks until every running handler has returned.
func (b *InMemoryBus) Wait() {
	b.running.Wait()
}
