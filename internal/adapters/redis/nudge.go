// Package redis carries worker nudges across processes over Redis pub/sub.
package redis

import (
	"StudentVerify/internal/core/ports"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// nudgeMessage is the wire payload. A missing requestId means "claim a batch".
type nudgeMessage struct {
	RequestID *uuid.UUID `json:"requestId,omitempty"`
}

// TriggerFunc is what a worker does with a nudge (Scheduler.Trigger).
type TriggerFunc func(ctx context.Context, id *uuid.UUID) (int, error)

// NewClient connects and pings.
func NewClient(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

type nudger struct {
	rdb     *goredis.Client
	channel string
	log     zerolog.Logger
}

var _ ports.Nudger = (*nudger)(nil)

// NewNudger publishes nudges on channel.
func NewNudger(rdb *goredis.Client, channel string, baseLogger *zerolog.Logger) ports.Nudger {
	return &nudger{
		rdb:     rdb,
		channel: channel,
		log:     baseLogger.With().Str("component", "redis_nudger").Logger(),
	}
}

func (n *nudger) Nudge(ctx context.Context, requestID uuid.UUID) error {
	raw, err := json.Marshal(nudgeMessage{RequestID: &requestID})
	if err != nil {
		return err
	}
	receivers, err := n.rdb.Publish(ctx, n.channel, raw).Result()
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	if receivers == 0 {
		n.log.Warn().Str("request_id", requestID.String()).Msg("Nudge published but no worker is listening")
	}
	return nil
}

// Listener subscribes a worker to nudges.
type Listener struct {
	rdb     *goredis.Client
	channel string
	trigger TriggerFunc
	log     zerolog.Logger
}

// NewListener creates a listener that hands every nudge to trigger.
func NewListener(rdb *goredis.Client, channel string, trigger TriggerFunc, baseLogger *zerolog.Logger) *Listener {
	return &Listener{
		rdb:     rdb,
		channel: channel,
		trigger: trigger,
		log:     baseLogger.With().Str("component", "redis_listener").Str("channel", channel).Logger(),
	}
}

// Start subscribes and returns once the subscription is confirmed.
// Messages are handled until ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	sub := l.rdb.Subscribe(ctx, l.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	l.log.Info().Msg("Listening for nudges")

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				l.handle(ctx, m.Payload)
			}
		}
	}()
	return nil
}

func (l *Listener) handle(ctx context.Context, payload string) {
	var msg nudgeMessage
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			l.log.Warn().Err(err).Msg("Ignoring malformed nudge")
			return
		}
	}

	claimed, err := l.trigger(ctx, msg.RequestID)
	if err != nil {
		l.log.Error().Err(err).Msg("Nudge claim failed")
		return
	}
	l.log.Debug().Int("claimed", claimed).Msg("Nudge handled")
}
