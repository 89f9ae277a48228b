package fanout

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/apperrors"
)

const redisChannelPrefix = "fanout:"

// RedisBroker fans events out across nodes over redis pub/sub. Redis delivers
// messages on one channel in publish order, which preserves the per-entity
// ordering guarantee as long as each entity's events are published from a
// single writer.
type RedisBroker struct {
	rc     *redis.Client
	logger *log.Entry
}

func NewRedisBroker(rc *redis.Client) *RedisBroker {
	return &RedisBroker{
		rc:     rc,
		logger: log.WithField("component", "fanout"),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return apperrors.NewServiceFailure("marshal fanout event").WithCause(err)
	}
	if err := b.rc.Publish(ctx, redisChannelPrefix+string(ev.Topic), data).Err(); err != nil {
		return apperrors.NewServiceFailure("publish fanout event").WithCause(err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, topics ...Topic) (*Subscription, error) {
	if len(topics) == 0 {
		return nil, apperrors.NewBadInput("subscription needs at least one topic")
	}
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = redisChannelPrefix + string(t)
	}

	ps := b.rc.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, apperrors.NewSubscriptionDropped("redis subscribe failed").WithCause(err)
	}

	sub := &Subscription{
		events:  make(chan Event, subscriptionBuffer),
		dropped: make(chan struct{}),
	}
	sub.onClose = func() {
		_ = ps.Close()
	}

	go func() {
		defer close(sub.events)
		ch := ps.Channel()
		for msg := range ch {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.WithError(err).Warn("dropping undecodable fanout event")
				continue
			}
			select {
			case sub.events <- ev:
			default:
				b.logger.Warn("slow fanout subscriber, dropping subscription")
				sub.drop()
				_ = ps.Close()
				return
			}
		}
		// channel closed underneath us: transport gone
		sub.drop()
	}()

	return sub, nil
}
