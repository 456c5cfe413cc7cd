package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"quizplay-service/internal/domain"
	"quizplay-service/internal/infra/memory"
)

// Feed publishes pair updates on a Redis channel. Every instance runs the
// feed and fans received updates out to its local subscribers.
type Feed struct {
	client  *redis.Client
	channel string
	local   *memory.Feed
}

func NewFeed(client *redis.Client, channel string, local *memory.Feed) *Feed {
	if channel == "" {
		channel = "quizplay:pairs"
	}
	return &Feed{client: client, channel: channel, local: local}
}

func (f *Feed) Publish(ctx context.Context, pair domain.Pair) error {
	raw, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channel, raw).Err(); err != nil {
		return domain.Unavailable("publish pair", err)
	}
	return nil
}

func (f *Feed) Subscribe(ctx context.Context, pairID string) (<-chan domain.Pair, func(), error) {
	return f.local.Subscribe(ctx, pairID)
}

// Run consumes the channel until ctx is done. ready, when non-nil, is closed
// once the subscription is confirmed.
func (f *Feed) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return domain.Unavailable("subscribe pairs", err)
	}
	if ready != nil {
		close(ready)
	}
	log.Info().Str("channel", f.channel).Msg("redis pair feed subscribed")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var pair domain.Pair
			if err := json.Unmarshal([]byte(msg.Payload), &pair); err != nil {
				log.Warn().Err(err).Msg("dropping malformed pair update")
				continue
			}
			f.local.Deliver(pair)
		}
	}
}
