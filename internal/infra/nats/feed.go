// Package nats carries pair updates between instances over core NATS.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"quizplay-service/internal/domain"
	"quizplay-service/internal/infra/memory"
)

const defaultPrefix = "quizplay.pairs"

// Connect dials NATS with reconnects and logging handlers.
func Connect(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("quizplay-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Feed publishes each pair on its own subject, <prefix>.<pairID>, and
// subscribes to the whole prefix to feed local subscribers.
type Feed struct {
	nc     *nats.Conn
	prefix string
	local  *memory.Feed
}

func NewFeed(nc *nats.Conn, prefix string, local *memory.Feed) *Feed {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Feed{nc: nc, prefix: strings.TrimSuffix(prefix, "."), local: local}
}

func (f *Feed) Subject(pairID string) string {
	return f.prefix + "." + pairID
}

func (f *Feed) Publish(_ context.Context, pair domain.Pair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	if err := f.nc.Publish(f.Subject(pair.ID), data); err != nil {
		return domain.Unavailable("publish pair", err)
	}
	return nil
}

func (f *Feed) Subscribe(ctx context.Context, pairID string) (<-chan domain.Pair, func(), error) {
	return f.local.Subscribe(ctx, pairID)
}

// Run subscribes to every pair subject until ctx is done.
func (f *Feed) Run(ctx context.Context, ready chan<- struct{}) error {
	sub, err := f.nc.Subscribe(f.prefix+".*", f.handle)
	if err != nil {
		return domain.Unavailable("subscribe pairs", err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("NATS unsubscribe failed")
		}
	}()
	if err := f.nc.Flush(); err != nil {
		return domain.Unavailable("subscribe pairs", err)
	}
	if ready != nil {
		close(ready)
	}
	log.Info().Str("subject", f.prefix+".*").Msg("nats pair feed subscribed")

	<-ctx.Done()
	return nil
}

func (f *Feed) handle(msg *nats.Msg) {
	var pair domain.Pair
	if err := json.Unmarshal(msg.Data, &pair); err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed pair update")
		return
	}
	if f.Subject(pair.ID) != msg.Subject {
		log.Warn().Str("subject", msg.Subject).Str("pair_id", pair.ID).Msg("pair update on foreign subject")
		return
	}
	f.local.Deliver(pair)
}
