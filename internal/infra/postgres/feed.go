package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"quizplay-service/internal/domain"
	"quizplay-service/internal/infra/memory"
)

// Feed publishes pair updates with pg_notify and listens for them with a
// lib/pq listener, fanning them out to local subscribers.
type Feed struct {
	db      *bun.DB
	dsn     string
	channel string
	local   *memory.Feed
}

func NewFeed(db *bun.DB, dsn, channel string, local *memory.Feed) *Feed {
	if channel == "" {
		channel = "quizplay_pairs"
	}
	return &Feed{db: db, dsn: dsn, channel: channel, local: local}
}

func (f *Feed) Publish(ctx context.Context, pair domain.Pair) error {
	payload, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	if _, err := f.db.ExecContext(ctx, "SELECT pg_notify(?, ?)", f.channel, string(payload)); err != nil {
		return domain.Unavailable("notify pair", err)
	}
	return nil
}

func (f *Feed) Subscribe(ctx context.Context, pairID string) (<-chan domain.Pair, func(), error) {
	return f.local.Subscribe(ctx, pairID)
}

// Run listens until ctx is done. ready, when non-nil, is closed once LISTEN
// has been issued.
func (f *Feed) Run(ctx context.Context, ready chan<- struct{}) error {
	l := pq.NewListener(
		f.dsn,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	defer l.Close()

	if err := l.Listen(f.channel); err != nil {
		return fmt.Errorf("failed to listen to channel: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	log.Info().Str("channel", f.channel).Msg("postgres pair feed listening")

	pingTicker := time.NewTicker(90 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case note := <-l.Notify:
			if note == nil {
				// connection was lost and re-established; updates may be missed
				continue
			}
			var pair domain.Pair
			if err := json.Unmarshal([]byte(note.Extra), &pair); err != nil {
				log.Warn().Err(err).Msg("dropping malformed pair notification")
				continue
			}
			f.local.Deliver(pair)
		case <-pingTicker.C:
			if err := l.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}
