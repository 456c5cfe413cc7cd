package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"quizplay-service/internal/app"
	"quizplay-service/internal/domain"
)

// RoundStore keeps each pair's round record as a JSON string with a TTL, so
// abandoned duels clean themselves up.
type RoundStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoundStore(client *redis.Client, ttl time.Duration) *RoundStore {
	return &RoundStore{client: client, ttl: ttl}
}

func (s *RoundStore) LoadRound(ctx context.Context, pairID string) (app.RoundRecord, bool, error) {
	raw, err := s.client.Get(ctx, s.key(pairID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return app.RoundRecord{}, false, nil
	}
	if err != nil {
		return app.RoundRecord{}, false, domain.Unavailable("load round", err)
	}
	var rec app.RoundRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return app.RoundRecord{}, false, err
	}
	return rec, true, nil
}

func (s *RoundStore) SaveRound(ctx context.Context, rec app.RoundRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(rec.PairID), raw, s.ttl).Err(); err != nil {
		return domain.Unavailable("save round", err)
	}
	return nil
}

func (s *RoundStore) DeleteRound(ctx context.Context, pairID string) error {
	if err := s.client.Del(ctx, s.key(pairID)).Err(); err != nil {
		return domain.Unavailable("delete round", err)
	}
	return nil
}

func (s *RoundStore) key(pairID string) string {
	return "quizplay:pair:" + pairID + ":round"
}

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker is a SETNX lock shared by every instance talking to the same Redis.
// The TTL bounds how long a crashed holder can block a pair.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Locker{client: client, ttl: ttl, retry: 10 * time.Millisecond}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := "quizplay:lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, domain.Unavailable("acquire lock", err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return func() {
		// release with a fresh context so a cancelled request still unlocks
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{lockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("lock release failed")
		}
	}, nil
}
