package memory

import (
	"context"
	"sync"

	"quizplay-service/internal/app"
	"quizplay-service/internal/domain"
)

// RoundStore is an in-memory implementation of app.RoundStore.
type RoundStore struct {
	mu     sync.RWMutex
	rounds map[string]app.RoundRecord
}

func NewRoundStore() *RoundStore {
	return &RoundStore{rounds: make(map[string]app.RoundRecord)}
}

func (s *RoundStore) LoadRound(_ context.Context, pairID string) (app.RoundRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rounds[pairID]
	if !ok {
		return app.RoundRecord{}, false, nil
	}
	return cloneRound(rec), true, nil
}

func (s *RoundStore) SaveRound(_ context.Context, rec app.RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[rec.PairID] = cloneRound(rec)
	return nil
}

func (s *RoundStore) DeleteRound(_ context.Context, pairID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rounds, pairID)
	return nil
}

func cloneRound(rec app.RoundRecord) app.RoundRecord {
	outcomes := make(map[domain.Slot]domain.RoundOutcome, len(rec.Outcomes))
	for slot, o := range rec.Outcomes {
		outcomes[slot] = o
	}
	rec.Outcomes = outcomes
	rec.Seen = append([]string(nil), rec.Seen...)
	rec.Question.Options = append([]string(nil), rec.Question.Options...)
	return rec
}

// Locker hands out one in-process lock per key. A key's entry lives only
// while someone holds or waits for it.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.sem
			l.release(key, kl)
		})
	}, nil
}

func (l *Locker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *Locker) refs(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if kl, ok := l.locks[key]; ok {
		return kl.refs
	}
	return 0
}

// held reports how many keys have a live entry.
func (l *Locker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
