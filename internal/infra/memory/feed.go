package memory

import (
	"context"
	"sync"

	"quizplay-service/internal/domain"
)

// Feed fans pair updates out to in-process subscribers. The remote feeds
// (Redis, Postgres, NATS) deliver into a Feed on every instance.
type Feed struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.Pair]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[string]map[chan domain.Pair]struct{})}
}

// Publish delivers pair to every subscriber of its id.
func (f *Feed) Publish(_ context.Context, pair domain.Pair) error {
	f.Deliver(pair)
	return nil
}

// Deliver is Publish without the error return, for feed consumers.
func (f *Feed) Deliver(pair domain.Pair) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs[pair.ID] {
		select {
		case ch <- pair:
		default:
			// subscriber is behind; a newer pair supersedes the queued one
			select {
			case <-ch:
			default:
			}
			ch <- pair
		}
	}
}

// Subscribe returns a channel of updates for pairID. The caller must invoke
// the returned cancel function to avoid leaks.
func (f *Feed) Subscribe(_ context.Context, pairID string) (<-chan domain.Pair, func(), error) {
	ch := make(chan domain.Pair, 8)

	f.mu.Lock()
	if f.subs[pairID] == nil {
		f.subs[pairID] = make(map[chan domain.Pair]struct{})
	}
	f.subs[pairID][ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[pairID][ch]; ok {
			delete(f.subs[pairID], ch)
			close(ch)
		}
		if len(f.subs[pairID]) == 0 {
			delete(f.subs, pairID)
		}
	}
	return ch, cancel, nil
}

// Subscribers reports how many channels listen on pairID.
func (f *Feed) Subscribers(pairID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[pairID])
}
