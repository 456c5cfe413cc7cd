package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"quizplay-service/internal/domain"
	"quizplay-service/internal/infra/memory"
)

func TestSubjectPerPair(t *testing.T) {
	f := NewFeed(nil, "game.pairs.", memory.NewFeed())
	if got := f.Subject("abc"); got != "game.pairs.abc" {
		t.Fatalf("unexpected subject %q", got)
	}
	if got := NewFeed(nil, "", memory.NewFeed()).Subject("abc"); got != "quizplay.pairs.abc" {
		t.Fatalf("unexpected default subject %q", got)
	}
}

func TestHandleDeliversToLocalSubscribers(t *testing.T) {
	local := memory.NewFeed()
	f := NewFeed(nil, "", local)
	updates, cancel, _ := f.Subscribe(context.Background(), "pair-1")
	defer cancel()

	data, _ := json.Marshal(domain.Pair{ID: "pair-1", Version: 3})
	f.handle(&nats.Msg{Subject: "quizplay.pairs.pair-1", Data: data})

	select {
	case pair := <-updates:
		if pair.Version != 3 {
			t.Fatalf("expected version 3, got %d", pair.Version)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected delivery")
	}
}

func TestHandleDropsBadMessages(t *testing.T) {
	local := memory.NewFeed()
	f := NewFeed(nil, "", local)
	updates, cancel, _ := f.Subscribe(context.Background(), "pair-1")
	defer cancel()

	f.handle(&nats.Msg{Subject: "quizplay.pairs.pair-1", Data: []byte("{")})
	data, _ := json.Marshal(domain.Pair{ID: "pair-1"})
	f.handle(&nats.Msg{Subject: "quizplay.pairs.pair-2", Data: data})

	select {
	case pair := <-updates:
		t.Fatalf("unexpected delivery %+v", pair)
	default:
	}
}
