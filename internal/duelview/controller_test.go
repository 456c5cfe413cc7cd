package duelview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"quizplay-service/internal/app"
	"quizplay-service/internal/domain"
	"quizplay-service/internal/infra/memory"
)

const right, wrong = 2, 0

type fixture struct {
	duels *app.DuelService
	clock *clockwork.FakeClock
	pair  domain.Pair
	p1    domain.Seat
	p2    domain.Seat
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	rounds := memory.NewRoundStore()
	cache := memory.NewQuestionRepository(store, time.Minute)
	duels := app.NewDuelService(store, store, cache, rounds, memory.NewLocker(), memory.NewFeed(), app.DuelOptions{})
	lobby := app.NewLobbyService(store, store, store, store, cache, rounds)

	room, err := lobby.CreateRoom(ctx, "Bu Sari")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	p1, _ := lobby.JoinRoom(ctx, room.ID, "Ani")
	p2, _ := lobby.JoinRoom(ctx, room.ID, "Budi")
	pair, err := lobby.CreatePair(ctx, room.ID, p1.ID, p2.ID)
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	_, err = lobby.AddQuestion(ctx, domain.Question{
		RoomID:  room.ID,
		Prompt:  "Ibu kota Indonesia?",
		Options: []string{"Bandung", "Surabaya", "Jakarta", "Medan"},
		Answer:  right,
	})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}

	return &fixture{
		duels: duels,
		clock: clockwork.NewFakeClock(),
		pair:  pair,
		p1:    domain.Seat{PairID: pair.ID, Slot: domain.Player1, PlayerID: p1.ID},
		p2:    domain.Seat{PairID: pair.ID, Slot: domain.Player2, PlayerID: p2.ID},
	}
}

func (f *fixture) controller(t *testing.T, seat domain.Seat) *Controller {
	t.Helper()
	c := New(f.duels, seat, Options{RevealDelay: DefaultRevealDelay, Clock: f.clock})
	if err := c.Attach(context.Background()); err != nil {
		t.Fatalf("attach: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, c *Controller, typ EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatalf("events closed while waiting for %s", typ)
			}
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func TestOutcomeRevealedAfterDelay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller(t, f.p1)

	if _, err := c.StartRound(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	outcome, err := c.Submit(ctx, right)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !outcome.Correct {
		t.Fatalf("expected correct outcome, got %+v", outcome)
	}
	if c.Phase() != domain.PhaseQuestion || !c.View().Submitted {
		t.Fatalf("outcome must stay hidden until the delay, view %+v", c.View())
	}

	f.clock.Advance(DefaultRevealDelay - time.Millisecond)
	if c.Phase() != domain.PhaseQuestion {
		t.Fatalf("revealed early")
	}
	f.clock.Advance(time.Millisecond)

	ev := waitFor(t, c, EventOutcome)
	if ev.View.Phase != domain.PhaseResult || ev.Outcome == nil || !ev.Outcome.Correct {
		t.Fatalf("unexpected outcome event %+v", ev)
	}
}

func TestSubmitTwiceReturnsFirstOutcome(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller(t, f.p1)
	_, _ = c.StartRound(ctx)

	first, err := c.Submit(ctx, wrong)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := c.Submit(ctx, right)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second != first || second.Correct {
		t.Fatalf("expected first outcome again, got %+v", second)
	}

	// No new round until the outcome is shown.
	if _, err := c.StartRound(ctx); !errors.Is(err, domain.ErrRoundNotOpen) {
		t.Fatalf("expected round not open, got %v", err)
	}
}

func TestConcurrentSubmitsSendOneAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller(t, f.p1)
	_, _ = c.StartRound(ctx)

	var wg sync.WaitGroup
	outcomes := make([]domain.RoundOutcome, 2)
	for i, option := range []int{right, wrong} {
		wg.Add(1)
		go func(i, option int) {
			defer wg.Done()
			o, err := c.Submit(ctx, option)
			if err != nil {
				t.Errorf("submit: %v", err)
			}
			outcomes[i] = o
		}(i, option)
	}
	wg.Wait()

	if outcomes[0] != outcomes[1] {
		t.Fatalf("expected one outcome for both calls, got %+v and %+v", outcomes[0], outcomes[1])
	}
	snap, _ := f.duels.GetState(ctx, f.pair.ID)
	if snap.Pair.Version != 1 {
		t.Fatalf("expected a single write, got version %d", snap.Pair.Version)
	}

	f.clock.Advance(DefaultRevealDelay)
	waitFor(t, c, EventOutcome)
	if c.Phase() != domain.PhaseResult {
		t.Fatalf("expected result phase, got %s", c.Phase())
	}
}

func TestSubmitForClosedRoundReturnsToWaiting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c1 := f.controller(t, f.p1)
	c2 := f.controller(t, f.p2)

	first, _ := c2.StartRound(ctx)
	if _, err := c1.StartRound(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c1.Submit(ctx, right); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.clock.Advance(DefaultRevealDelay)
	waitFor(t, c1, EventOutcome)
	next, err := c1.StartRound(ctx)
	if err != nil || next.Number != first.Number+1 {
		t.Fatalf("expected round %d, got %+v %v", first.Number+1, next, err)
	}

	// Player2 still shows the first question; the engine refuses it.
	if _, err := c2.Submit(ctx, right); !errors.Is(err, domain.ErrRoundNotOpen) {
		t.Fatalf("expected round not open, got %v", err)
	}
	if c2.Phase() != domain.PhaseWaiting {
		t.Fatalf("expected waiting after a closed round, got %s", c2.Phase())
	}
	joined, err := c2.StartRound(ctx)
	if err != nil || joined.Number != next.Number {
		t.Fatalf("expected to join round %d, got %+v %v", next.Number, joined, err)
	}
}

func TestSubmitWithoutRound(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.p1)
	if _, err := c.Submit(context.Background(), right); !errors.Is(err, domain.ErrRoundNotOpen) {
		t.Fatalf("expected round not open, got %v", err)
	}
}

func TestRemoteUpdateReplacesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c1 := f.controller(t, f.p1)
	c2 := f.controller(t, f.p2)

	_, _ = c1.StartRound(ctx)
	_, _ = c2.StartRound(ctx)
	if _, err := c2.Submit(ctx, right); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		ev := waitFor(t, c1, EventState)
		if ev.View.Pair.Version == 1 {
			if ev.View.Pair.GameState.Player1Lives != 2 {
				t.Fatalf("expected opponent damage in cache, got %+v", ev.View.Pair.GameState)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("no remote update reached player1")
		default:
		}
	}
	// Player1 is still answering the same round.
	if c1.Phase() != domain.PhaseQuestion {
		t.Fatalf("remote update must not move local phase, got %s", c1.Phase())
	}
}

func TestReconcileIgnoresStaleVersions(t *testing.T) {
	f := newFixture(t)
	c := New(f.duels, f.p1, Options{Clock: f.clock})
	defer c.Close()

	newer := f.pair
	newer.Version = 4
	newer.GameState.Player1Lives = 1
	if !c.Reconcile(newer) {
		t.Fatalf("expected newer copy to be applied")
	}
	older := f.pair
	older.Version = 3
	if c.Reconcile(older) {
		t.Fatalf("expected stale copy to be dropped")
	}
	if got := c.View().Pair; got.Version != 4 || got.GameState.Player1Lives != 1 {
		t.Fatalf("cache regressed to %+v", got)
	}

	other := newer
	other.ID = "other"
	other.Version = 9
	if c.Reconcile(other) {
		t.Fatalf("expected update for another pair to be dropped")
	}
}

func TestWinnerUpdateForcesFinished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller(t, f.p1)
	_, _ = c.StartRound(ctx)
	_, _ = c.Submit(ctx, wrong)

	won := f.pair
	won.Version = 10
	won.GameState = domain.GameState{Player1Lives: 0, Player2Lives: 3, Status: domain.StatusFinished, Winner: f.p2.PlayerID}
	c.Reconcile(won)
	if c.Phase() != domain.PhaseFinished {
		t.Fatalf("expected finished after winner update, got %s", c.Phase())
	}

	// The delayed reveal must not move a finished duel back to result.
	f.clock.Advance(DefaultRevealDelay)
	waitFor(t, c, EventOutcome)
	if c.Phase() != domain.PhaseFinished {
		t.Fatalf("reveal downgraded finished phase to %s", c.Phase())
	}
	if _, err := c.StartRound(ctx); !errors.Is(err, domain.ErrDuelAlreadyFinished) {
		t.Fatalf("expected finished error, got %v", err)
	}
}

func TestCloseCancelsReveal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := New(f.duels, f.p1, Options{RevealDelay: time.Second, Clock: f.clock})
	if err := c.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	_, _ = c.StartRound(ctx)
	_, _ = c.Submit(ctx, right)
	c.Close()
	c.Close()

	f.clock.Advance(time.Second)
	if c.Phase() != domain.PhaseQuestion {
		t.Fatalf("reveal ran after close")
	}
	for range c.Events() {
	}
}
