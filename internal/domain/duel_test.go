package domain

import (
	"errors"
	"testing"
)

func TestCorrectAnswersHealAndDamage(t *testing.T) {
	state := NewGameState()

	state, effect, err := state.ApplyAnswer(Player1, true, "p1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if effect.Healed || effect.Awarded != PointsPerCorrect {
		t.Fatalf("unexpected effect after first answer: %+v", effect)
	}
	if state.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", state.Status)
	}

	state, effect, err = state.ApplyAnswer(Player1, true, "p1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !effect.Healed {
		t.Fatalf("expected heal on second consecutive answer")
	}
	want := GameState{Player1Lives: 3, Player2Lives: 1, Status: StatusInProgress}
	if state != want {
		t.Fatalf("expected %+v, got %+v", want, state)
	}
}

func TestThreeCorrectAnswersFinishDuel(t *testing.T) {
	state := NewGameState()
	var effect AnswerEffect
	var err error
	for i, lives := range []int{2, 1, 0} {
		state, effect, err = state.ApplyAnswer(Player2, true, "p2")
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		if state.Player1Lives != lives {
			t.Fatalf("answer %d: expected player1 lives %d, got %d", i, lives, state.Player1Lives)
		}
	}
	if !effect.Finished || state.Status != StatusFinished || state.Winner != "p2" {
		t.Fatalf("expected p2 to win, got %+v", state)
	}

	after, _, err := state.ApplyAnswer(Player1, true, "p1")
	if !errors.Is(err, ErrDuelAlreadyFinished) {
		t.Fatalf("expected finished error, got %v", err)
	}
	if after != state {
		t.Fatalf("state changed after finish: %+v", after)
	}
}

func TestIncorrectAnswerResetsStreakOnly(t *testing.T) {
	state := NewGameState()
	state, _, _ = state.ApplyAnswer(Player1, true, "p1")

	next, effect, err := state.ApplyAnswer(Player1, false, "p1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if effect.Awarded != 0 || effect.Healed {
		t.Fatalf("incorrect answer should not score: %+v", effect)
	}
	if next.Player1Consecutive != 0 {
		t.Fatalf("expected streak reset, got %d", next.Player1Consecutive)
	}
	if next.Player1Lives != state.Player1Lives || next.Player2Lives != state.Player2Lives {
		t.Fatalf("incorrect answer changed lives: %+v -> %+v", state, next)
	}
}

// Lives stay in range and the winner/finished pairing holds for every
// sequence of answers up to length 8.
func TestInvariantsHoldForAllAnswerSequences(t *testing.T) {
	type move struct {
		slot    Slot
		correct bool
	}
	moves := []move{{Player1, true}, {Player1, false}, {Player2, true}, {Player2, false}}

	var walk func(state GameState, depth int)
	walk = func(state GameState, depth int) {
		if !state.Consistent() {
			t.Fatalf("inconsistent state %+v", state)
		}
		if depth == 0 || state.Status == StatusFinished {
			return
		}
		for _, m := range moves {
			next, _, err := state.ApplyAnswer(m.slot, m.correct, string(m.slot))
			if err != nil {
				t.Fatalf("apply %+v to %+v: %v", m, state, err)
			}
			walk(next, depth-1)
		}
	}
	walk(NewGameState(), 8)
}

func TestApplyAnswerRejectsUnknownSlot(t *testing.T) {
	if _, _, err := NewGameState().ApplyAnswer("player3", true, "x"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAnswerLogKeepsLatestRound(t *testing.T) {
	var log AnswerLog
	if _, ok := log.Outcome(0, Player1); ok {
		t.Fatalf("empty log must not report round 0 outcomes")
	}

	log = log.With(RoundOutcome{Round: 1, Slot: Player1, Correct: true})
	log = log.With(RoundOutcome{Round: 1, Slot: Player2})
	if o, ok := log.Outcome(1, Player1); !ok || !o.Correct {
		t.Fatalf("expected player1 outcome for round 1, got %+v %v", o, ok)
	}
	if _, ok := log.Outcome(1, Player2); !ok {
		t.Fatalf("expected player2 outcome for round 1")
	}

	next := log.With(RoundOutcome{Round: 2, Slot: Player2, Correct: true})
	if _, ok := next.Outcome(2, Player1); ok {
		t.Fatalf("a new round must start an empty log")
	}
	if _, ok := next.Outcome(1, Player1); ok {
		t.Fatalf("older rounds are not kept")
	}
	if _, ok := log.Outcome(1, Player1); !ok {
		t.Fatalf("With must not modify the receiver")
	}
}
