package app

import (
	"errors"
	"testing"

	"quizplay-service/internal/domain"
)

func TestWithoutReplacementCoversBankBeforeRepeating(t *testing.T) {
	bank := []domain.Question{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	sel := NewQuestionSelectorWithRand(DrawWithoutReplacement, func(n int) int { return n - 1 })

	var seen []string
	drawn := make(map[string]int)
	for i := 0; i < len(bank); i++ {
		var q domain.Question
		var err error
		q, seen, err = sel.Draw(bank, seen)
		if err != nil {
			t.Fatalf("draw: %v", err)
		}
		drawn[q.ID]++
	}
	for _, q := range bank {
		if drawn[q.ID] != 1 {
			t.Fatalf("expected each question once per cycle, got %v", drawn)
		}
	}

	// The fourth draw starts a new cycle.
	_, seen, err := sel.Draw(bank, seen)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected seen reset to the new draw, got %v", seen)
	}
}

func TestWithReplacementMayRepeat(t *testing.T) {
	bank := []domain.Question{{ID: "a"}, {ID: "b"}}
	sel := NewQuestionSelectorWithRand(DrawWithReplacement, func(int) int { return 0 })

	first, _, _ := sel.Draw(bank, nil)
	second, seen, _ := sel.Draw(bank, nil)
	if first.ID != "a" || second.ID != "a" {
		t.Fatalf("expected repeated draw, got %s then %s", first.ID, second.ID)
	}
	if len(seen) != 0 {
		t.Fatalf("with replacement should not track seen questions, got %v", seen)
	}
}

func TestDrawFromEmptyBank(t *testing.T) {
	for _, mode := range []DrawMode{DrawWithReplacement, DrawWithoutReplacement} {
		if _, _, err := NewQuestionSelector(mode).Draw(nil, nil); !errors.Is(err, domain.ErrNoQuestionsAvailable) {
			t.Fatalf("%s: expected no questions, got %v", mode, err)
		}
	}
}

func TestWithoutReplacementIgnoresRemovedQuestions(t *testing.T) {
	sel := NewQuestionSelectorWithRand(DrawWithoutReplacement, func(int) int { return 0 })
	q, _, err := sel.Draw([]domain.Question{{ID: "b"}}, []string{"gone"})
	if err != nil || q.ID != "b" {
		t.Fatalf("expected b, got %+v %v", q, err)
	}
}

func TestParseDrawMode(t *testing.T) {
	cases := map[string]DrawMode{
		"":                    DrawWithReplacement,
		"with_replacement":    DrawWithReplacement,
		"without_replacement": DrawWithoutReplacement,
	}
	for raw, want := range cases {
		got, err := ParseDrawMode(raw)
		if err != nil || got != want {
			t.Fatalf("%q: got %q %v", raw, got, err)
		}
	}
	if _, err := ParseDrawMode("shuffle"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
