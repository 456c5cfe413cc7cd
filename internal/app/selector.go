package app

import (
	"fmt"
	"math/rand"

	"quizplay-service/internal/domain"
)

// DrawMode controls whether a duel may see the same question twice.
type DrawMode string

const (
	DrawWithReplacement    DrawMode = "with_replacement"
	DrawWithoutReplacement DrawMode = "without_replacement"
)

// ParseDrawMode maps a config value onto a DrawMode. Empty means with replacement.
func ParseDrawMode(raw string) (DrawMode, error) {
	switch DrawMode(raw) {
	case "", DrawWithReplacement:
		return DrawWithReplacement, nil
	case DrawWithoutReplacement:
		return DrawWithoutReplacement, nil
	}
	return "", fmt.Errorf("unknown draw mode %q", raw)
}

// QuestionSelector picks the next question of a duel uniformly at random.
type QuestionSelector struct {
	mode DrawMode
	intn func(n int) int
}

func NewQuestionSelector(mode DrawMode) *QuestionSelector {
	return &QuestionSelector{mode: mode, intn: rand.Intn}
}

// NewQuestionSelectorWithRand is test-only for deterministic draws.
func NewQuestionSelectorWithRand(mode DrawMode, intn func(n int) int) *QuestionSelector {
	return &QuestionSelector{mode: mode, intn: intn}
}

// Draw returns a question from bank and the updated seen list.
func (s *QuestionSelector) Draw(bank []domain.Question, seen []string) (domain.Question, []string, error) {
	if len(bank) == 0 {
		return domain.Question{}, seen, domain.ErrNoQuestionsAvailable
	}
	if s.mode != DrawWithoutReplacement {
		return bank[s.intn(len(bank))], seen, nil
	}

	seenSet := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		seenSet[id] = struct{}{}
	}
	fresh := make([]domain.Question, 0, len(bank))
	for _, q := range bank {
		if _, ok := seenSet[q.ID]; !ok {
			fresh = append(fresh, q)
		}
	}
	if len(fresh) == 0 {
		// every question has been asked, start a new cycle
		fresh = bank
		seen = nil
	}
	picked := fresh[s.intn(len(fresh))]
	return picked, append(seen, picked.ID), nil
}
