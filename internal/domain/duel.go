package domain

// AnswerEffect describes what applying one answer changed.
type AnswerEffect struct {
	Correct  bool
	Healed   bool
	Awarded  int
	Finished bool
}

// ApplyAnswer returns the state after the player in slot answered. The
// receiver is left untouched. Applying to a finished duel fails with
// ErrDuelAlreadyFinished.
func (g GameState) ApplyAnswer(slot Slot, correct bool, playerID string) (GameState, AnswerEffect, error) {
	if !slot.Valid() {
		return g, AnswerEffect{}, ErrInvalidSlot
	}
	if g.Status == StatusFinished {
		return g, AnswerEffect{}, ErrDuelAlreadyFinished
	}

	next := g
	effect := AnswerEffect{Correct: correct}
	own, ownLives := next.counters(slot)
	_, enemyLives := next.counters(slot.Opponent())

	if !correct {
		*own = 0
	} else {
		*own++
		if *own >= HealStreak {
			*ownLives = clampLives(*ownLives + 1)
			*own = 0
			effect.Healed = true
		}
		*enemyLives = clampLives(*enemyLives - 1)
		effect.Awarded = PointsPerCorrect

		if *enemyLives == 0 {
			next.Status = StatusFinished
			next.Winner = playerID
			effect.Finished = true
		}
	}

	if next.Status == StatusWaiting {
		next.Status = StatusInProgress
	}
	return next, effect, nil
}

// Lives returns the life total of slot.
func (g GameState) Lives(slot Slot) int {
	if slot == Player1 {
		return g.Player1Lives
	}
	return g.Player2Lives
}

// Consecutive returns the correct-answer streak of slot.
func (g GameState) Consecutive(slot Slot) int {
	if slot == Player1 {
		return g.Player1Consecutive
	}
	return g.Player2Consecutive
}

// Consistent reports whether the state satisfies the duel invariants.
func (g GameState) Consistent() bool {
	for _, lives := range []int{g.Player1Lives, g.Player2Lives} {
		if lives < 0 || lives > MaxLives {
			return false
		}
	}
	for _, streak := range []int{g.Player1Consecutive, g.Player2Consecutive} {
		if streak < 0 || streak >= HealStreak {
			return false
		}
	}
	return (g.Winner != "") == (g.Status == StatusFinished)
}

func (g *GameState) counters(slot Slot) (consecutive *int, lives *int) {
	if slot == Player1 {
		return &g.Player1Consecutive, &g.Player1Lives
	}
	return &g.Player2Consecutive, &g.Player2Lives
}

func clampLives(n int) int {
	switch {
	case n < 0:
		return 0
	case n > MaxLives:
		return MaxLives
	}
	return n
}
