package domain

import (
	"strings"
	"time"
)

const (
	// MaxLives is the starting and maximum life total of a duel player.
	MaxLives = 3
	// HealStreak is the number of consecutive correct answers that restores a life.
	HealStreak = 2
	// PointsPerCorrect is credited to a player's total for every correct answer.
	PointsPerCorrect = 10
	// OptionCount is the fixed number of options per question.
	OptionCount = 4
	// DefaultCategory is stored when a question is inserted without one.
	DefaultCategory = "umum"
)

// Room groups players, questions and pairs under one host.
type Room struct {
	ID        string    `json:"id"`
	HostName  string    `json:"hostName"`
	CreatedAt time.Time `json:"createdAt"`
}

// Player is a room member. Token identifies the player's client and is never
// sent to anyone else.
type Player struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	Name        string    `json:"name"`
	Token       string    `json:"-"`
	TotalPoints int       `json:"totalPoints"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Question is a multiple choice question with exactly OptionCount options.
type Question struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Category  string    `json:"category"`
	Prompt    string    `json:"question"`
	Options   []string  `json:"options"`
	Answer    int       `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsCorrect reports whether option is the right answer.
func (q Question) IsCorrect(option int) bool {
	return option == q.Answer
}

// ValidOption reports whether option indexes one of the question's options.
func (q Question) ValidOption(option int) bool {
	return option >= 0 && option < len(q.Options)
}

// Validate checks the question has text, exactly OptionCount non-empty options
// and an answer index pointing at one of them.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" || len(q.Options) != OptionCount {
		return ErrInvalidQuestion
	}
	for _, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return ErrInvalidQuestion
		}
	}
	if !q.ValidOption(q.Answer) {
		return ErrInvalidOptionIndex
	}
	return nil
}

// Status is the persisted lifecycle of a duel.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// Slot names one side of a pair.
type Slot string

const (
	Player1 Slot = "player1"
	Player2 Slot = "player2"
)

// Valid reports whether s is player1 or player2.
func (s Slot) Valid() bool {
	return s == Player1 || s == Player2
}

// Opponent returns the other slot.
func (s Slot) Opponent() Slot {
	if s == Player1 {
		return Player2
	}
	return Player1
}

// GameState is the shared duel record, stored as one JSON blob on the pair.
type GameState struct {
	Player1Lives       int    `json:"player1_lives"`
	Player2Lives       int    `json:"player2_lives"`
	Player1Consecutive int    `json:"player1_consecutive"`
	Player2Consecutive int    `json:"player2_consecutive"`
	Status             Status `json:"status"`
	Winner             string `json:"winner,omitempty"`
}

// NewGameState is the state every pair starts with.
func NewGameState() GameState {
	return GameState{
		Player1Lives: MaxLives,
		Player2Lives: MaxLives,
		Status:       StatusWaiting,
	}
}

// Pair is one duel between two players of a room.
type Pair struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Player1ID string    `json:"player1Id"`
	Player2ID string    `json:"player2Id"`
	GameState GameState `json:"gameState"`
	Answers   AnswerLog `json:"answers"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}

// Finished reports whether the duel has a winner.
func (p Pair) Finished() bool {
	return p.GameState.Status == StatusFinished
}

// PlayerID returns the player sitting in slot.
func (p Pair) PlayerID(slot Slot) string {
	if slot == Player1 {
		return p.Player1ID
	}
	return p.Player2ID
}

// SlotOf returns the slot playerID sits in.
func (p Pair) SlotOf(playerID string) (Slot, bool) {
	switch playerID {
	case p.Player1ID:
		return Player1, true
	case p.Player2ID:
		return Player2, true
	}
	return "", false
}

// Seat binds a client to one side of a pair.
type Seat struct {
	PairID   string `json:"pairId"`
	Slot     Slot   `json:"slot"`
	PlayerID string `json:"playerId"`
}

// Phase is the round lifecycle of a duel. It is not persisted on the pair.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseQuestion Phase = "question"
	PhaseResult   Phase = "result"
	PhaseFinished Phase = "finished"
)

// Round is one question-and-answer cycle of a duel.
type Round struct {
	Number   int      `json:"number"`
	Question Question `json:"question"`
}

// RoundOutcome is what one submitted answer did to the duel.
type RoundOutcome struct {
	Round        int    `json:"round"`
	Slot         Slot   `json:"slot"`
	Correct      bool   `json:"correct"`
	Healed       bool   `json:"healed"`
	Awarded      int    `json:"awarded"`
	Player1Lives int    `json:"player1Lives"`
	Player2Lives int    `json:"player2Lives"`
	Winner       string `json:"winner,omitempty"`
}

// AnswerLog is written with every state change and holds the outcomes already
// applied in the most recently answered round, so a replayed answer is
// recognised from the pair alone.
type AnswerLog struct {
	Round   int           `json:"round"`
	Player1 *RoundOutcome `json:"player1,omitempty"`
	Player2 *RoundOutcome `json:"player2,omitempty"`
}

// Outcome returns the logged outcome of slot in round.
func (l AnswerLog) Outcome(round int, slot Slot) (RoundOutcome, bool) {
	if round == 0 || l.Round != round {
		return RoundOutcome{}, false
	}
	o := l.Player1
	if slot == Player2 {
		o = l.Player2
	}
	if o == nil {
		return RoundOutcome{}, false
	}
	return *o, true
}

// With returns the log with o recorded. An outcome for a later round starts
// a fresh log.
func (l AnswerLog) With(o RoundOutcome) AnswerLog {
	if o.Round != l.Round {
		l = AnswerLog{Round: o.Round}
	}
	if o.Slot == Player1 {
		l.Player1 = &o
	} else {
		l.Player2 = &o
	}
	return l
}

// Snapshot is a read-only view of a duel and its current round.
type Snapshot struct {
	Pair  Pair  `json:"pair"`
	Phase Phase `json:"phase"`
	Round int   `json:"round"`
}

// PointsCredit adds points to a player's total in the same write as a state change.
type PointsCredit struct {
	PlayerID string
	Points   int
}

// StateUpdate is a compare-and-swap write of a pair's game state.
type StateUpdate struct {
	PairID          string
	ExpectedVersion int64
	State           GameState
	Answers         AnswerLog
	Credit          *PointsCredit
}

// LeaderboardEntry is one row of the global leaderboard.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	PlayerID    string `json:"playerId"`
	Name        string `json:"name"`
	RoomID      string `json:"roomId"`
	TotalPoints int    `json:"totalPoints"`
}
