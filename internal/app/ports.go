package app

import (
	"context"

	"quizplay-service/internal/domain"
)

// PairRepository stores duels. ApplyGameState is a compare-and-swap on the
// pair version; it writes the state and the optional points credit together
// or not at all, and bumps the version.
type PairRepository interface {
	GetPair(ctx context.Context, pairID string) (domain.Pair, error)
	ApplyGameState(ctx context.Context, update domain.StateUpdate) (domain.Pair, error)
	InsertPair(ctx context.Context, pair domain.Pair) (domain.Pair, error)
	ListPairs(ctx context.Context, roomID string) ([]domain.Pair, error)
	DeletePair(ctx context.Context, pairID string) error
}

// PlayerRepository stores room members.
type PlayerRepository interface {
	GetPlayer(ctx context.Context, playerID string) (domain.Player, error)
	GetPlayerByToken(ctx context.Context, token string) (domain.Player, error)
	InsertPlayer(ctx context.Context, player domain.Player) (domain.Player, error)
	ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error)
	TopPlayers(ctx context.Context, limit int) ([]domain.Player, error)
}

// RoomRepository stores rooms.
type RoomRepository interface {
	InsertRoom(ctx context.Context, room domain.Room) (domain.Room, error)
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
}

// QuestionRepository serves a room's question bank (usually from a cache).
type QuestionRepository interface {
	ListQuestions(ctx context.Context, roomID string) ([]domain.Question, error)
	Invalidate(ctx context.Context, roomID string)
}

// QuestionWriter inserts questions into the backing store.
type QuestionWriter interface {
	InsertQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
}

// ChangeFeed delivers pair updates to subscribers of that pair. The caller
// must invoke the returned cancel function to avoid leaks.
type ChangeFeed interface {
	Publish(ctx context.Context, pair domain.Pair) error
	Subscribe(ctx context.Context, pairID string) (<-chan domain.Pair, func(), error)
}

// RoundStore keeps the ephemeral round record of each pair.
type RoundStore interface {
	LoadRound(ctx context.Context, pairID string) (RoundRecord, bool, error)
	SaveRound(ctx context.Context, rec RoundRecord) error
	DeleteRound(ctx context.Context, pairID string) error
}

// Locker serializes work on one pair. Lock blocks until the lock is held or
// ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// RoundRecord is the engine's view of a pair's current round.
type RoundRecord struct {
	PairID   string                              `json:"pairId"`
	Number   int                                 `json:"number"`
	Phase    domain.Phase                        `json:"phase"`
	Question domain.Question                     `json:"question"`
	Outcomes map[domain.Slot]domain.RoundOutcome `json:"outcomes,omitempty"`
	Seen     []string                            `json:"seen,omitempty"`
}

func newRoundRecord(pairID string) RoundRecord {
	return RoundRecord{
		PairID:   pairID,
		Phase:    domain.PhaseWaiting,
		Outcomes: make(map[domain.Slot]domain.RoundOutcome),
	}
}

// settle moves the round to result once both slots answered, or to finished
// once the pair has a winner.
func (r *RoundRecord) settle(pair domain.Pair) {
	switch {
	case pair.Finished():
		r.Phase = domain.PhaseFinished
	case len(r.Outcomes) == 2:
		r.Phase = domain.PhaseResult
	}
}
