package memory

import (
	"context"
	"sort"
	"sync"

	"quizplay-service/internal/domain"
)

// Store is an in-memory gateway for rooms, players, questions and pairs.
// It implements the app repositories and QuestionLoader.
type Store struct {
	mu        sync.RWMutex
	rooms     map[string]domain.Room
	players   map[string]domain.Player
	tokens    map[string]string
	questions map[string][]domain.Question
	pairs     map[string]domain.Pair
}

func NewStore() *Store {
	return &Store{
		rooms:     make(map[string]domain.Room),
		players:   make(map[string]domain.Player),
		tokens:    make(map[string]string),
		questions: make(map[string][]domain.Question),
		pairs:     make(map[string]domain.Pair),
	}
}

func (s *Store) InsertRoom(_ context.Context, room domain.Room) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return domain.Room{}, domain.ErrConflict
	}
	s.rooms[room.ID] = room
	return room, nil
}

func (s *Store) GetRoom(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *Store) InsertPlayer(_ context.Context, player domain.Player) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[player.ID]; ok {
		return domain.Player{}, domain.ErrConflict
	}
	s.players[player.ID] = player
	if player.Token != "" {
		s.tokens[player.Token] = player.ID
	}
	return player, nil
}

func (s *Store) GetPlayer(_ context.Context, playerID string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[playerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

func (s *Store) GetPlayerByToken(_ context.Context, token string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[s.tokens[token]]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

// ListPlayers returns a room's players in join order.
func (s *Store) ListPlayers(_ context.Context, roomID string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Player, 0)
	for _, p := range s.players {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// TopPlayers orders by points desc, then name.
func (s *Store) TopPlayers(_ context.Context, limit int) ([]domain.Player, error) {
	s.mu.RLock()
	out := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) InsertQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.Options = append([]string(nil), q.Options...)
	s.questions[q.RoomID] = append(s.questions[q.RoomID], q)
	return q, nil
}

// LoadQuestions returns a room's bank in insertion order.
func (s *Store) LoadQuestions(_ context.Context, roomID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bank := s.questions[roomID]
	out := make([]domain.Question, len(bank))
	for i, q := range bank {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out, nil
}

func (s *Store) InsertPair(_ context.Context, pair domain.Pair) (domain.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pairs[pair.ID]; ok {
		return domain.Pair{}, domain.ErrConflict
	}
	s.pairs[pair.ID] = pair
	return pair, nil
}

func (s *Store) GetPair(_ context.Context, pairID string) (domain.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pair, ok := s.pairs[pairID]
	if !ok {
		return domain.Pair{}, domain.ErrDuelNotFound
	}
	return pair, nil
}

func (s *Store) ListPairs(_ context.Context, roomID string) ([]domain.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Pair, 0)
	for _, p := range s.pairs {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeletePair(_ context.Context, pairID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pairs[pairID]; !ok {
		return domain.ErrDuelNotFound
	}
	delete(s.pairs, pairID)
	return nil
}

// ApplyGameState writes the new state only if the stored version still
// matches, crediting points in the same critical section.
func (s *Store) ApplyGameState(_ context.Context, update domain.StateUpdate) (domain.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, ok := s.pairs[update.PairID]
	if !ok {
		return domain.Pair{}, domain.ErrDuelNotFound
	}
	if pair.Version != update.ExpectedVersion {
		return domain.Pair{}, domain.ErrVersionConflict
	}

	var player domain.Player
	if update.Credit != nil {
		player, ok = s.players[update.Credit.PlayerID]
		if !ok {
			return domain.Pair{}, domain.ErrPlayerNotFound
		}
	}

	pair.GameState = update.State
	pair.Answers = update.Answers
	pair.Version++
	s.pairs[pair.ID] = pair
	if update.Credit != nil {
		player.TotalPoints += update.Credit.Points
		s.players[player.ID] = player
	}
	return pair, nil
}
