package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"quizplay-service/internal/domain"
)

const (
	DefaultLeaderboardSize = 10
	MaxLeaderboardSize     = 100
)

// LobbyService covers the plain record work around duels: rooms, joining,
// pairing, seeding questions and the leaderboard.
type LobbyService struct {
	rooms     RoomRepository
	players   PlayerRepository
	pairs     PairRepository
	questions QuestionWriter
	cache     QuestionRepository
	rounds    RoundStore
	now       func() time.Time
}

func NewLobbyService(rooms RoomRepository, players PlayerRepository, pairs PairRepository, questions QuestionWriter, cache QuestionRepository, rounds RoundStore) *LobbyService {
	return &LobbyService{
		rooms:     rooms,
		players:   players,
		pairs:     pairs,
		questions: questions,
		cache:     cache,
		rounds:    rounds,
		now:       time.Now,
	}
}

// CreateRoom registers a new room with a short shareable id.
func (s *LobbyService) CreateRoom(ctx context.Context, hostName string) (domain.Room, error) {
	hostName = strings.TrimSpace(hostName)
	if hostName == "" {
		return domain.Room{}, domain.ErrEmptyName
	}
	room, err := s.rooms.InsertRoom(ctx, domain.Room{
		ID:        newRoomID(),
		HostName:  hostName,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Room{}, err
	}
	log.Info().Str("room_id", room.ID).Str("host", hostName).Msg("room created")
	return room, nil
}

// JoinRoom adds a player to an existing room. The returned player carries the
// identity token the client presents on every duel operation.
func (s *LobbyService) JoinRoom(ctx context.Context, roomID, name string) (domain.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Player{}, domain.ErrEmptyName
	}
	roomID = strings.ToUpper(strings.TrimSpace(roomID))
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		return domain.Player{}, err
	}
	player, err := s.players.InsertPlayer(ctx, domain.Player{
		ID:       uuid.NewString(),
		RoomID:   roomID,
		Name:     name,
		Token:    uuid.NewString(),
		JoinedAt: s.now(),
	})
	if err != nil {
		return domain.Player{}, err
	}
	log.Info().Str("room_id", roomID).Str("player_id", player.ID).Msg("player joined")
	return player, nil
}

func (s *LobbyService) ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error) {
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.players.ListPlayers(ctx, roomID)
}

// CreatePair starts a duel between two different players of the room.
func (s *LobbyService) CreatePair(ctx context.Context, roomID, player1ID, player2ID string) (domain.Pair, error) {
	if player1ID == "" || player2ID == "" || player1ID == player2ID {
		return domain.Pair{}, domain.ErrSamePlayer
	}
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		return domain.Pair{}, err
	}
	for _, id := range []string{player1ID, player2ID} {
		p, err := s.players.GetPlayer(ctx, id)
		if err != nil {
			return domain.Pair{}, err
		}
		if p.RoomID != roomID {
			return domain.Pair{}, domain.ErrPlayerNotFound
		}
	}

	pair, err := s.pairs.InsertPair(ctx, domain.Pair{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Player1ID: player1ID,
		Player2ID: player2ID,
		GameState: domain.NewGameState(),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Pair{}, err
	}
	log.Info().Str("room_id", roomID).Str("pair_id", pair.ID).Msg("pair created")
	return pair, nil
}

func (s *LobbyService) ListPairs(ctx context.Context, roomID string) ([]domain.Pair, error) {
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.pairs.ListPairs(ctx, roomID)
}

// DeletePair removes a duel and its round record.
func (s *LobbyService) DeletePair(ctx context.Context, pairID string) error {
	if err := s.pairs.DeletePair(ctx, pairID); err != nil {
		return err
	}
	if err := s.rounds.DeleteRound(ctx, pairID); err != nil {
		log.Warn().Err(err).Str("pair_id", pairID).Msg("delete round record failed")
	}
	return nil
}

// AddQuestion inserts a question into a room's bank and drops the cached bank.
func (s *LobbyService) AddQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	q.Prompt = strings.TrimSpace(q.Prompt)
	for i := range q.Options {
		q.Options[i] = strings.TrimSpace(q.Options[i])
	}
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	if _, err := s.rooms.GetRoom(ctx, q.RoomID); err != nil {
		return domain.Question{}, err
	}
	if q.Category == "" {
		q.Category = domain.DefaultCategory
	}
	q.ID = uuid.NewString()
	q.CreatedAt = s.now()

	saved, err := s.questions.InsertQuestion(ctx, q)
	if err != nil {
		return domain.Question{}, err
	}
	s.cache.Invalidate(ctx, q.RoomID)
	return saved, nil
}

// ListQuestions returns a room's bank, oldest first.
func (s *LobbyService) ListQuestions(ctx context.Context, roomID string) ([]domain.Question, error) {
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.cache.ListQuestions(ctx, roomID)
}

// Leaderboard returns the top players across all rooms by total points.
func (s *LobbyService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	if limit > MaxLeaderboardSize {
		limit = MaxLeaderboardSize
	}
	players, err := s.players.TopPlayers(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for i, p := range players {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:        i + 1,
			PlayerID:    p.ID,
			Name:        p.Name,
			RoomID:      p.RoomID,
			TotalPoints: p.TotalPoints,
		})
	}
	return entries, nil
}

func newRoomID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
