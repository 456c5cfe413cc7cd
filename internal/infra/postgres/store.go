package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"quizplay-service/internal/domain"
)

type roomRow struct {
	bun.BaseModel `bun:"table:rooms,alias:r"`

	ID        string    `bun:"id,pk"`
	HostName  string    `bun:"host_name,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type playerRow struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	ID          string    `bun:"id,pk"`
	RoomID      string    `bun:"room_id,notnull"`
	Name        string    `bun:"name,notnull"`
	Token       string    `bun:"token,notnull"`
	TotalPoints int       `bun:"total_points,notnull"`
	JoinedAt    time.Time `bun:"joined_at,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID        string    `bun:"id,pk"`
	RoomID    string    `bun:"room_id,notnull"`
	Category  string    `bun:"category,notnull"`
	Question  string    `bun:"question,notnull"`
	Options   []string  `bun:"options,array"`
	Answer    int       `bun:"answer,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type pairRow struct {
	bun.BaseModel `bun:"table:pairs,alias:pr"`

	ID        string           `bun:"id,pk"`
	RoomID    string           `bun:"room_id,notnull"`
	Player1ID string           `bun:"player1_id,notnull"`
	Player2ID string           `bun:"player2_id,notnull"`
	GameState domain.GameState `bun:"game_state,type:jsonb"`
	Answers   domain.AnswerLog `bun:"answers,type:jsonb"`
	Version   int64            `bun:"version,notnull"`
	CreatedAt time.Time        `bun:"created_at,notnull"`
}

// Store implements the room, player, question and pair repositories on bun.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InsertRoom(ctx context.Context, room domain.Room) (domain.Room, error) {
	row := roomRow{ID: room.ID, HostName: room.HostName, CreatedAt: room.CreatedAt}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.Room{}, domain.Unavailable("insert room", err)
	}
	return room, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	var row roomRow
	err := s.db.NewSelect().Model(&row).Where("r.id = ?", roomID).Scan(ctx)
	if err != nil {
		return domain.Room{}, mapErr("get room", err, domain.ErrRoomNotFound)
	}
	return domain.Room{ID: row.ID, HostName: row.HostName, CreatedAt: row.CreatedAt}, nil
}

func (s *Store) InsertPlayer(ctx context.Context, player domain.Player) (domain.Player, error) {
	row := toPlayerRow(player)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.Player{}, domain.Unavailable("insert player", err)
	}
	return player, nil
}

func (s *Store) GetPlayer(ctx context.Context, playerID string) (domain.Player, error) {
	var row playerRow
	err := s.db.NewSelect().Model(&row).Where("p.id = ?", playerID).Scan(ctx)
	if err != nil {
		return domain.Player{}, mapErr("get player", err, domain.ErrPlayerNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) GetPlayerByToken(ctx context.Context, token string) (domain.Player, error) {
	var row playerRow
	err := s.db.NewSelect().Model(&row).Where("p.token = ?", token).Scan(ctx)
	if err != nil {
		return domain.Player{}, mapErr("get player by token", err, domain.ErrPlayerNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error) {
	var rows []playerRow
	err := s.db.NewSelect().Model(&rows).
		Where("p.room_id = ?", roomID).
		OrderExpr("p.joined_at ASC, p.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, domain.Unavailable("list players", err)
	}
	return playersToDomain(rows), nil
}

// TopPlayers orders by points desc, then name.
func (s *Store) TopPlayers(ctx context.Context, limit int) ([]domain.Player, error) {
	var rows []playerRow
	q := s.db.NewSelect().Model(&rows).OrderExpr("p.total_points DESC, p.name ASC, p.id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, domain.Unavailable("top players", err)
	}
	return playersToDomain(rows), nil
}

func (s *Store) InsertQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	row := questionRow{
		ID:        q.ID,
		RoomID:    q.RoomID,
		Category:  q.Category,
		Question:  q.Prompt,
		Options:   q.Options,
		Answer:    q.Answer,
		CreatedAt: q.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.Question{}, domain.Unavailable("insert question", err)
	}
	return q, nil
}

func (s *Store) InsertPair(ctx context.Context, pair domain.Pair) (domain.Pair, error) {
	row := toPairRow(pair)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.Pair{}, domain.Unavailable("insert pair", err)
	}
	return pair, nil
}

func (s *Store) GetPair(ctx context.Context, pairID string) (domain.Pair, error) {
	return s.getPair(ctx, s.db, pairID)
}

func (s *Store) getPair(ctx context.Context, db bun.IDB, pairID string) (domain.Pair, error) {
	var row pairRow
	err := db.NewSelect().Model(&row).Where("pr.id = ?", pairID).Scan(ctx)
	if err != nil {
		return domain.Pair{}, mapErr("get pair", err, domain.ErrDuelNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) ListPairs(ctx context.Context, roomID string) ([]domain.Pair, error) {
	var rows []pairRow
	err := s.db.NewSelect().Model(&rows).
		Where("pr.room_id = ?", roomID).
		OrderExpr("pr.created_at ASC, pr.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, domain.Unavailable("list pairs", err)
	}
	out := make([]domain.Pair, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (s *Store) DeletePair(ctx context.Context, pairID string) error {
	res, err := s.db.NewDelete().Model((*pairRow)(nil)).Where("id = ?", pairID).Exec(ctx)
	if err != nil {
		return domain.Unavailable("delete pair", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrDuelNotFound
	}
	return nil
}

// ApplyGameState writes the new state only if the stored version still
// matches, crediting points in the same transaction.
func (s *Store) ApplyGameState(ctx context.Context, update domain.StateUpdate) (domain.Pair, error) {
	state, err := json.Marshal(update.State)
	if err != nil {
		return domain.Pair{}, err
	}
	answers, err := json.Marshal(update.Answers)
	if err != nil {
		return domain.Pair{}, err
	}

	var out domain.Pair
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var row pairRow
		err := tx.NewUpdate().Model((*pairRow)(nil)).
			Set("game_state = ?", string(state)).
			Set("answers = ?", string(answers)).
			Set("version = version + 1").
			Where("id = ?", update.PairID).
			Where("version = ?", update.ExpectedVersion).
			Returning("*").
			Scan(ctx, &row)
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := s.getPair(ctx, tx, update.PairID); getErr != nil {
				return getErr
			}
			return domain.ErrVersionConflict
		}
		if err != nil {
			return domain.Unavailable("update pair", err)
		}

		if update.Credit != nil {
			res, err := tx.NewUpdate().Model((*playerRow)(nil)).
				Set("total_points = total_points + ?", update.Credit.Points).
				Where("id = ?", update.Credit.PlayerID).
				Exec(ctx)
			if err != nil {
				return domain.Unavailable("credit points", err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return domain.ErrPlayerNotFound
			}
		}

		out = row.toDomain()
		return nil
	})
	if err != nil {
		if isDomainErr(err) {
			return domain.Pair{}, err
		}
		return domain.Pair{}, domain.Unavailable("apply game state", err)
	}
	return out, nil
}

func mapErr(op string, err, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return domain.Unavailable(op, err)
}

func isDomainErr(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrInvalidInput,
		domain.ErrConflict,
		domain.ErrGatewayUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func toPlayerRow(p domain.Player) playerRow {
	return playerRow{
		ID:          p.ID,
		RoomID:      p.RoomID,
		Name:        p.Name,
		Token:       p.Token,
		TotalPoints: p.TotalPoints,
		JoinedAt:    p.JoinedAt,
	}
}

func (r playerRow) toDomain() domain.Player {
	return domain.Player{
		ID:          r.ID,
		RoomID:      r.RoomID,
		Name:        r.Name,
		Token:       r.Token,
		TotalPoints: r.TotalPoints,
		JoinedAt:    r.JoinedAt,
	}
}

func playersToDomain(rows []playerRow) []domain.Player {
	out := make([]domain.Player, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out
}

func toPairRow(p domain.Pair) pairRow {
	return pairRow{
		ID:        p.ID,
		RoomID:    p.RoomID,
		Player1ID: p.Player1ID,
		Player2ID: p.Player2ID,
		GameState: p.GameState,
		Answers:   p.Answers,
		Version:   p.Version,
		CreatedAt: p.CreatedAt,
	}
}

func (r pairRow) toDomain() domain.Pair {
	return domain.Pair{
		ID:        r.ID,
		RoomID:    r.RoomID,
		Player1ID: r.Player1ID,
		Player2ID: r.Player2ID,
		GameState: r.GameState,
		Answers:   r.Answers,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
	}
}
