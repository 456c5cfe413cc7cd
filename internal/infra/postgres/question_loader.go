package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizplay-service/internal/domain"
)

// QuestionLoader reads a room's question bank straight from the questions
// table; the caches in front of it call it on miss only.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, roomID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, room_id, category, question, options, answer, created_at
		FROM questions
		WHERE room_id = $1
		ORDER BY created_at, id`, roomID)
	if err != nil {
		return nil, domain.Unavailable("load questions", err)
	}
	defer rows.Close()

	questions := make([]domain.Question, 0)
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.RoomID, &q.Category, &q.Prompt, &q.Options, &q.Answer, &q.CreatedAt); err != nil {
			return nil, domain.Unavailable("scan question", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("load questions", err)
	}
	return questions, nil
}
