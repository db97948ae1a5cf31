package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v4/pgxpool"

	"conquest-duel-service/internal/domain"
)

// QuestionLoader loads the question bank from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, category domain.Category, difficulty int) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, text, answer, distractors FROM questions WHERE category=$1 AND difficulty=$2`,
		string(category), difficulty)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			id             int64
			text, answer   string
			rawDistractors []byte
		)
		if err := rows.Scan(&id, &text, &answer, &rawDistractors); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var distractors []string
		if err := json.Unmarshal(rawDistractors, &distractors); err != nil {
			return nil, fmt.Errorf("unmarshal distractors: %w", err)
		}
		questions = append(questions, domain.Question{
			ID:          strconv.FormatInt(id, 10),
			Text:        text,
			Answer:      answer,
			Distractors: distractors,
			Category:    category,
			Difficulty:  difficulty,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}
