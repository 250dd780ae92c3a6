package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-arena-service/internal/domain"
	"quiz-arena-service/internal/infra/memory"
)

// QuestionBank loads question pools from the question_bank table.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

const selectPoolSQL = `
SELECT prompt, type, options, correct_answer, points, time_limit_seconds, subject
FROM question_bank
WHERE lower(game_type) = lower($1)
  AND ($2 = 0 OR grade_level = 0 OR grade_level = $2)
  AND ($3 = '' OR difficulty = '' OR lower(difficulty) = lower($3))
ORDER BY id`

// LoadPool returns every question tagged for the query. Grade level 0 and an empty
// difficulty act as wildcards on either side.
func (b *QuestionBank) LoadPool(ctx context.Context, query domain.QuestionQuery) ([]domain.QuestionSpec, error) {
	rows, err := b.pool.Query(ctx, selectPoolSQL, query.GameType, query.GradeLevel, query.Difficulty)
	if err != nil {
		return nil, fmt.Errorf("load question pool: %w", err)
	}
	defer rows.Close()

	var out []domain.QuestionSpec
	for rows.Next() {
		var (
			q     domain.QuestionSpec
			qtype string
		)
		if err := rows.Scan(&q.Prompt, &qtype, &q.Options, &q.CorrectAnswer, &q.Points, &q.TimeLimitSeconds, &q.Subject); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(qtype)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load question pool: %w", err)
	}
	if len(out) == 0 {
		return nil, domain.ErrNoQuestions
	}
	return out, nil
}

// Import inserts questions in one transaction. It returns the number of rows written.
func (b *QuestionBank) Import(ctx context.Context, questions []memory.BankQuestion) (int, error) {
	batch := &pgx.Batch{}
	for _, q := range questions {
		options := q.Options
		if options == nil {
			options = []string{}
		}
		batch.Queue(`INSERT INTO question_bank
			(game_type, grade_level, difficulty, prompt, type, options, correct_answer, points, time_limit_seconds, subject)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			q.GameType, q.GradeLevel, q.Difficulty, q.Prompt, string(q.Type), options,
			q.CorrectAnswer, q.Points, q.TimeLimitSeconds, q.Subject)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	results := tx.SendBatch(ctx, batch)
	for i := range questions {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("import question %d: %w", i+1, err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("import questions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(questions), nil
}
