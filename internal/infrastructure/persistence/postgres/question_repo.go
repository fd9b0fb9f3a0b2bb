// Package postgres implements the durable store for PoraKhela.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUESTION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// QuestionRepository implements learning.QuestionRepository. Lesson
// content is read-mostly; callers layer a cache on top where needed.
type QuestionRepository struct {
	q Querier
}

// NewQuestionRepository creates a repository bound to a pool or an open
// transaction.
func NewQuestionRepository(q Querier) *QuestionRepository {
	return &QuestionRepository{q: q}
}

// GetQuestion returns a question by ID.
func (r *QuestionRepository) GetQuestion(ctx context.Context, id string) (*learning.Question, error) {
	query := `
		SELECT id, lesson_id, position, prompt, options, correct_index,
			   difficulty, time_limit_ms
		FROM questions
		WHERE id = $1
	`

	var q learning.Question
	var optionsJSON []byte
	var difficulty string
	var limitMs int64

	err := r.q.QueryRow(ctx, query, id).Scan(
		&q.ID,
		&q.LessonID,
		&q.Position,
		&q.Prompt,
		&optionsJSON,
		&q.CorrectIndex,
		&difficulty,
		&limitMs,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	if err := json.Unmarshal(optionsJSON, &q.Options); err != nil {
		return nil, fmt.Errorf("failed to decode question options: %w", err)
	}

	q.Difficulty = learning.Difficulty(difficulty)
	q.TimeLimit = time.Duration(limitMs) * time.Millisecond
	return &q, nil
}

// GetLesson returns a lesson by ID.
func (r *QuestionRepository) GetLesson(ctx context.Context, id string) (*learning.Lesson, error) {
	query := `
		SELECT id, title, subject, question_count, created_at
		FROM lessons
		WHERE id = $1
	`

	var lesson learning.Lesson

	err := r.q.QueryRow(ctx, query, id).Scan(
		&lesson.ID,
		&lesson.Title,
		&lesson.Subject,
		&lesson.QuestionCount,
		&lesson.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLessonNotFound
		}
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}

	return &lesson, nil
}
