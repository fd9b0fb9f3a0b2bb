// Package postgres implements the durable store for PoraKhela.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements learning.ProgressRepository.
type ProgressRepository struct {
	q Querier
}

// NewProgressRepository creates a repository bound to a pool or an open
// transaction.
func NewProgressRepository(q Querier) *ProgressRepository {
	return &ProgressRepository{q: q}
}

// Get returns the record for a (lesson, user) pair.
func (r *ProgressRepository) Get(ctx context.Context, userID, lessonID string) (*learning.ProgressRecord, error) {
	query := `
		SELECT lesson_id, user_id, questions_answered, correct_count,
			   total_time_ms, best_time_ms, status, completed_at, updated_at
		FROM progress_records
		WHERE user_id = $1 AND lesson_id = $2
	`

	var rec learning.ProgressRecord
	var status string

	err := r.q.QueryRow(ctx, query, userID, lessonID).Scan(
		&rec.LessonID,
		&rec.UserID,
		&rec.QuestionsAnswered,
		&rec.CorrectCount,
		&rec.TotalTimeMs,
		&rec.BestTimeMs,
		&status,
		&rec.CompletedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get progress record: %w", err)
	}

	rec.Status = learning.ProgressStatus(status)
	return &rec, nil
}

// Upsert writes the merged record. The merge itself happens in the domain
// layer; the store only keeps the latest version per (lesson, user).
func (r *ProgressRepository) Upsert(ctx context.Context, rec *learning.ProgressRecord) error {
	query := `
		INSERT INTO progress_records (
			lesson_id, user_id, questions_answered, correct_count,
			total_time_ms, best_time_ms, status, completed_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (lesson_id, user_id) DO UPDATE SET
			questions_answered = EXCLUDED.questions_answered,
			correct_count = EXCLUDED.correct_count,
			total_time_ms = EXCLUDED.total_time_ms,
			best_time_ms = EXCLUDED.best_time_ms,
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.q.Exec(ctx, query,
		rec.LessonID,
		rec.UserID,
		rec.QuestionsAnswered,
		rec.CorrectCount,
		rec.TotalTimeMs,
		rec.BestTimeMs,
		string(rec.Status),
		rec.CompletedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert progress record: %w", err)
	}

	return nil
}

// CountCompletedInRange counts lessons the user completed in [from, to).
func (r *ProgressRepository) CountCompletedInRange(ctx context.Context, userID string, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM progress_records
		WHERE user_id = $1
		  AND status = 'completed'
		  AND completed_at >= $2 AND completed_at < $3
	`

	var count int
	if err := r.q.QueryRow(ctx, query, userID, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count completed lessons: %w", err)
	}

	return count, nil
}
