// Package postgres implements the durable store for PoraKhela.
package postgres

import (
	"context"
	"fmt"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SubmissionRepository implements learning.SubmissionRepository.
type SubmissionRepository struct {
	q Querier
}

// NewSubmissionRepository creates a repository bound to a pool or an open
// transaction.
func NewSubmissionRepository(q Querier) *SubmissionRepository {
	return &SubmissionRepository{q: q}
}

const submissionColumns = `
	id, lesson_id, question_id, user_id, selected_index, is_correct,
	time_taken_ms, points_earned, created_at, sync_state, sync_attempts,
	idempotency_key`

// Insert stores a new submission. A unique violation on the business key
// maps to shared.ErrDuplicateSubmission no matter which process raced us.
func (r *SubmissionRepository) Insert(ctx context.Context, sub *learning.AnswerSubmission) error {
	query := `
		INSERT INTO answer_submissions (
			id, lesson_id, question_id, user_id, selected_index, is_correct,
			time_taken_ms, points_earned, created_at, sync_state, sync_attempts,
			idempotency_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.q.Exec(ctx, query,
		sub.ID,
		sub.LessonID,
		sub.QuestionID,
		sub.UserID,
		sub.SelectedIndex,
		sub.IsCorrect,
		sub.TimeTakenMs,
		sub.PointsEarned,
		sub.CreatedAt,
		string(sub.SyncState),
		sub.SyncAttempts,
		sub.IdempotencyKey,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateSubmission
		}
		return fmt.Errorf("failed to insert submission: %w", err)
	}

	return nil
}

// GetByBusinessKey returns the submission for (user, lesson, question).
func (r *SubmissionRepository) GetByBusinessKey(ctx context.Context, userID, lessonID, questionID string) (*learning.AnswerSubmission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM answer_submissions
		WHERE user_id = $1 AND lesson_id = $2 AND question_id = $3
	`

	row := r.q.QueryRow(ctx, query, userID, lessonID, questionID)
	return scanSubmission(row)
}

// RecentByUser returns the user's most recent submissions, newest first.
func (r *SubmissionRepository) RecentByUser(ctx context.Context, userID string, limit int) ([]*learning.AnswerSubmission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM answer_submissions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var subs []*learning.AnswerSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// SetSyncState transitions the record's sync state.
func (r *SubmissionRepository) SetSyncState(ctx context.Context, id string, state learning.SyncState, attempts int) error {
	query := `
		UPDATE answer_submissions
		SET sync_state = $1, sync_attempts = $2
		WHERE id = $3
	`

	tag, err := r.q.Exec(ctx, query, string(state), attempts, id)
	if err != nil {
		return fmt.Errorf("failed to update submission sync state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("learning", "SetSyncState", shared.ErrNotFound, "submission not found")
	}

	return nil
}

func scanSubmission(row pgx.Row) (*learning.AnswerSubmission, error) {
	var sub learning.AnswerSubmission
	var syncState string

	err := row.Scan(
		&sub.ID,
		&sub.LessonID,
		&sub.QuestionID,
		&sub.UserID,
		&sub.SelectedIndex,
		&sub.IsCorrect,
		&sub.TimeTakenMs,
		&sub.PointsEarned,
		&sub.CreatedAt,
		&syncState,
		&sub.SyncAttempts,
		&sub.IdempotencyKey,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("learning", "GetSubmission", shared.ErrNotFound, "submission not found")
		}
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}

	sub.SyncState = learning.SyncState(syncState)
	return &sub, nil
}
