// Package postgres implements the durable store for PoraKhela.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/timer"
)

// ══════════════════════════════════════════════════════════════════════════════
// TIMER SESSION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// TimerRepository implements timer.Repository. Only wall-clock fields are
// persisted; the monotonic anchor is rebuilt on rehydration.
type TimerRepository struct {
	q Querier
}

// NewTimerRepository creates a repository bound to a pool or an open
// transaction.
func NewTimerRepository(q Querier) *TimerRepository {
	return &TimerRepository{q: q}
}

// Save writes the snapshot. The partial unique index on active sessions
// enforces one running or paused timer per learner.
func (r *TimerRepository) Save(ctx context.Context, snap timer.Snapshot) error {
	state := "running"
	var pausedAt *time.Time
	if snap.Paused {
		state = "paused"
		t := snap.PauseStartedAt
		pausedAt = &t
	}

	query := `
		INSERT INTO timer_sessions (
			session_id, user_id, lesson_id, question_id, state,
			started_at, paused_at, accum_paused_ms, time_limit_ms, saved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (session_id) DO UPDATE SET
			state = EXCLUDED.state,
			paused_at = EXCLUDED.paused_at,
			accum_paused_ms = EXCLUDED.accum_paused_ms,
			saved_at = NOW()
	`

	_, err := r.q.Exec(ctx, query,
		snap.SessionID,
		snap.UserID,
		snap.LessonID,
		snap.QuestionID,
		state,
		snap.StartedAt,
		pausedAt,
		snap.AccumPausedMs,
		snap.Limit.Milliseconds(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("timer", "Save", shared.ErrAlreadyExists, "user already has an active timer session")
		}
		return fmt.Errorf("failed to save timer session: %w", err)
	}

	return nil
}

// GetActive returns the persisted snapshot for a user's active session.
func (r *TimerRepository) GetActive(ctx context.Context, userID string) (timer.Snapshot, error) {
	query := `
		SELECT session_id, user_id, lesson_id, question_id, state,
			   started_at, paused_at, accum_paused_ms, time_limit_ms
		FROM timer_sessions
		WHERE user_id = $1 AND state IN ('running', 'paused')
	`

	var snap timer.Snapshot
	var state string
	var pausedAt *time.Time
	var limitMs int64

	err := r.q.QueryRow(ctx, query, userID).Scan(
		&snap.SessionID,
		&snap.UserID,
		&snap.LessonID,
		&snap.QuestionID,
		&state,
		&snap.StartedAt,
		&pausedAt,
		&snap.AccumPausedMs,
		&limitMs,
	)
	if err != nil {
		if IsNoRows(err) {
			return timer.Snapshot{}, shared.NewDomainError("timer", "GetActive", shared.ErrNotFound, "no active timer session")
		}
		return timer.Snapshot{}, fmt.Errorf("failed to get timer session: %w", err)
	}

	snap.Limit = time.Duration(limitMs) * time.Millisecond
	if state == "paused" {
		snap.Paused = true
		if pausedAt != nil {
			snap.PauseStartedAt = *pausedAt
		}
	}

	return snap, nil
}

// ListActive returns every persisted active session, oldest first.
func (r *TimerRepository) ListActive(ctx context.Context, limit int) ([]timer.Snapshot, error) {
	query := `
		SELECT session_id, user_id, lesson_id, question_id, state,
			   started_at, paused_at, accum_paused_ms, time_limit_ms
		FROM timer_sessions
		WHERE state IN ('running', 'paused')
		ORDER BY started_at ASC
		LIMIT $1
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query timer sessions: %w", err)
	}
	defer rows.Close()

	var snaps []timer.Snapshot
	for rows.Next() {
		var snap timer.Snapshot
		var state string
		var pausedAt *time.Time
		var limitMs int64

		err := rows.Scan(
			&snap.SessionID,
			&snap.UserID,
			&snap.LessonID,
			&snap.QuestionID,
			&state,
			&snap.StartedAt,
			&pausedAt,
			&snap.AccumPausedMs,
			&limitMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timer session: %w", err)
		}

		snap.Limit = time.Duration(limitMs) * time.Millisecond
		if state == "paused" {
			snap.Paused = true
			if pausedAt != nil {
				snap.PauseStartedAt = *pausedAt
			}
		}
		snaps = append(snaps, snap)
	}

	return snaps, rows.Err()
}

// Clear removes the persisted snapshot after the session ends.
func (r *TimerRepository) Clear(ctx context.Context, sessionID string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM timer_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear timer session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("timer", "Clear", shared.ErrNotFound, "timer session not found")
	}

	return nil
}
