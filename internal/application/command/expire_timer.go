package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/timer"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE TIMER COMMAND
// Converts an expired question timer into a timeout submission. Repeated
// ticks and restart replays collapse into one effect because the timeout
// submission takes the same guarded path as a real answer.
// ══════════════════════════════════════════════════════════════════════════════

// ExpireTimerCommand identifies the expired session.
type ExpireTimerCommand struct {
	// SessionID is the timer session that expired.
	SessionID string

	// UserID, LessonID, QuestionID locate the unanswered question.
	UserID     string
	LessonID   string
	QuestionID string

	// TimeLimitMs is recorded as the time taken for a timed-out answer.
	TimeLimitMs int64
}

// Validate validates the command.
func (c ExpireTimerCommand) Validate() error {
	if c.SessionID == "" {
		return errors.New("expire_timer: session_id is required")
	}
	if c.UserID == "" || c.LessonID == "" || c.QuestionID == "" {
		return errors.New("expire_timer: user, lesson and question IDs are required")
	}
	if c.TimeLimitMs < 0 {
		return errors.New("expire_timer: time_limit_ms cannot be negative")
	}
	return nil
}

// ExpireTimerResult reports the outcome.
type ExpireTimerResult struct {
	// AlreadySubmitted is true when the question already has a
	// submission - a real answer raced the expiry, or a previous tick
	// already fired. Either way nothing was written.
	AlreadySubmitted bool

	// SubmissionID is the stored timeout submission's ID.
	SubmissionID string
}

// ExpireTimerHandler handles the ExpireTimerCommand.
type ExpireTimerHandler struct {
	submit *SubmitAnswerHandler
	timers timer.Repository
}

// NewExpireTimerHandler creates a new ExpireTimerHandler.
func NewExpireTimerHandler(submit *SubmitAnswerHandler, timers timer.Repository) *ExpireTimerHandler {
	return &ExpireTimerHandler{submit: submit, timers: timers}
}

// Handle synthesizes the timeout submission and clears the persisted
// timer state.
func (h *ExpireTimerHandler) Handle(ctx context.Context, cmd ExpireTimerCommand) (*ExpireTimerResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("expire_timer: validation failed: %w", err)
	}

	subResult, err := h.submit.Handle(ctx, SubmitAnswerCommand{
		UserID:        cmd.UserID,
		LessonID:      cmd.LessonID,
		QuestionID:    cmd.QuestionID,
		SelectedIndex: learning.TimeoutSelectedIndex,
		TimeTakenMs:   cmd.TimeLimitMs,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	// The session is finished either way; stale persisted state must not
	// rehydrate into a second expiry after the next restart.
	if h.timers != nil {
		if err := h.timers.Clear(ctx, cmd.SessionID); err != nil && !shared.IsNotFound(err) {
			return nil, fmt.Errorf("expire_timer: failed to clear timer state: %w", err)
		}
	}

	return &ExpireTimerResult{
		AlreadySubmitted: subResult.AlreadySubmitted,
		SubmissionID:     subResult.SubmissionID,
	}, nil
}
