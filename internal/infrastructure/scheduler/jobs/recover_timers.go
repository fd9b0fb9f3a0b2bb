// Package jobs contains implementations of scheduled jobs for PoraKhela.
package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sadmanHT/PoraKhela-sub000/internal/application/command"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/timer"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVER TIMERS JOB
// ══════════════════════════════════════════════════════════════════════════════

// TimerExpirer converts an expired timer session into a timeout
// submission. Satisfied by command.ExpireTimerHandler.
type TimerExpirer interface {
	Handle(ctx context.Context, cmd command.ExpireTimerCommand) (*command.ExpireTimerResult, error)
}

// RecoverTimersJob sweeps persisted timer sessions and fires the expiry
// path for any that ran out while the process was down. Sessions still
// within their limit are left alone; the app rehydrates them itself when
// the learner returns to the question.
type RecoverTimersJob struct {
	timers timer.Repository
	expire TimerExpirer
	clock  timer.Clock
	logger *slog.Logger

	// BatchSize caps sessions examined per run.
	BatchSize int
}

// NewRecoverTimersJob creates a new RecoverTimersJob.
func NewRecoverTimersJob(timers timer.Repository, expire TimerExpirer, logger *slog.Logger) *RecoverTimersJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoverTimersJob{
		timers:    timers,
		expire:    expire,
		clock:     timer.SystemClock{},
		logger:    logger,
		BatchSize: 100,
	}
}

// Name implements scheduler.Job.
func (j *RecoverTimersJob) Name() string {
	return "recover_timers"
}

// Description implements scheduler.Job.
func (j *RecoverTimersJob) Description() string {
	return "Expires timer sessions that ran out while the process was down"
}

// Run implements scheduler.Job.
func (j *RecoverTimersJob) Run(ctx context.Context) error {
	snaps, err := j.timers.ListActive(ctx, j.BatchSize)
	if err != nil {
		return fmt.Errorf("recover timers: %w", err)
	}

	var expired, broken, dropped int
	for _, snap := range snaps {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		session, err := timer.Rehydrate(snap, j.clock)
		if err != nil {
			// Broken state resolves against the learner's remaining
			// time, never into an untimed retry. As long as the snapshot
			// still says which question it timed, treat it as expired.
			if snap.UserID == "" || snap.LessonID == "" || snap.QuestionID == "" {
				dropped++
				j.logger.Warn("dropping unidentifiable timer session",
					slog.String("session_id", snap.SessionID),
					slog.String("error", err.Error()),
				)
				if clearErr := j.timers.Clear(ctx, snap.SessionID); clearErr != nil && !shared.IsNotFound(clearErr) {
					return fmt.Errorf("recover timers: clear broken session: %w", clearErr)
				}
				continue
			}

			broken++
			j.logger.Warn("expiring broken timer session",
				slog.String("session_id", snap.SessionID),
				slog.String("error", err.Error()),
			)
			if err := j.expireSession(ctx, snap); err != nil {
				return err
			}
			continue
		}

		if !session.Expired() {
			continue
		}

		expired++
		if err := j.expireSession(ctx, snap); err != nil {
			return err
		}
	}

	if expired > 0 || broken > 0 || dropped > 0 {
		j.logger.Info("timer recovery sweep completed",
			slog.Int("examined", len(snaps)),
			slog.Int("expired", expired),
			slog.Int("broken", broken),
			slog.Int("dropped", dropped),
		)
	}

	return nil
}

// expireSession routes one session through the timeout submission path
// and clears its persisted state.
func (j *RecoverTimersJob) expireSession(ctx context.Context, snap timer.Snapshot) error {
	limitMs := snap.Limit.Milliseconds()
	if limitMs < 0 {
		limitMs = 0
	}

	result, err := j.expire.Handle(ctx, command.ExpireTimerCommand{
		SessionID:   snap.SessionID,
		UserID:      snap.UserID,
		LessonID:    snap.LessonID,
		QuestionID:  snap.QuestionID,
		TimeLimitMs: limitMs,
	})
	if err != nil {
		return fmt.Errorf("recover timers: expire session %s: %w", snap.SessionID, err)
	}

	if result.AlreadySubmitted {
		j.logger.Debug("timer expiry was a no-op, answer already recorded",
			slog.String("session_id", snap.SessionID),
		)
	}
	return nil
}
