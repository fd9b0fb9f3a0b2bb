// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sadmanHT/PoraKhela-sub000/internal/application/guard"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/scoring"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT ANSWER COMMAND
// Turns an answer into a durable submission, points, progress, and queued
// remote effects - exactly once per (user, lesson, question), online or not.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitAnswerCommand contains one answer from the UI (or a synthesized
// timeout from the timer subsystem).
type SubmitAnswerCommand struct {
	// UserID is the learner answering.
	UserID string

	// LessonID is the lesson the question belongs to.
	LessonID string

	// QuestionID is the question being answered.
	QuestionID string

	// SelectedIndex is the chosen option, or learning.TimeoutSelectedIndex
	// when the timer expired with no answer.
	SelectedIndex int

	// TimeTakenMs is active elapsed time from the timer subsystem.
	TimeTakenMs int64

	// OccurredAt is when the answer happened (defaults to now if zero).
	OccurredAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c SubmitAnswerCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("submit_answer: user_id is required")
	}
	if c.LessonID == "" {
		return errors.New("submit_answer: lesson_id is required")
	}
	if c.QuestionID == "" {
		return errors.New("submit_answer: question_id is required")
	}
	if c.SelectedIndex < learning.TimeoutSelectedIndex {
		return errors.New("submit_answer: selected_index out of range")
	}
	if c.TimeTakenMs < 0 {
		return errors.New("submit_answer: time_taken_ms cannot be negative")
	}
	return nil
}

// SubmitAnswerResult contains the locally committed outcome. Everything
// in it is authoritative for the device the moment Handle returns,
// regardless of connectivity.
type SubmitAnswerResult struct {
	// AlreadySubmitted is true when this business key was committed
	// before; nothing was written and no points were awarded again.
	AlreadySubmitted bool

	// SubmissionID is the stored submission's ID.
	SubmissionID string

	// IsCorrect is the graded correctness.
	IsCorrect bool

	// PointsEarned is the answer award (achievement bonuses excluded).
	PointsEarned int

	// LessonCompleted is true when this answer finished the lesson.
	LessonCompleted bool

	// Achievements lists achievements this answer unlocked.
	Achievements []scoring.Achievement

	// Progress is the post-merge progress record.
	Progress *learning.ProgressRecord

	// Events contains UI events generated by this answer.
	Events []shared.Event
}

// SubmitAnswerHandler handles the SubmitAnswerCommand.
type SubmitAnswerHandler struct {
	uow       learning.UnitOfWork
	questions learning.QuestionRepository
	reads     learning.SubmissionRepository
	progress  learning.ProgressRepository
	engine    *scoring.Engine
	guard     *guard.Guard
	publisher shared.EventPublisher

	// streakWindow bounds how much history the streak evaluation reads.
	streakWindow int
}

// NewSubmitAnswerHandler creates a new SubmitAnswerHandler.
func NewSubmitAnswerHandler(
	uow learning.UnitOfWork,
	questions learning.QuestionRepository,
	reads learning.SubmissionRepository,
	progress learning.ProgressRepository,
	engine *scoring.Engine,
	g *guard.Guard,
	publisher shared.EventPublisher,
) *SubmitAnswerHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &SubmitAnswerHandler{
		uow:          uow,
		questions:    questions,
		reads:        reads,
		progress:     progress,
		engine:       engine,
		guard:        g,
		publisher:    publisher,
		streakWindow: 32,
	}
}

// Handle executes the submit answer command.
//
// The submission, its answer ledger entry, the progress merge, and the
// outbox rows commit in one transaction behind the Submission Guard. A
// duplicate business key - double tap, repeated timeout tick, replay
// after restart - returns AlreadySubmitted with no side effects.
func (h *SubmitAnswerHandler) Handle(ctx context.Context, cmd SubmitAnswerCommand) (*SubmitAnswerResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("submit_answer: validation failed: %w", err)
	}

	occurredAt := cmd.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	question, err := h.questions.GetQuestion(ctx, cmd.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("submit_answer: failed to load question: %w", err)
	}
	if question.LessonID != cmd.LessonID {
		return nil, shared.NewDomainError("learning", "SubmitAnswer", shared.ErrInvalidInput, "question does not belong to lesson")
	}
	if cmd.SelectedIndex >= len(question.Options) {
		return nil, shared.ErrInvalidAnswerIndex
	}
	lesson, err := h.questions.GetLesson(ctx, cmd.LessonID)
	if err != nil {
		return nil, fmt.Errorf("submit_answer: failed to load lesson: %w", err)
	}

	outcome := h.engine.Score(question, cmd.SelectedIndex, time.Duration(cmd.TimeTakenMs)*time.Millisecond)

	sub, err := learning.NewAnswerSubmission(
		cmd.UserID, cmd.LessonID, cmd.QuestionID,
		cmd.SelectedIndex, outcome.IsCorrect, cmd.TimeTakenMs, outcome.Points, occurredAt,
	)
	if err != nil {
		return nil, err
	}

	result := &SubmitAnswerResult{
		SubmissionID: sub.ID,
		IsCorrect:    outcome.IsCorrect,
		PointsEarned: outcome.Points,
		Events:       make([]shared.Event, 0, 4),
	}

	// Pre-merge state feeding achievement evaluation, captured inside
	// the transaction below.
	var (
		progressAfter   *learning.ProgressRecord
		completedNow    bool
		newPersonalBest bool
	)

	committed, err := h.guard.GuardedCommit(ctx, sub.BusinessKey(), func(ctx context.Context) error {
		return h.uow.Execute(ctx, func(tx learning.TxContext) error {
			if err := tx.Submissions().Insert(ctx, sub); err != nil {
				return err
			}

			if outcome.Points > 0 {
				entry, err := learning.NewPointsLedgerEntry(
					cmd.UserID, cmd.LessonID, learning.LedgerSourceAnswer,
					outcome.Points, sub.ID, occurredAt,
				)
				if err != nil {
					return err
				}
				if err := tx.Ledger().Insert(ctx, entry); err != nil {
					return err
				}
				ledgerItem, err := learning.NewQueueItemForLedger(entry)
				if err != nil {
					return err
				}
				if err := tx.Queue().Enqueue(ctx, ledgerItem); err != nil {
					return err
				}
				result.Events = append(result.Events, shared.NewPointsAwardedEvent(
					entry.ID, cmd.UserID, cmd.LessonID, string(entry.Source), entry.Amount,
				))
			}

			rec, err := tx.Progress().Get(ctx, cmd.UserID, cmd.LessonID)
			if err != nil {
				if !shared.IsNotFound(err) {
					return err
				}
				rec, err = learning.NewProgressRecord(cmd.LessonID, cmd.UserID)
				if err != nil {
					return err
				}
			}
			newPersonalBest = outcome.IsCorrect && rec.IsPersonalBest(cmd.TimeTakenMs)
			completedNow = rec.Apply(sub, lesson.QuestionCount)
			if err := tx.Progress().Upsert(ctx, rec); err != nil {
				return err
			}
			progressAfter = rec

			subItem, err := learning.NewQueueItemForSubmission(sub)
			if err != nil {
				return err
			}
			return tx.Queue().Enqueue(ctx, subItem)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("submit_answer: commit failed: %w", err)
	}
	if !committed {
		return &SubmitAnswerResult{AlreadySubmitted: true}, nil
	}

	result.Progress = progressAfter
	result.LessonCompleted = completedNow
	result.Events = append(result.Events, shared.NewAnswerRecordedEvent(
		sub.ID, cmd.UserID, cmd.LessonID, cmd.QuestionID, sub.IsCorrect, sub.IsTimeout(),
	))
	if completedNow {
		result.Events = append(result.Events, shared.NewLessonCompletedEvent(
			cmd.UserID, cmd.LessonID, progressAfter.CorrectCount, lesson.QuestionCount, progressAfter.TotalTimeMs,
		))
	}
	if sub.IsTimeout() {
		result.Events = append(result.Events, shared.NewQuestionTimedOutEvent(cmd.UserID, cmd.LessonID, cmd.QuestionID))
	}

	// Achievement evaluation runs after the answer transaction. Each fire
	// goes through the guard with its own key, so a re-run for the same
	// input cannot double-award. The answer itself is committed; a failed
	// bonus write must not roll it back, surface to the learner, or
	// suppress the events already earned above.
	_ = h.evaluateAchievements(ctx, cmd, progressAfter, completedNow, newPersonalBest, occurredAt, result)

	for _, event := range result.Events {
		_ = h.publisher.Publish(event)
	}

	return result, nil
}

// evaluateAchievements fires achievement awards for the new submission.
func (h *SubmitAnswerHandler) evaluateAchievements(
	ctx context.Context,
	cmd SubmitAnswerCommand,
	progress *learning.ProgressRecord,
	completedNow bool,
	newPersonalBest bool,
	occurredAt time.Time,
	result *SubmitAnswerResult,
) error {
	history, err := h.reads.RecentByUser(ctx, cmd.UserID, h.streakWindow)
	if err != nil {
		return err
	}

	fired := h.engine.EvaluateAchievements(scoring.EvaluationInput{
		Progress:           progress,
		ConsecutiveCorrect: scoring.ConsecutiveCorrect(history),
		CompletedLesson:    completedNow,
		NewPersonalBest:    newPersonalBest,
	})

	for _, ach := range fired {
		relatedID := learning.AchievementRelatedID(string(ach.Type), ach.Milestone)
		source := learning.LedgerSourceAchievement
		lessonID := cmd.LessonID
		if ach.Type == scoring.AchievementStreak {
			// Streaks run across lessons, so the award key must not
			// depend on which lesson the milestone happened to fire in.
			source = learning.LedgerSourceStreak
			lessonID = learning.CrossLessonAwardLesson
		}

		entry, err := learning.NewPointsLedgerEntry(
			cmd.UserID, lessonID, source, ach.Points, relatedID, occurredAt,
		)
		if err != nil {
			return err
		}

		committed, err := h.guard.GuardedCommit(ctx, entry.BusinessKey(), func(ctx context.Context) error {
			return h.uow.Execute(ctx, func(tx learning.TxContext) error {
				if err := tx.Ledger().Insert(ctx, entry); err != nil {
					return err
				}
				item, err := learning.NewQueueItemForLedger(entry)
				if err != nil {
					return err
				}
				return tx.Queue().Enqueue(ctx, item)
			})
		})
		if err != nil {
			return err
		}
		if !committed {
			// Fired before for this milestone; skip silently.
			continue
		}

		result.Achievements = append(result.Achievements, ach)
		result.Events = append(result.Events, shared.NewAchievementUnlockedEvent(
			cmd.UserID, string(ach.Type), ach.Milestone, ach.Points,
		))
	}

	return nil
}
