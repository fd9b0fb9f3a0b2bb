// Package learning contains the core aggregates of the progress engine:
// answer submissions, the points ledger, per-lesson progress records, and
// the sync queue that carries them to the remote system of record.
//
// Every record is created locally first, regardless of connectivity, and
// only later confirmed by the remote. Invariants:
//   - at most one AnswerSubmission per (lesson, question, user)
//   - at most one PointsLedgerEntry per (user, lesson, source, related)
//   - records are never deleted by normal operation
package learning

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

// SyncState tracks a record's position in the local-to-remote lifecycle.
type SyncState string

const (
	// SyncStatePending - recorded locally, not yet delivered.
	SyncStatePending SyncState = "pending"

	// SyncStateSyncing - claimed by a coordinator run, delivery in flight.
	SyncStateSyncing SyncState = "syncing"

	// SyncStateSynced - acknowledged by the remote (applied or duplicate).
	SyncStateSynced SyncState = "synced"

	// SyncStateFailed - permanently rejected, parked for review.
	SyncStateFailed SyncState = "failed"
)

// Valid reports whether the state is one of the known states.
func (s SyncState) Valid() bool {
	switch s {
	case SyncStatePending, SyncStateSyncing, SyncStateSynced, SyncStateFailed:
		return true
	}
	return false
}

// TimeoutSelectedIndex is the sentinel "no answer" used when a question
// timer expires. It is never a valid option index.
const TimeoutSelectedIndex = -1

// AnswerSubmission is the durable record of a single answered (or timed
// out) question. It is the unit of sync: created atomically with its
// ledger entries the instant the answer occurs.
type AnswerSubmission struct {
	ID             string
	LessonID       string
	QuestionID     string
	UserID         string
	SelectedIndex  int
	IsCorrect      bool
	TimeTakenMs    int64
	PointsEarned   int
	CreatedAt      time.Time
	SyncState      SyncState
	SyncAttempts   int
	IdempotencyKey string
}

// NewAnswerSubmission creates a pending submission for the given answer.
// The idempotency key is derived from the immutable business fields, so
// the same answer always produces the same key.
func NewAnswerSubmission(userID, lessonID, questionID string, selectedIndex int, isCorrect bool, timeTakenMs int64, pointsEarned int, at time.Time) (*AnswerSubmission, error) {
	if userID == "" || lessonID == "" || questionID == "" {
		return nil, shared.NewDomainError("learning", "NewSubmission", shared.ErrEmptyValue, "user, lesson and question IDs are required")
	}
	if selectedIndex < TimeoutSelectedIndex {
		return nil, shared.ErrInvalidAnswerIndex
	}
	if timeTakenMs < 0 {
		return nil, shared.NewDomainError("learning", "NewSubmission", shared.ErrNegativeValue, "time taken cannot be negative")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	return &AnswerSubmission{
		ID:             uuid.NewString(),
		LessonID:       lessonID,
		QuestionID:     questionID,
		UserID:         userID,
		SelectedIndex:  selectedIndex,
		IsCorrect:      isCorrect,
		TimeTakenMs:    timeTakenMs,
		PointsEarned:   pointsEarned,
		CreatedAt:      at,
		SyncState:      SyncStatePending,
		IdempotencyKey: SubmissionIdempotencyKey(userID, lessonID, questionID),
	}, nil
}

// BusinessKey returns the composite key that the Submission Guard locks
// on and the store enforces uniqueness over.
func (s *AnswerSubmission) BusinessKey() string {
	return SubmissionBusinessKey(s.UserID, s.LessonID, s.QuestionID)
}

// IsTimeout reports whether this submission was synthesized by timer expiry.
func (s *AnswerSubmission) IsTimeout() bool {
	return s.SelectedIndex == TimeoutSelectedIndex
}

// SubmissionBusinessKey builds the composite business key for an answer.
func SubmissionBusinessKey(userID, lessonID, questionID string) string {
	return strings.Join([]string{"answer", userID, lessonID, questionID}, ":")
}

// SubmissionIdempotencyKey derives the deterministic remote idempotency
// key for an answer. Repeated delivery under the same key is a safe no-op
// on the remote side.
func SubmissionIdempotencyKey(userID, lessonID, questionID string) string {
	return digest("answer", userID, lessonID, questionID)
}

// digest hashes the immutable business fields into a stable hex key.
func digest(parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}
