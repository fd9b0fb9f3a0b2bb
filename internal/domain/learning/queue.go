package learning

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

// QueueItemKind identifies what a queue item references.
type QueueItemKind string

const (
	// QueueKindSubmission - the item delivers an AnswerSubmission.
	QueueKindSubmission QueueItemKind = "submission"

	// QueueKindLedger - the item delivers a PointsLedgerEntry.
	QueueKindLedger QueueItemKind = "ledger"
)

// SyncQueueItem is the outbox record for one remote effect. It is written
// in the same transaction as the record it references, so the intent to
// sync survives any crash. RetryCount and NextAttemptAt drive cross-run
// backoff; LastError is diagnostics only.
type SyncQueueItem struct {
	ID             string
	Kind           QueueItemKind
	RefID          string // ID of the referenced submission or ledger entry
	UserID         string
	LessonID       string
	IdempotencyKey string
	Payload        json.RawMessage
	State          SyncState
	RetryCount     int
	NextAttemptAt  time.Time
	ClaimedAt      *time.Time // set while Syncing, cleared on every exit transition
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SubmissionPayload is the wire form of an answer submission.
type SubmissionPayload struct {
	SubmissionID  string    `json:"submission_id"`
	UserID        string    `json:"user_id"`
	LessonID      string    `json:"lesson_id"`
	QuestionID    string    `json:"question_id"`
	SelectedIndex int       `json:"selected_index"`
	IsCorrect     bool      `json:"is_correct"`
	TimeTakenMs   int64     `json:"time_taken_ms"`
	PointsEarned  int       `json:"points_earned"`
	AnsweredAt    time.Time `json:"answered_at"`
}

// LedgerPayload is the wire form of a points award.
type LedgerPayload struct {
	EntryID   string    `json:"entry_id"`
	UserID    string    `json:"user_id"`
	LessonID  string    `json:"lesson_id"`
	Source    string    `json:"source"`
	Amount    int       `json:"amount"`
	RelatedID string    `json:"related_id"`
	AwardedAt time.Time `json:"awarded_at"`
}

// NewQueueItemForSubmission builds the outbox item for a submission.
func NewQueueItemForSubmission(sub *AnswerSubmission) (*SyncQueueItem, error) {
	payload, err := json.Marshal(SubmissionPayload{
		SubmissionID:  sub.ID,
		UserID:        sub.UserID,
		LessonID:      sub.LessonID,
		QuestionID:    sub.QuestionID,
		SelectedIndex: sub.SelectedIndex,
		IsCorrect:     sub.IsCorrect,
		TimeTakenMs:   sub.TimeTakenMs,
		PointsEarned:  sub.PointsEarned,
		AnsweredAt:    sub.CreatedAt,
	})
	if err != nil {
		return nil, shared.WrapError("sync", "Enqueue", shared.ErrInvalidEntity, "failed to encode submission payload", err)
	}

	return &SyncQueueItem{
		ID:             uuid.NewString(),
		Kind:           QueueKindSubmission,
		RefID:          sub.ID,
		UserID:         sub.UserID,
		LessonID:       sub.LessonID,
		IdempotencyKey: sub.IdempotencyKey,
		Payload:        payload,
		State:          SyncStatePending,
		NextAttemptAt:  sub.CreatedAt,
		CreatedAt:      sub.CreatedAt,
		UpdatedAt:      sub.CreatedAt,
	}, nil
}

// NewQueueItemForLedger builds the outbox item for a ledger entry.
func NewQueueItemForLedger(entry *PointsLedgerEntry) (*SyncQueueItem, error) {
	payload, err := json.Marshal(LedgerPayload{
		EntryID:   entry.ID,
		UserID:    entry.UserID,
		LessonID:  entry.LessonID,
		Source:    string(entry.Source),
		Amount:    entry.Amount,
		RelatedID: entry.RelatedID,
		AwardedAt: entry.CreatedAt,
	})
	if err != nil {
		return nil, shared.WrapError("sync", "Enqueue", shared.ErrInvalidEntity, "failed to encode ledger payload", err)
	}

	return &SyncQueueItem{
		ID:             uuid.NewString(),
		Kind:           QueueKindLedger,
		RefID:          entry.ID,
		UserID:         entry.UserID,
		LessonID:       entry.LessonID,
		IdempotencyKey: entry.IdempotencyKey,
		Payload:        payload,
		State:          SyncStatePending,
		NextAttemptAt:  entry.CreatedAt,
		CreatedAt:      entry.CreatedAt,
		UpdatedAt:      entry.CreatedAt,
	}, nil
}

// GroupKey identifies the causal ordering group of the item. Items within
// the same (user, lesson) must reach the remote oldest-first.
func (i *SyncQueueItem) GroupKey() string {
	return i.UserID + "/" + i.LessonID
}

// QueueStats summarizes queue health for diagnostics.
type QueueStats struct {
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}
