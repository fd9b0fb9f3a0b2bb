package learning

import (
	"context"
	"time"
)

// SubmissionRepository persists answer submissions.
//
// Insert must enforce the (lesson, question, user) uniqueness constraint
// and return an error matching shared.ErrAlreadyExists on violation,
// regardless of payload differences. That constraint is the ultimate
// backstop of the Submission Guard across process restarts.
type SubmissionRepository interface {
	Insert(ctx context.Context, sub *AnswerSubmission) error

	GetByBusinessKey(ctx context.Context, userID, lessonID, questionID string) (*AnswerSubmission, error)

	// RecentByUser returns the user's most recent submissions, newest
	// first. Used for consecutive-correct streak evaluation.
	RecentByUser(ctx context.Context, userID string, limit int) ([]*AnswerSubmission, error)

	// SetSyncState transitions the record's sync state.
	SetSyncState(ctx context.Context, id string, state SyncState, attempts int) error
}

// LedgerRepository persists points awards.
//
// Insert enforces the (user, lesson, source, related) uniqueness
// constraint with the same ErrAlreadyExists contract as submissions.
type LedgerRepository interface {
	Insert(ctx context.Context, entry *PointsLedgerEntry) error

	// SumInRange totals awarded points for a user in [from, to).
	// Local entries count regardless of sync state.
	SumInRange(ctx context.Context, userID string, from, to time.Time) (int, error)

	// ListByUser returns the user's awards newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*PointsLedgerEntry, error)

	SetSyncState(ctx context.Context, id string, state SyncState) error
}

// ProgressRepository persists per-(lesson, user) aggregates.
type ProgressRepository interface {
	// Get returns the record or an error matching shared.ErrNotFound.
	Get(ctx context.Context, userID, lessonID string) (*ProgressRecord, error)

	// Upsert writes the merged record.
	Upsert(ctx context.Context, rec *ProgressRecord) error

	// CountCompletedInRange counts lessons the user completed in [from, to).
	CountCompletedInRange(ctx context.Context, userID string, from, to time.Time) (int, error)
}

// QueueRepository persists the sync outbox.
type QueueRepository interface {
	Enqueue(ctx context.Context, item *SyncQueueItem) error

	// FetchDue returns pending items with NextAttemptAt <= now, ordered
	// oldest-first by CreatedAt. An item whose (user, lesson) group has
	// an older sibling that is in flight or deferred past now is held
	// back, so nothing newer can overtake work that is not yet due.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*SyncQueueItem, error)

	// Claim conditionally flips an item Pending -> Syncing and stamps
	// ClaimedAt. It returns false when another coordinator run already
	// owns or finished the item; claiming is the per-item serialization
	// point.
	Claim(ctx context.Context, id string) (bool, error)

	// ReleaseStale returns Syncing items claimed before cutoff to
	// Pending. A run that died between Claim and the outcome write
	// leaves its items Syncing forever; this sweep makes them drainable
	// again. Returns how many items were released.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int, error)

	// MarkSynced records remote acknowledgment: the queue item and the
	// record it references both become Synced, atomically.
	MarkSynced(ctx context.Context, item *SyncQueueItem, attempts int) error

	// Reschedule returns a claimed item to Pending with backoff state.
	Reschedule(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error

	// Park marks the item and its referenced record Failed after a
	// permanent rejection. Parked items are excluded from FetchDue.
	Park(ctx context.Context, item *SyncQueueItem, attempts int, lastError string) error

	// Requeue returns a parked item to Pending after out-of-band review.
	// Returns an error matching shared.ErrInvalidState when the item is
	// not parked.
	Requeue(ctx context.Context, id string) error

	// ListParked returns parked items for the review surface.
	ListParked(ctx context.Context, limit int) ([]*SyncQueueItem, error)

	Stats(ctx context.Context) (QueueStats, error)
}

// QuestionRepository reads stored question and lesson metadata.
type QuestionRepository interface {
	GetQuestion(ctx context.Context, id string) (*Question, error)
	GetLesson(ctx context.Context, id string) (*Lesson, error)
}

// TxContext exposes the repositories bound to one open transaction.
// Everything written through it commits or rolls back as a unit.
type TxContext interface {
	Submissions() SubmissionRepository
	Ledger() LedgerRepository
	Progress() ProgressRepository
	Queue() QueueRepository
}

// UnitOfWork runs a function inside a single storage transaction. A crash
// at any point leaves either all of the function's writes or none.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(tx TxContext) error) error
}
