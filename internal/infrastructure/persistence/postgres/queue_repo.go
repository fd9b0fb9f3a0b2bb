// Package postgres implements the durable store for PoraKhela.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC QUEUE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// QueueRepository implements learning.QueueRepository.
//
// State transitions that touch both the queue item and the record it
// references run as single data-modifying CTE statements, so the pair
// can never be observed half-updated.
type QueueRepository struct {
	q Querier
}

// NewQueueRepository creates a repository bound to a pool or an open
// transaction.
func NewQueueRepository(q Querier) *QueueRepository {
	return &QueueRepository{q: q}
}

const queueColumns = `
	id, kind, ref_id, user_id, lesson_id, idempotency_key, payload,
	state, retry_count, next_attempt_at, claimed_at, last_error, created_at, updated_at`

// Enqueue stores a new outbox item.
func (r *QueueRepository) Enqueue(ctx context.Context, item *learning.SyncQueueItem) error {
	query := `
		INSERT INTO sync_queue (
			id, kind, ref_id, user_id, lesson_id, idempotency_key, payload,
			state, retry_count, next_attempt_at, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.q.Exec(ctx, query,
		item.ID,
		string(item.Kind),
		item.RefID,
		item.UserID,
		item.LessonID,
		item.IdempotencyKey,
		[]byte(item.Payload),
		string(item.State),
		item.RetryCount,
		item.NextAttemptAt,
		item.LastError,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("sync", "Enqueue", shared.ErrAlreadyExists, "queue item already exists for this idempotency key")
		}
		return fmt.Errorf("failed to enqueue sync item: %w", err)
	}

	return nil
}

// FetchDue returns pending items whose next attempt is due, oldest first.
// Insertion order doubles as causal order within a (user, lesson) group,
// so an item is held back while an older sibling from its group is still
// in flight or deferred past now. An older sibling that is itself due
// sorts earlier and drains first within the same batch.
func (r *QueueRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]*learning.SyncQueueItem, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM sync_queue sq
		WHERE sq.state = 'pending' AND sq.next_attempt_at <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM sync_queue older
			WHERE older.user_id = sq.user_id
			  AND older.lesson_id = sq.lesson_id
			  AND older.created_at < sq.created_at
			  AND (older.state = 'syncing'
			       OR (older.state = 'pending' AND older.next_attempt_at > $1))
		  )
		ORDER BY sq.created_at ASC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due sync items: %w", err)
	}
	defer rows.Close()

	var items []*learning.SyncQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// Claim flips the item Pending -> Syncing. The conditional WHERE makes
// the claim the serialization point between concurrent drain runs: only
// one caller sees RowsAffected = 1. ClaimedAt bounds how long the claim
// can be held before ReleaseStale takes it back.
func (r *QueueRepository) Claim(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE sync_queue
		SET state = 'syncing', claimed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state = 'pending'
	`

	tag, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim sync item: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ReleaseStale returns Syncing items claimed before cutoff to Pending.
// Such items were claimed by a run that died before writing an outcome;
// without the sweep they would never be fetched again.
func (r *QueueRepository) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE sync_queue
		SET state = 'pending', claimed_at = NULL, updated_at = NOW()
		WHERE state = 'syncing' AND claimed_at IS NOT NULL AND claimed_at < $1
	`

	tag, err := r.q.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale sync items: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// MarkSynced records remote acknowledgment. The queue item and the record
// it references flip to Synced in one statement.
func (r *QueueRepository) MarkSynced(ctx context.Context, item *learning.SyncQueueItem, attempts int) error {
	query := fmt.Sprintf(`
		WITH done AS (
			UPDATE sync_queue
			SET state = 'synced', retry_count = $2, claimed_at = NULL, last_error = '', updated_at = NOW()
			WHERE id = $1 AND state = 'syncing'
			RETURNING ref_id
		)
		UPDATE %s rec
		SET sync_state = 'synced', sync_attempts = $2
		FROM done
		WHERE rec.id = done.ref_id
	`, recordTable(item.Kind))

	tag, err := r.q.Exec(ctx, query, item.ID, attempts)
	if err != nil {
		return fmt.Errorf("failed to mark sync item synced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrItemNotClaimable
	}

	return nil
}

// Reschedule returns a claimed item to Pending with its backoff state so
// the delay survives restarts.
func (r *QueueRepository) Reschedule(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	query := `
		UPDATE sync_queue
		SET state = 'pending', retry_count = $2, next_attempt_at = $3,
			claimed_at = NULL, last_error = $4, updated_at = NOW()
		WHERE id = $1 AND state = 'syncing'
	`

	tag, err := r.q.Exec(ctx, query, id, attempts, nextAttemptAt, truncateError(lastError))
	if err != nil {
		return fmt.Errorf("failed to reschedule sync item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrItemNotClaimable
	}

	return nil
}

// Park marks the item and its referenced record Failed after a permanent
// rejection. Parked items stay out of FetchDue until Requeue.
func (r *QueueRepository) Park(ctx context.Context, item *learning.SyncQueueItem, attempts int, lastError string) error {
	query := fmt.Sprintf(`
		WITH parked AS (
			UPDATE sync_queue
			SET state = 'failed', retry_count = $2, claimed_at = NULL, last_error = $3, updated_at = NOW()
			WHERE id = $1 AND state = 'syncing'
			RETURNING ref_id
		)
		UPDATE %s rec
		SET sync_state = 'failed', sync_attempts = $2
		FROM parked
		WHERE rec.id = parked.ref_id
	`, recordTable(item.Kind))

	tag, err := r.q.Exec(ctx, query, item.ID, attempts, truncateError(lastError))
	if err != nil {
		return fmt.Errorf("failed to park sync item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrItemNotClaimable
	}

	return nil
}

// Requeue returns a parked item to Pending after out-of-band review. The
// referenced record flips back to Pending as well.
func (r *QueueRepository) Requeue(ctx context.Context, id string) error {
	var kind, state string
	err := r.q.QueryRow(ctx, `SELECT kind, state FROM sync_queue WHERE id = $1`, id).Scan(&kind, &state)
	if err != nil {
		if IsNoRows(err) {
			return shared.ErrQueueItemNotFound
		}
		return fmt.Errorf("failed to load sync item: %w", err)
	}
	if state != string(learning.SyncStateFailed) {
		return shared.ErrItemNotParked
	}

	query := fmt.Sprintf(`
		WITH revived AS (
			UPDATE sync_queue
			SET state = 'pending', retry_count = 0, next_attempt_at = NOW(),
				last_error = '', updated_at = NOW()
			WHERE id = $1 AND state = 'failed'
			RETURNING ref_id
		)
		UPDATE %s rec
		SET sync_state = 'pending', sync_attempts = 0
		FROM revived
		WHERE rec.id = revived.ref_id
	`, recordTable(learning.QueueItemKind(kind)))

	tag, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to requeue sync item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrItemNotParked
	}

	return nil
}

// ListParked returns parked items for the review surface, oldest first.
func (r *QueueRepository) ListParked(ctx context.Context, limit int) ([]*learning.SyncQueueItem, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM sync_queue
		WHERE state = 'failed'
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query parked items: %w", err)
	}
	defer rows.Close()

	var items []*learning.SyncQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// Stats summarizes queue state counts.
func (r *QueueRepository) Stats(ctx context.Context) (learning.QueueStats, error) {
	query := `SELECT state, COUNT(*) FROM sync_queue GROUP BY state`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return learning.QueueStats{}, fmt.Errorf("failed to query queue stats: %w", err)
	}
	defer rows.Close()

	var stats learning.QueueStats
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return learning.QueueStats{}, fmt.Errorf("failed to scan queue stats: %w", err)
		}

		switch learning.SyncState(state) {
		case learning.SyncStatePending:
			stats.Pending = count
		case learning.SyncStateSyncing:
			stats.Syncing = count
		case learning.SyncStateSynced:
			stats.Synced = count
		case learning.SyncStateFailed:
			stats.Failed = count
		}
	}

	return stats, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func recordTable(kind learning.QueueItemKind) string {
	if kind == learning.QueueKindLedger {
		return "points_ledger"
	}
	return "answer_submissions"
}

// truncateError keeps LastError usable as a diagnostic without letting a
// verbose client error bloat the row.
func truncateError(msg string) string {
	const maxLen = 500
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}

func scanQueueItem(row pgx.Row) (*learning.SyncQueueItem, error) {
	var item learning.SyncQueueItem
	var kind, state string
	var payload []byte

	err := row.Scan(
		&item.ID,
		&kind,
		&item.RefID,
		&item.UserID,
		&item.LessonID,
		&item.IdempotencyKey,
		&payload,
		&state,
		&item.RetryCount,
		&item.NextAttemptAt,
		&item.ClaimedAt,
		&item.LastError,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrQueueItemNotFound
		}
		return nil, fmt.Errorf("failed to scan queue item: %w", err)
	}

	item.Kind = learning.QueueItemKind(kind)
	item.State = learning.SyncState(state)
	item.Payload = payload
	return &item, nil
}
