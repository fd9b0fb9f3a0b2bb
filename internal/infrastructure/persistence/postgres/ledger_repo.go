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
// LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements learning.LedgerRepository.
type LedgerRepository struct {
	q Querier
}

// NewLedgerRepository creates a repository bound to a pool or an open
// transaction.
func NewLedgerRepository(q Querier) *LedgerRepository {
	return &LedgerRepository{q: q}
}

const ledgerColumns = `
	id, user_id, lesson_id, source, related_id, points, created_at,
	sync_state, idempotency_key`

// Insert stores a new award. A unique violation on the award key maps to
// shared.ErrDuplicateLedger.
func (r *LedgerRepository) Insert(ctx context.Context, entry *learning.PointsLedgerEntry) error {
	query := `
		INSERT INTO points_ledger (
			id, user_id, lesson_id, source, related_id, points, created_at,
			sync_state, idempotency_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.LessonID,
		string(entry.Source),
		entry.RelatedID,
		entry.Amount,
		entry.CreatedAt,
		string(entry.SyncState),
		entry.IdempotencyKey,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateLedger
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return nil
}

// SumInRange totals awarded points for a user in [from, to). Unsynced
// entries count the same as synced ones.
func (r *LedgerRepository) SumInRange(ctx context.Context, userID string, from, to time.Time) (int, error) {
	query := `
		SELECT COALESCE(SUM(points), 0)
		FROM points_ledger
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
	`

	var total int
	if err := r.q.QueryRow(ctx, query, userID, from, to).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum ledger points: %w", err)
	}

	return total, nil
}

// ListByUser returns the user's awards newest first.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*learning.PointsLedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM points_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*learning.PointsLedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// SetSyncState transitions the entry's sync state.
func (r *LedgerRepository) SetSyncState(ctx context.Context, id string, state learning.SyncState) error {
	query := `
		UPDATE points_ledger
		SET sync_state = $1
		WHERE id = $2
	`

	tag, err := r.q.Exec(ctx, query, string(state), id)
	if err != nil {
		return fmt.Errorf("failed to update ledger sync state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("learning", "SetSyncState", shared.ErrNotFound, "ledger entry not found")
	}

	return nil
}

func scanLedgerEntry(row pgx.Row) (*learning.PointsLedgerEntry, error) {
	var entry learning.PointsLedgerEntry
	var source, syncState string

	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.LessonID,
		&source,
		&entry.RelatedID,
		&entry.Amount,
		&entry.CreatedAt,
		&syncState,
		&entry.IdempotencyKey,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("learning", "GetLedgerEntry", shared.ErrNotFound, "ledger entry not found")
		}
		return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	entry.Source = learning.LedgerSource(source)
	entry.SyncState = learning.SyncState(syncState)
	return &entry, nil
}
