// Package postgres implements the durable store for PoraKhela.
package postgres

import (
	"context"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWork implements learning.UnitOfWork over a pgx transaction. The
// submit path relies on it to commit a submission, its ledger entries,
// the progress merge and the outbox items as one atomic unit.
type UnitOfWork struct {
	conn *Connection
}

// NewUnitOfWork creates a new UnitOfWork.
func NewUnitOfWork(conn *Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

// Execute runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (u *UnitOfWork) Execute(ctx context.Context, fn func(tx learning.TxContext) error) error {
	return u.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(&txContext{tx: tx})
	})
}

// txContext binds the repositories to one open transaction.
type txContext struct {
	tx pgx.Tx
}

func (t *txContext) Submissions() learning.SubmissionRepository {
	return NewSubmissionRepository(t.tx)
}

func (t *txContext) Ledger() learning.LedgerRepository {
	return NewLedgerRepository(t.tx)
}

func (t *txContext) Progress() learning.ProgressRepository {
	return NewProgressRepository(t.tx)
}

func (t *txContext) Queue() learning.QueueRepository {
	return NewQueueRepository(t.tx)
}
