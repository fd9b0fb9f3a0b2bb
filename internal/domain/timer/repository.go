package timer

import (
	"context"
)

// Repository persists the restart-surviving fields of active sessions.
// A session is saved on Start and on every Pause/Resume so the persisted
// snapshot is always current enough to rehydrate from.
type Repository interface {
	// Save writes the snapshot for the session.
	Save(ctx context.Context, snap Snapshot) error

	// GetActive returns the persisted snapshot for a user's active
	// session, or an error matching shared.ErrNotFound.
	GetActive(ctx context.Context, userID string) (Snapshot, error)

	// ListActive returns every persisted active session. Used by the
	// recovery sweep after a restart.
	ListActive(ctx context.Context, limit int) ([]Snapshot, error)

	// Clear removes the persisted snapshot after the session ends.
	Clear(ctx context.Context, sessionID string) error
}
