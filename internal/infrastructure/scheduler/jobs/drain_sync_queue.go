// Package jobs contains implementations of scheduled jobs for PoraKhela.
// The jobs keep the sync engine converging: the queue drains toward the
// remote and stale timer sessions resolve to timeout submissions.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	syncinfra "github.com/sadmanHT/PoraKhela-sub000/internal/infrastructure/sync"
)

// ══════════════════════════════════════════════════════════════════════════════
// DRAIN SYNC QUEUE JOB
// ══════════════════════════════════════════════════════════════════════════════

// DrainSyncQueueJob runs one coordinator drain per schedule tick. The
// coordinator also drains on connectivity restoration; this job is the
// safety net that guarantees progress even when no edge fires.
type DrainSyncQueueJob struct {
	coordinator *syncinfra.Coordinator
	logger      *slog.Logger

	lastStats atomic.Value // *syncinfra.Stats
}

// NewDrainSyncQueueJob creates a new DrainSyncQueueJob.
func NewDrainSyncQueueJob(coordinator *syncinfra.Coordinator, logger *slog.Logger) *DrainSyncQueueJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DrainSyncQueueJob{
		coordinator: coordinator,
		logger:      logger,
	}
}

// Name implements scheduler.Job.
func (j *DrainSyncQueueJob) Name() string {
	return "drain_sync_queue"
}

// Description implements scheduler.Job.
func (j *DrainSyncQueueJob) Description() string {
	return "Delivers pending outbox items to the remote progress API"
}

// Run implements scheduler.Job.
func (j *DrainSyncQueueJob) Run(ctx context.Context) error {
	stats, err := j.coordinator.Run(ctx)
	if err != nil {
		return fmt.Errorf("drain sync queue: %w", err)
	}

	j.lastStats.Store(&stats)
	return nil
}

// LastStats returns the stats of the most recent run, or nil.
func (j *DrainSyncQueueJob) LastStats() *syncinfra.Stats {
	v := j.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*syncinfra.Stats)
}

// DefaultDrainInterval is the fallback drain cadence when the config
// does not override it.
const DefaultDrainInterval = 30 * time.Second
