// Package sync implements the coordinator that drains the outbox queue
// to the remote progress API.
//
// Delivery is at-least-once; the remote's idempotency keys turn that
// into effectively-once. The coordinator never deletes work: an item
// leaves the queue only as Synced or Failed (parked for review).
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
	"github.com/sadmanHT/PoraKhela-sub000/internal/infrastructure/external/remote"
	"github.com/sadmanHT/PoraKhela-sub000/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds coordinator tuning parameters.
type Config struct {
	// BatchSize caps how many due items one run fetches.
	BatchSize int

	// BaseBackoff is the delay after the first transient failure.
	BaseBackoff time.Duration

	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration

	// JitterFactor randomizes backoff so many devices coming online
	// together do not retry in lockstep.
	JitterFactor float64

	// Interval is the periodic drain cadence for Start.
	Interval time.Duration

	// MaxRunDuration is the wall-clock budget for one drain run. Items
	// not reached within the budget stay Pending for the next run.
	MaxRunDuration time.Duration

	// ClaimLease bounds how long a claim may be held. Items left Syncing
	// longer than this by a run that died are released back to Pending
	// at the start of the next run.
	ClaimLease time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:      50,
		BaseBackoff:    2 * time.Second,
		MaxBackoff:     5 * time.Minute,
		JitterFactor:   0.2,
		Interval:       30 * time.Second,
		MaxRunDuration: 20 * time.Second,
		ClaimLease:     5 * time.Minute,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COORDINATOR
// ══════════════════════════════════════════════════════════════════════════════

// RemoteClient delivers one queue item to the progress API.
type RemoteClient interface {
	SendEvent(ctx context.Context, item *learning.SyncQueueItem) (remote.Outcome, error)
}

// Stats summarizes one drain run.
type Stats struct {
	Fetched    int           `json:"fetched"`
	Synced     int           `json:"synced"`
	Duplicates int           `json:"duplicates"`
	Deferred   int           `json:"deferred"`
	Parked     int           `json:"parked"`
	Skipped    int           `json:"skipped"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Coordinator drains the sync queue.
type Coordinator struct {
	queue     learning.QueueRepository
	client    RemoteClient
	publisher shared.EventPublisher
	logger    *slog.Logger
	config    Config

	retrier *retry.Retrier
	kick    chan struct{}
	running atomic.Bool
}

// NewCoordinator creates a new Coordinator.
func NewCoordinator(queue learning.QueueRepository, client RemoteClient, publisher shared.EventPublisher, logger *slog.Logger, config Config) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if config.BatchSize <= 0 {
		config = DefaultConfig()
	}
	if config.MaxRunDuration <= 0 {
		config.MaxRunDuration = DefaultConfig().MaxRunDuration
	}
	if config.ClaimLease <= 0 {
		config.ClaimLease = DefaultConfig().ClaimLease
	}

	return &Coordinator{
		queue:     queue,
		client:    client,
		publisher: publisher,
		logger:    logger,
		config:    config,
		retrier:   retry.RemoteSyncRetrier(),
		kick:      make(chan struct{}, 1),
	}
}

// Kick requests an immediate drain run. Safe to call from any goroutine;
// a kick during a running drain coalesces into one follow-up run.
func (c *Coordinator) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Start drains periodically and on every Kick until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	c.logger.Info("sync coordinator started",
		slog.Duration("interval", c.config.Interval),
		slog.Int("batch_size", c.config.BatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("sync coordinator stopped")
			return
		case <-ticker.C:
		case <-c.kick:
		}

		if _, err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("drain run failed", slog.String("error", err.Error()))
		}
	}
}

// Run performs one drain: fetch due items oldest-first, claim each, send
// it, and record the outcome. At most one run is active per coordinator;
// overlapping calls return immediately.
//
// A transient failure defers the item with exponential backoff and
// blocks the rest of its (user, lesson) group for this run, keeping
// causal order: nothing newer reaches the remote before everything
// older from the same learner and lesson has been acknowledged.
//
// Each run is bounded by MaxRunDuration; items not reached within the
// budget stay Pending and are picked up by the next run.
func (c *Coordinator) Run(ctx context.Context) (Stats, error) {
	if !c.running.CompareAndSwap(false, true) {
		return Stats{}, nil
	}
	defer c.running.Store(false)

	started := time.Now()
	deadline := started.Add(c.config.MaxRunDuration)
	var stats Stats

	// Claims held past the lease belong to a run that died mid-flight.
	released, err := c.queue.ReleaseStale(ctx, time.Now().UTC().Add(-c.config.ClaimLease))
	if err != nil {
		return stats, fmt.Errorf("release stale claims: %w", err)
	}
	if released > 0 {
		c.logger.Warn("released stale sync claims",
			slog.Int("count", released),
			slog.Duration("lease", c.config.ClaimLease),
		)
	}

	items, err := c.queue.FetchDue(ctx, time.Now().UTC(), c.config.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("fetch due items: %w", err)
	}
	stats.Fetched = len(items)

	blocked := make(map[string]bool)

	for _, item := range items {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if time.Now().After(deadline) {
			c.logger.Warn("drain run budget exhausted",
				slog.Duration("budget", c.config.MaxRunDuration),
				slog.Int("remaining", stats.Fetched-stats.Synced-stats.Duplicates-stats.Deferred-stats.Parked-stats.Skipped),
			)
			break
		}
		if blocked[item.GroupKey()] {
			stats.Skipped++
			continue
		}

		claimed, err := c.queue.Claim(ctx, item.ID)
		if err != nil {
			return stats, fmt.Errorf("claim item %s: %w", item.ID, err)
		}
		if !claimed {
			// Another run owns it; its group state is unknown to us,
			// so skip the rest of the group too.
			blocked[item.GroupKey()] = true
			stats.Skipped++
			continue
		}

		if err := c.deliver(ctx, item, blocked, &stats); err != nil {
			return stats, err
		}
	}

	stats.Elapsed = time.Since(started)
	c.logger.Info("drain run completed",
		slog.Int("fetched", stats.Fetched),
		slog.Int("synced", stats.Synced),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("deferred", stats.Deferred),
		slog.Int("parked", stats.Parked),
		slog.Int("skipped", stats.Skipped),
		slog.Duration("elapsed", stats.Elapsed),
	)

	_ = c.publisher.Publish(shared.NewRunCompletedEvent(
		uuid.NewString(), stats.Fetched, stats.Synced+stats.Duplicates,
		stats.Deferred, stats.Parked, stats.Elapsed,
	))

	return stats, nil
}

// deliver sends one claimed item and records the outcome. Only storage
// errors propagate; remote outcomes are absorbed into stats.
func (c *Coordinator) deliver(ctx context.Context, item *learning.SyncQueueItem, blocked map[string]bool, stats *Stats) error {
	attempts := item.RetryCount + 1

	outcome, sendErr := remoteSend(ctx, c.retrier, c.client, item)

	switch {
	case sendErr == nil && outcome == remote.OutcomeRejected:
		reason := fmt.Sprintf("remote rejected %s payload", item.Kind)
		if err := c.queue.Park(ctx, item, attempts, reason); err != nil {
			return fmt.Errorf("park item %s: %w", item.ID, err)
		}
		stats.Parked++
		c.logger.Warn("queue item parked",
			slog.String("item_id", item.ID),
			slog.String("kind", string(item.Kind)),
			slog.Int("attempts", attempts),
		)
		_ = c.publisher.Publish(shared.NewItemParkedEvent(item.ID, reason, attempts))
		return nil

	case sendErr == nil:
		if err := c.queue.MarkSynced(ctx, item, attempts); err != nil {
			return fmt.Errorf("mark item %s synced: %w", item.ID, err)
		}
		duplicate := outcome == remote.OutcomeDuplicate
		if duplicate {
			stats.Duplicates++
		} else {
			stats.Synced++
		}
		_ = c.publisher.Publish(shared.NewItemSyncedEvent(item.ID, item.IdempotencyKey, duplicate, attempts))
		return nil

	default:
		delay := retry.Backoff(c.config.BaseBackoff, c.config.MaxBackoff, item.RetryCount, c.config.JitterFactor)
		next := time.Now().UTC().Add(delay)
		if err := c.queue.Reschedule(ctx, item.ID, attempts, next, sendErr.Error()); err != nil {
			return fmt.Errorf("reschedule item %s: %w", item.ID, err)
		}
		blocked[item.GroupKey()] = true
		stats.Deferred++
		c.logger.Warn("queue item deferred",
			slog.String("item_id", item.ID),
			slog.Int("attempts", attempts),
			slog.Duration("backoff", delay),
			slog.String("error", sendErr.Error()),
		)
		return nil
	}
}

// remoteSend performs the send with short in-run retries for transient
// failures. Permanent rejections come back as an outcome, never an
// error, so they are not retried.
func remoteSend(ctx context.Context, retrier *retry.Retrier, client RemoteClient, item *learning.SyncQueueItem) (remote.Outcome, error) {
	var outcome remote.Outcome

	err := retrier.Do(ctx, func(ctx context.Context) error {
		var sendErr error
		outcome, sendErr = client.SendEvent(ctx, item)
		if sendErr != nil {
			return retry.Retryable(sendErr)
		}
		return nil
	})

	return outcome, err
}
