package sync

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
	"github.com/sadmanHT/PoraKhela-sub000/internal/infrastructure/external/remote"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

// fakeQueue is an in-memory QueueRepository with the same state machine
// the database enforces.
type fakeQueue struct {
	mu    sync.Mutex
	items []*learning.SyncQueueItem
}

func (q *fakeQueue) add(item *learning.SyncQueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

func (q *fakeQueue) find(id string) *learning.SyncQueueItem {
	for _, item := range q.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (q *fakeQueue) byID(id string) *learning.SyncQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.find(id)
}

func (q *fakeQueue) Enqueue(ctx context.Context, item *learning.SyncQueueItem) error {
	q.add(item)
	return nil
}

func (q *fakeQueue) FetchDue(ctx context.Context, now time.Time, limit int) ([]*learning.SyncQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []*learning.SyncQueueItem
	for _, item := range q.items {
		if item.State == learning.SyncStatePending && !item.NextAttemptAt.After(now) && !q.heldBack(item, now) {
			copied := *item
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// heldBack mirrors the store: an item stays invisible while an older
// sibling in its (user, lesson) group is in flight or deferred past now.
func (q *fakeQueue) heldBack(item *learning.SyncQueueItem, now time.Time) bool {
	for _, other := range q.items {
		if other.UserID != item.UserID || other.LessonID != item.LessonID || !other.CreatedAt.Before(item.CreatedAt) {
			continue
		}
		if other.State == learning.SyncStateSyncing {
			return true
		}
		if other.State == learning.SyncStatePending && other.NextAttemptAt.After(now) {
			return true
		}
	}
	return false
}

func (q *fakeQueue) Claim(ctx context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item := q.find(id)
	if item == nil || item.State != learning.SyncStatePending {
		return false, nil
	}
	item.State = learning.SyncStateSyncing
	claimedAt := time.Now().UTC()
	item.ClaimedAt = &claimedAt
	return true, nil
}

func (q *fakeQueue) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	released := 0
	for _, item := range q.items {
		if item.State == learning.SyncStateSyncing && item.ClaimedAt != nil && item.ClaimedAt.Before(cutoff) {
			item.State = learning.SyncStatePending
			item.ClaimedAt = nil
			released++
		}
	}
	return released, nil
}

func (q *fakeQueue) MarkSynced(ctx context.Context, item *learning.SyncQueueItem, attempts int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored := q.find(item.ID)
	if stored == nil || stored.State != learning.SyncStateSyncing {
		return shared.ErrItemNotClaimable
	}
	stored.State = learning.SyncStateSynced
	stored.RetryCount = attempts
	stored.ClaimedAt = nil
	return nil
}

func (q *fakeQueue) Reschedule(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored := q.find(id)
	if stored == nil || stored.State != learning.SyncStateSyncing {
		return shared.ErrItemNotClaimable
	}
	stored.State = learning.SyncStatePending
	stored.RetryCount = attempts
	stored.NextAttemptAt = nextAttemptAt
	stored.LastError = lastError
	stored.ClaimedAt = nil
	return nil
}

func (q *fakeQueue) Park(ctx context.Context, item *learning.SyncQueueItem, attempts int, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored := q.find(item.ID)
	if stored == nil || stored.State != learning.SyncStateSyncing {
		return shared.ErrItemNotClaimable
	}
	stored.State = learning.SyncStateFailed
	stored.RetryCount = attempts
	stored.LastError = lastError
	stored.ClaimedAt = nil
	return nil
}

func (q *fakeQueue) Requeue(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored := q.find(id)
	if stored == nil {
		return shared.ErrQueueItemNotFound
	}
	if stored.State != learning.SyncStateFailed {
		return shared.ErrItemNotParked
	}
	stored.State = learning.SyncStatePending
	stored.RetryCount = 0
	stored.NextAttemptAt = time.Now().UTC()
	return nil
}

func (q *fakeQueue) ListParked(ctx context.Context, limit int) ([]*learning.SyncQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*learning.SyncQueueItem
	for _, item := range q.items {
		if item.State == learning.SyncStateFailed {
			out = append(out, item)
		}
	}
	return out, nil
}

func (q *fakeQueue) Stats(ctx context.Context) (learning.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s learning.QueueStats
	for _, item := range q.items {
		switch item.State {
		case learning.SyncStatePending:
			s.Pending++
		case learning.SyncStateSyncing:
			s.Syncing++
		case learning.SyncStateSynced:
			s.Synced++
		case learning.SyncStateFailed:
			s.Failed++
		}
	}
	return s, nil
}

// scriptedClient returns canned responses per item ID, in order, and
// records the delivery sequence.
type scriptedResponse struct {
	outcome remote.Outcome
	err     error
}

type scriptedClient struct {
	mu        sync.Mutex
	responses map[string][]scriptedResponse
	delivered []string
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{responses: make(map[string][]scriptedResponse)}
}

func (c *scriptedClient) script(itemID string, responses ...scriptedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[itemID] = append(c.responses[itemID], responses...)
}

func (c *scriptedClient) SendEvent(ctx context.Context, item *learning.SyncQueueItem) (remote.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered = append(c.delivered, item.ID)

	queue := c.responses[item.ID]
	if len(queue) == 0 {
		return remote.OutcomeApplied, nil
	}
	next := queue[0]
	c.responses[item.ID] = queue[1:]
	return next.outcome, next.err
}

func (c *scriptedClient) deliveries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.delivered...)
}

// ──────────────────────────────────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────────────────────────────────

func queueItem(id, userID, lessonID string, createdAt time.Time) *learning.SyncQueueItem {
	return &learning.SyncQueueItem{
		ID:             id,
		Kind:           learning.QueueKindSubmission,
		RefID:          "ref-" + id,
		UserID:         userID,
		LessonID:       lessonID,
		IdempotencyKey: "key-" + id,
		Payload:        []byte(`{}`),
		State:          learning.SyncStatePending,
		NextAttemptAt:  createdAt,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func testConfig() Config {
	return Config{
		BatchSize:      50,
		BaseBackoff:    100 * time.Millisecond,
		MaxBackoff:     time.Second,
		JitterFactor:   0,
		Interval:       time.Hour,
		MaxRunDuration: time.Minute,
		ClaimLease:     time.Hour,
	}
}

// failTwice scripts enough transient failures to exhaust both in-run
// delivery attempts, so the item comes out of the run deferred.
func failTwice(c *scriptedClient, itemID string) {
	c.script(itemID,
		scriptedResponse{err: shared.ErrRemoteUnavailable},
		scriptedResponse{err: shared.ErrRemoteUnavailable},
	)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestRun_DrainsAllDueItems(t *testing.T) {
	queue := &fakeQueue{}
	client := newScriptedClient()
	base := time.Now().UTC().Add(-time.Minute)

	queue.add(queueItem("a", "u1", "l1", base))
	queue.add(queueItem("b", "u1", "l1", base.Add(time.Second)))
	queue.add(queueItem("c", "u2", "l1", base.Add(2*time.Second)))

	coord := NewCoordinator(queue, client, nil, nil, testConfig())
	stats, err := coord.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Fetched)
	assert.Equal(t, 3, stats.Synced)
	assert.Equal(t, []string{"a", "b", "c"}, client.deliveries())

	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, learning.SyncStateSynced, queue.byID(id).State)
	}
}

func TestRun_TransientFailureBlocksGroup(t *testing.T) {
	queue := &fakeQueue{}
	client := newScriptedClient()
	base := time.Now().UTC().Add(-time.Minute)

	queue.add(queueItem("old", "u1", "l1", base))
	queue.add(queueItem("new", "u1", "l1", base.Add(time.Second)))
	queue.add(queueItem("other", "u2", "l9", base.Add(2*time.Second)))

	failTwice(client, "old")

	coord := NewCoordinator(queue, client, nil, nil, testConfig())
	stats, err := coord.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Deferred)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Synced)

	// "new" must never reach the remote before "old" is acknowledged.
	assert.NotContains(t, client.deliveries(), "new")
	assert.Contains(t, client.deliveries(), "other")

	old := queue.byID("old")
	assert.Equal(t, learning.SyncStatePending, old.State)
	assert.Equal(t, 1, old.RetryCount)
	assert.True(t, old.NextAttemptAt.After(time.Now().UTC().Add(-time.Second)))
	assert.NotEmpty(t, old.LastError)

	assert.Equal(t, learning.SyncStatePending, queue.byID("new").State)
}

func TestRun_ConvergesAfterTransientFailures(t *testing.T) {
	queue := &fakeQueue{}
	client := newScriptedClient()
	base := time.Now().UTC().Add(-time.Minute)

	queue.add(queueItem("a", "u1", "l1", base))
	failTwice(client, "a") // first run: both in-run attempts fail

	coord := NewCoordinator(queue, client, nil, nil, testConfig())

	_, err := coord.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, learning.SyncStatePending, queue.byID("a").State)

	// Wait out the persisted backoff, then drain again; the scripted
	// failures are exhausted so the item goes through.
	time.Sleep(250 * time.Millisecond)
	stats, err := coord.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, learning.SyncStateSynced, queue.byID("a").State)
}

func TestRun_PermanentRejectionParks(t *testing.T) {
	queue := &fakeQueue{}
	client := newScriptedClient()
	base := time.Now().UTC().Add(-time.Minute)

	queue.add(queueItem("bad", "u1", "l1", base))
	queue.add(queueItem("good", "u1", "l1", base.Add(time.Second)))

	client.script("bad", scriptedResponse{outcome: remote.OutcomeRejected})

	coord := NewCoordinator(queue, client, nil, nil, testConfig())
	stats, err := coord.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Parked)
	// A parked item can never succeed, so it does not block its group.
	assert.Equal(t, 1, stats.Synced)

	bad := queue.byID("bad")
	assert.Equal(t, learning.SyncStateFailed, bad.State)
	assert.NotEmpty(t, bad.LastError)
	assert.Equal(t, learning.SyncStateSynced, queue.byID("good").State)

	// Parked items are excluded from later drains.
	second, err := coord.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Fetched)
}

func TestRun_DuplicateAcknowledgmentCountsAsSynced(t *testing.T) {
	queue := &fakeQueue{}
	client := newScriptedClient()
	base := time.Now().UTC().Add(-time.Minute)

	queue.add(queueItem("a", "u1", "l1", base))
	client.script("a", scriptedResponse{outcome: remote.OutcomeDuplicate})

	coord := NewCoordinator(queue, client, nil, nil, testConfig())
	stats, err := coord.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 0, stats.Synced)
	assert.Equal(t, learning.SyncStateSynced, queue.byID("a").State)
}

func TestRun_NoResendAfterAcknowledgment(t *testing.T) {
	queue := &fakeQueue{}
	client := newScriptedClient()
	base := time.Now().UTC().Add(-time.Minute)

	queue.add(queueItem("a", "u1", "l1", base))

	coord := NewCoordinator(queue, client, nil, nil, testConfig())

	_, err := coord.Run(context.Background())
	require.NoError(t, err)
	_, err = coord.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, client.deliveries())
}

// deniedClaimQueue simulates losing the claim race for selected items.
type deniedClaimQueue struct {
	*fakeQueue
	deny map[string]bool
}

func (q *deniedClaimQueue) Claim(ctx context.Context, id string) (bool, error) {
	if q.deny[id] {
		return false, nil
	}
	return q.fakeQueue.Claim(ctx, id)
}

func TestRun_LostClaimSkipsGroup(t *testing.T) {
	queue := &deniedClaimQueue{fakeQueue: &fakeQueue{}, deny: map[string]bool{"a": true}}
	client := newScriptedClient()
	base := time.Now().UTC().Add(-time.Minute)

	queue.add(queueItem("a", "u1", "l1", base))
	queue.add(queueItem("b", "u1", "l1", base.Add(time.Second)))

	coord := NewCoordinator(queue, client, nil, nil, testConfig())
	stats, err := coord.Run(context.Background())
	require.NoError(t, err)

	// Losing the claim on "a" leaves its group state unknown, so "b"
	// is skipped as well.
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 0, stats.Synced)
	assert.Empty(t, client.deliveries())
}

func TestRun_ItemsNotYetDueAreLeftAlone(t *testing.T) {
	queue := &fakeQueue{}
	client := newScriptedClient()

	future := queueItem("later", "u1", "l1", time.Now().UTC().Add(-time.Minute))
	future.NextAttemptAt = time.Now().UTC().Add(time.Hour)
	queue.add(future)

	coord := NewCoordinator(queue, client, nil, nil, testConfig())
	stats, err := coord.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Fetched)
	assert.Empty(t, client.deliveries())
}

func TestRun_DeferredItemHidesYoungerSiblingAcrossRuns(t *testing.T) {
	queue := &fakeQueue{}
	client := newScriptedClient()
	base := time.Now().UTC().Add(-time.Minute)

	queue.add(queueItem("old", "u1", "l1", base))
	queue.add(queueItem("new", "u1", "l1", base.Add(time.Second)))

	failTwice(client, "old")

	coord := NewCoordinator(queue, client, nil, nil, testConfig())
	_, err := coord.Run(context.Background())
	require.NoError(t, err)

	// "old" is now deferred under its persisted backoff. A drain that
	// starts before the backoff elapses must not see "new" either, or
	// it would overtake its older sibling on the remote.
	second, err := coord.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Fetched)
	assert.NotContains(t, client.deliveries(), "new")

	time.Sleep(250 * time.Millisecond)
	third, err := coord.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, third.Synced)
	deliveries := client.deliveries()
	require.GreaterOrEqual(t, len(deliveries), 2)
	assert.Equal(t, []string{"old", "new"}, deliveries[len(deliveries)-2:])
	assert.Equal(t, learning.SyncStateSynced, queue.byID("old").State)
	assert.Equal(t, learning.SyncStateSynced, queue.byID("new").State)
}

func TestRun_StaleClaimIsReleasedAndDrained(t *testing.T) {
	queue := &fakeQueue{}
	client := newScriptedClient()

	orphan := queueItem("orphan", "u1", "l1", time.Now().UTC().Add(-time.Hour))
	orphan.State = learning.SyncStateSyncing
	claimedAt := time.Now().UTC().Add(-10 * time.Minute)
	orphan.ClaimedAt = &claimedAt
	queue.add(orphan)

	cfg := testConfig()
	cfg.ClaimLease = 5 * time.Minute

	coord := NewCoordinator(queue, client, nil, nil, cfg)
	stats, err := coord.Run(context.Background())
	require.NoError(t, err)

	// The dead run's claim expired, so the item goes back to Pending
	// and drains in the same pass.
	assert.Equal(t, 1, stats.Fetched)
	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, []string{"orphan"}, client.deliveries())
	assert.Equal(t, learning.SyncStateSynced, queue.byID("orphan").State)
}

func TestRun_FreshClaimIsNotReleased(t *testing.T) {
	queue := &fakeQueue{}
	client := newScriptedClient()

	held := queueItem("held", "u1", "l1", time.Now().UTC().Add(-time.Hour))
	held.State = learning.SyncStateSyncing
	claimedAt := time.Now().UTC()
	held.ClaimedAt = &claimedAt
	queue.add(held)

	coord := NewCoordinator(queue, client, nil, nil, testConfig())
	stats, err := coord.Run(context.Background())
	require.NoError(t, err)

	// Another run still holds a live claim on the item.
	assert.Equal(t, 0, stats.Fetched)
	assert.Empty(t, client.deliveries())
	assert.Equal(t, learning.SyncStateSyncing, queue.byID("held").State)
}

func TestRun_StopsWhenRunBudgetExhausted(t *testing.T) {
	queue := &fakeQueue{}
	client := newScriptedClient()
	base := time.Now().UTC().Add(-time.Minute)

	queue.add(queueItem("a", "u1", "l1", base))
	queue.add(queueItem("b", "u2", "l2", base.Add(time.Second)))

	cfg := testConfig()
	cfg.MaxRunDuration = time.Nanosecond

	coord := NewCoordinator(queue, client, nil, nil, cfg)
	stats, err := coord.Run(context.Background())
	require.NoError(t, err)

	// The budget expires before any item is processed; leftovers stay
	// Pending for the next scheduled drain.
	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 0, stats.Synced)
	assert.Empty(t, client.deliveries())
	assert.Equal(t, learning.SyncStatePending, queue.byID("a").State)
	assert.Equal(t, learning.SyncStatePending, queue.byID("b").State)
}

func TestKick_Coalesces(t *testing.T) {
	coord := NewCoordinator(&fakeQueue{}, newScriptedClient(), nil, nil, testConfig())

	// Many kicks while nothing is draining must not block.
	for i := 0; i < 10; i++ {
		coord.Kick()
	}
}
