package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadmanHT/PoraKhela-sub000/internal/application/command"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/timer"
)

// fakeTimerRepo serves a fixed set of snapshots and records clears.
type fakeTimerRepo struct {
	mu      sync.Mutex
	snaps   []timer.Snapshot
	cleared []string
}

func (r *fakeTimerRepo) Save(ctx context.Context, snap timer.Snapshot) error { return nil }

func (r *fakeTimerRepo) GetActive(ctx context.Context, userID string) (timer.Snapshot, error) {
	return timer.Snapshot{}, nil
}

func (r *fakeTimerRepo) ListActive(ctx context.Context, limit int) ([]timer.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]timer.Snapshot, len(r.snaps))
	copy(out, r.snaps)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeTimerRepo) Clear(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, sessionID)
	return nil
}

// fakeExpirer records the expiry commands the sweep fires.
type fakeExpirer struct {
	mu   sync.Mutex
	cmds []command.ExpireTimerCommand
}

func (e *fakeExpirer) Handle(ctx context.Context, cmd command.ExpireTimerCommand) (*command.ExpireTimerResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmds = append(e.cmds, cmd)
	return &command.ExpireTimerResult{SubmissionID: "sub-" + cmd.SessionID}, nil
}

func (e *fakeExpirer) commands() []command.ExpireTimerCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]command.ExpireTimerCommand, len(e.cmds))
	copy(out, e.cmds)
	return out
}

func newJob(repo *fakeTimerRepo, expirer *fakeExpirer) *RecoverTimersJob {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRecoverTimersJob(repo, expirer, logger)
}

func snapshot(sessionID string) timer.Snapshot {
	return timer.Snapshot{
		SessionID:  sessionID,
		UserID:     "user1",
		LessonID:   "lesson1",
		QuestionID: "q1",
		Limit:      30 * time.Second,
		StartedAt:  time.Now().UTC().Add(-time.Second),
	}
}

func TestRecoverTimers_ExpiresSessionsPastTheirLimit(t *testing.T) {
	overdue := snapshot("s1")
	overdue.StartedAt = time.Now().UTC().Add(-time.Hour)

	repo := &fakeTimerRepo{snaps: []timer.Snapshot{overdue, snapshot("s2")}}
	expirer := &fakeExpirer{}

	err := newJob(repo, expirer).Run(context.Background())
	require.NoError(t, err)

	cmds := expirer.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "s1", cmds[0].SessionID)
	assert.Equal(t, "user1", cmds[0].UserID)
	assert.Equal(t, "lesson1", cmds[0].LessonID)
	assert.Equal(t, "q1", cmds[0].QuestionID)
	assert.Equal(t, int64(30000), cmds[0].TimeLimitMs)

	// The session still inside its limit is left for the app to resume.
	assert.Empty(t, repo.cleared)
}

func TestRecoverTimers_BrokenButIdentifiableSessionIsExpired(t *testing.T) {
	corrupt := snapshot("s1")
	corrupt.AccumPausedMs = -50 // fails rehydration

	repo := &fakeTimerRepo{snaps: []timer.Snapshot{corrupt}}
	expirer := &fakeExpirer{}

	err := newJob(repo, expirer).Run(context.Background())
	require.NoError(t, err)

	// The snapshot still names (user, lesson, question), so the learner
	// gets a timeout submission, not a fresh clock.
	cmds := expirer.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "s1", cmds[0].SessionID)
	assert.Equal(t, "q1", cmds[0].QuestionID)
}

func TestRecoverTimers_UnidentifiableSessionIsClearedNotExpired(t *testing.T) {
	nameless := snapshot("s1")
	nameless.QuestionID = ""

	repo := &fakeTimerRepo{snaps: []timer.Snapshot{nameless}}
	expirer := &fakeExpirer{}

	err := newJob(repo, expirer).Run(context.Background())
	require.NoError(t, err)

	// No question to submit a timeout against; all we can do is drop it.
	assert.Empty(t, expirer.commands())
	assert.Equal(t, []string{"s1"}, repo.cleared)
}

func TestRecoverTimers_NegativeLimitClampedToZero(t *testing.T) {
	corrupt := snapshot("s1")
	corrupt.AccumPausedMs = -1
	corrupt.Limit = -5 * time.Second

	repo := &fakeTimerRepo{snaps: []timer.Snapshot{corrupt}}
	expirer := &fakeExpirer{}

	err := newJob(repo, expirer).Run(context.Background())
	require.NoError(t, err)

	cmds := expirer.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, int64(0), cmds[0].TimeLimitMs)
}
