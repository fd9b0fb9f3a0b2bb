package command

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadmanHT/PoraKhela-sub000/internal/application/guard"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/scoring"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

// ──────────────────────────────────────────────────────────────────────────────
// In-memory store implementing the learning repositories. Uniqueness is
// enforced on business keys the same way the database constraints do.
// ──────────────────────────────────────────────────────────────────────────────

type memStore struct {
	mu          sync.Mutex
	submissions map[string]*learning.AnswerSubmission
	ledger      map[string]*learning.PointsLedgerEntry
	progress    map[string]*learning.ProgressRecord
	queue       []*learning.SyncQueueItem
}

func newMemStore() *memStore {
	return &memStore{
		submissions: make(map[string]*learning.AnswerSubmission),
		ledger:      make(map[string]*learning.PointsLedgerEntry),
		progress:    make(map[string]*learning.ProgressRecord),
	}
}

func (m *memStore) Insert(ctx context.Context, sub *learning.AnswerSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submissions[sub.BusinessKey()]; ok {
		return shared.ErrDuplicateSubmission
	}
	m.submissions[sub.BusinessKey()] = sub
	return nil
}

func (m *memStore) GetByBusinessKey(ctx context.Context, userID, lessonID, questionID string) (*learning.AnswerSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[learning.SubmissionBusinessKey(userID, lessonID, questionID)]
	if !ok {
		return nil, shared.ErrSubmissionNotFound
	}
	return sub, nil
}

func (m *memStore) RecentByUser(ctx context.Context, userID string, limit int) ([]*learning.AnswerSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*learning.AnswerSubmission
	for _, sub := range m.submissions {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) SetSyncState(ctx context.Context, id string, state learning.SyncState, attempts int) error {
	return nil
}

func (m *memStore) insertLedger(entry *learning.PointsLedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ledger[entry.BusinessKey()]; ok {
		return shared.ErrDuplicateLedger
	}
	m.ledger[entry.BusinessKey()] = entry
	return nil
}

func (m *memStore) Get(ctx context.Context, userID, lessonID string) (*learning.ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.progress[userID+"/"+lessonID]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	return rec, nil
}

func (m *memStore) Upsert(ctx context.Context, rec *learning.ProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[rec.UserID+"/"+rec.LessonID] = rec
	return nil
}

func (m *memStore) CountCompletedInRange(ctx context.Context, userID string, from, to time.Time) (int, error) {
	return 0, nil
}

func (m *memStore) enqueue(item *learning.SyncQueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, item)
	return nil
}

func (m *memStore) queueByKind(kind learning.QueueItemKind) []*learning.SyncQueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*learning.SyncQueueItem
	for _, item := range m.queue {
		if item.Kind == kind {
			out = append(out, item)
		}
	}
	return out
}

func (m *memStore) ledgerBySource(source learning.LedgerSource) []*learning.PointsLedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*learning.PointsLedgerEntry
	for _, entry := range m.ledger {
		if entry.Source == source {
			out = append(out, entry)
		}
	}
	return out
}

// memLedgerRepo adapts memStore to learning.LedgerRepository.
type memLedgerRepo struct{ store *memStore }

func (r *memLedgerRepo) Insert(ctx context.Context, entry *learning.PointsLedgerEntry) error {
	return r.store.insertLedger(entry)
}

func (r *memLedgerRepo) SumInRange(ctx context.Context, userID string, from, to time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	total := 0
	for _, entry := range r.store.ledger {
		if entry.UserID == userID && !entry.CreatedAt.Before(from) && entry.CreatedAt.Before(to) {
			total += entry.Amount
		}
	}
	return total, nil
}

func (r *memLedgerRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*learning.PointsLedgerEntry, error) {
	return nil, nil
}

func (r *memLedgerRepo) SetSyncState(ctx context.Context, id string, state learning.SyncState) error {
	return nil
}

// memQueueRepo adapts memStore to the enqueue side of QueueRepository.
type memQueueRepo struct{ store *memStore }

func (r *memQueueRepo) Enqueue(ctx context.Context, item *learning.SyncQueueItem) error {
	return r.store.enqueue(item)
}

func (r *memQueueRepo) FetchDue(ctx context.Context, now time.Time, limit int) ([]*learning.SyncQueueItem, error) {
	return nil, nil
}

func (r *memQueueRepo) Claim(ctx context.Context, id string) (bool, error) { return false, nil }

func (r *memQueueRepo) MarkSynced(ctx context.Context, item *learning.SyncQueueItem, attempts int) error {
	return nil
}

func (r *memQueueRepo) Reschedule(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	return nil
}

func (r *memQueueRepo) Park(ctx context.Context, item *learning.SyncQueueItem, attempts int, lastError string) error {
	return nil
}

func (r *memQueueRepo) Requeue(ctx context.Context, id string) error { return nil }

func (r *memQueueRepo) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (r *memQueueRepo) ListParked(ctx context.Context, limit int) ([]*learning.SyncQueueItem, error) {
	return nil, nil
}

func (r *memQueueRepo) Stats(ctx context.Context) (learning.QueueStats, error) {
	return learning.QueueStats{}, nil
}

// memTx binds the store's repositories into a TxContext / UnitOfWork.
type memTx struct{ store *memStore }

func (t *memTx) Submissions() learning.SubmissionRepository { return t.store }
func (t *memTx) Ledger() learning.LedgerRepository          { return &memLedgerRepo{t.store} }
func (t *memTx) Progress() learning.ProgressRepository      { return t.store }
func (t *memTx) Queue() learning.QueueRepository            { return &memQueueRepo{t.store} }

func (t *memTx) Execute(ctx context.Context, fn func(tx learning.TxContext) error) error {
	return fn(t)
}

// memQuestions serves fixed question and lesson metadata.
type memQuestions struct {
	questions map[string]*learning.Question
	lessons   map[string]*learning.Lesson
}

func (m *memQuestions) GetQuestion(ctx context.Context, id string) (*learning.Question, error) {
	q, ok := m.questions[id]
	if !ok {
		return nil, shared.ErrQuestionNotFound
	}
	return q, nil
}

func (m *memQuestions) GetLesson(ctx context.Context, id string) (*learning.Lesson, error) {
	l, ok := m.lessons[id]
	if !ok {
		return nil, shared.ErrLessonNotFound
	}
	return l, nil
}

// failingHistoryReads breaks the submission history read that feeds
// achievement evaluation.
type failingHistoryReads struct{ *memStore }

func (r *failingHistoryReads) RecentByUser(ctx context.Context, userID string, limit int) ([]*learning.AnswerSubmission, error) {
	return nil, errors.New("history unavailable")
}

// capturingPublisher records every published event.
type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────────────────────────────────

func fixtureHandler(t *testing.T, questionCount int) (*SubmitAnswerHandler, *memStore) {
	t.Helper()

	store := newMemStore()
	questions := &memQuestions{
		questions: make(map[string]*learning.Question),
		lessons: map[string]*learning.Lesson{
			"lesson1": {ID: "lesson1", Title: "Counting", Subject: "math", QuestionCount: questionCount},
		},
	}
	for i := 1; i <= questionCount; i++ {
		id := "q" + string(rune('0'+i))
		questions.questions[id] = &learning.Question{
			ID:           id,
			LessonID:     "lesson1",
			Position:     i,
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: 1,
			Difficulty:   learning.DifficultyEasy,
		}
	}

	tx := &memTx{store}
	handler := NewSubmitAnswerHandler(
		tx, questions, store, store,
		scoring.NewEngine(scoring.DefaultConfig()),
		guard.New(),
		nil,
	)
	return handler, store
}

func submitCmd(questionID string, selectedIndex int, timeTakenMs int64) SubmitAnswerCommand {
	return SubmitAnswerCommand{
		UserID:        "user1",
		LessonID:      "lesson1",
		QuestionID:    questionID,
		SelectedIndex: selectedIndex,
		TimeTakenMs:   timeTakenMs,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestSubmitAnswer_CorrectAnswerCommitsEverything(t *testing.T) {
	handler, store := fixtureHandler(t, 5)

	result, err := handler.Handle(context.Background(), submitCmd("q1", 1, 8000))
	require.NoError(t, err)

	assert.False(t, result.AlreadySubmitted)
	assert.True(t, result.IsCorrect)
	assert.Equal(t, 15, result.PointsEarned) // base 10 + fast bonus 5
	assert.False(t, result.LessonCompleted)

	assert.Len(t, store.submissions, 1)
	assert.Len(t, store.ledgerBySource(learning.LedgerSourceAnswer), 1)

	// Both the submission and its ledger entry are queued for sync.
	assert.Len(t, store.queueByKind(learning.QueueKindSubmission), 1)
	assert.Len(t, store.queueByKind(learning.QueueKindLedger), 1)

	require.NotNil(t, result.Progress)
	assert.Equal(t, 1, result.Progress.QuestionsAnswered)
	assert.Equal(t, learning.ProgressInProgress, result.Progress.Status)
}

func TestSubmitAnswer_DuplicateIsNoOp(t *testing.T) {
	handler, store := fixtureHandler(t, 5)
	ctx := context.Background()

	first, err := handler.Handle(ctx, submitCmd("q1", 1, 8000))
	require.NoError(t, err)
	require.False(t, first.AlreadySubmitted)

	// Same question again, even with a different answer.
	second, err := handler.Handle(ctx, submitCmd("q1", 0, 2000))
	require.NoError(t, err)

	assert.True(t, second.AlreadySubmitted)
	assert.Empty(t, second.Events)
	assert.Len(t, store.submissions, 1)
	assert.Len(t, store.queueByKind(learning.QueueKindSubmission), 1)
	assert.Len(t, store.ledgerBySource(learning.LedgerSourceAnswer), 1)
}

func TestSubmitAnswer_WrongAnswerEarnsNothing(t *testing.T) {
	handler, store := fixtureHandler(t, 5)

	result, err := handler.Handle(context.Background(), submitCmd("q1", 0, 8000))
	require.NoError(t, err)

	assert.False(t, result.IsCorrect)
	assert.Equal(t, 0, result.PointsEarned)
	assert.Empty(t, store.ledgerBySource(learning.LedgerSourceAnswer))
	// The submission itself still syncs.
	assert.Len(t, store.queueByKind(learning.QueueKindSubmission), 1)
	assert.Empty(t, store.queueByKind(learning.QueueKindLedger))
}

func TestSubmitAnswer_TimeoutSubmission(t *testing.T) {
	handler, store := fixtureHandler(t, 5)

	result, err := handler.Handle(context.Background(), submitCmd("q1", learning.TimeoutSelectedIndex, 60000))
	require.NoError(t, err)

	assert.False(t, result.IsCorrect)
	assert.Equal(t, 0, result.PointsEarned)
	assert.Len(t, store.submissions, 1)

	// A retried timeout for the same question stays a no-op.
	again, err := handler.Handle(context.Background(), submitCmd("q1", learning.TimeoutSelectedIndex, 60000))
	require.NoError(t, err)
	assert.True(t, again.AlreadySubmitted)
}

func TestSubmitAnswer_StreakFiresOncePerMilestone(t *testing.T) {
	handler, store := fixtureHandler(t, 5)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i, q := range []string{"q1", "q2", "q3"} {
		cmd := submitCmd(q, 1, 8000)
		cmd.OccurredAt = base.Add(time.Duration(i) * time.Minute)
		result, err := handler.Handle(ctx, cmd)
		require.NoError(t, err)

		if q == "q3" {
			require.Len(t, result.Achievements, 1)
			assert.Equal(t, scoring.AchievementStreak, result.Achievements[0].Type)
			assert.Equal(t, 3, result.Achievements[0].Milestone)
		} else {
			assert.Empty(t, result.Achievements)
		}
	}

	assert.Len(t, store.ledgerBySource(learning.LedgerSourceStreak), 1)

	// The fourth correct answer is a streak of 4: no milestone, no re-award.
	cmd := submitCmd("q4", 1, 8000)
	cmd.OccurredAt = base.Add(10 * time.Minute)
	result, err := handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Empty(t, result.Achievements)
	assert.Len(t, store.ledgerBySource(learning.LedgerSourceStreak), 1)
}

func TestSubmitAnswer_StreakAwardIsUserScopedAcrossLessons(t *testing.T) {
	store := newMemStore()
	questions := &memQuestions{
		questions: make(map[string]*learning.Question),
		lessons: map[string]*learning.Lesson{
			"lesson1": {ID: "lesson1", Title: "Counting", Subject: "math", QuestionCount: 5},
			"lesson2": {ID: "lesson2", Title: "Shapes", Subject: "math", QuestionCount: 5},
		},
	}
	add := func(lessonID, id string, pos int) {
		questions.questions[id] = &learning.Question{
			ID:           id,
			LessonID:     lessonID,
			Position:     pos,
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: 1,
			Difficulty:   learning.DifficultyEasy,
		}
	}
	for i := 1; i <= 4; i++ {
		add("lesson1", "q"+string(rune('0'+i)), i)
	}
	for i := 1; i <= 3; i++ {
		add("lesson2", "p"+string(rune('0'+i)), i)
	}

	handler := NewSubmitAnswerHandler(
		&memTx{store}, questions, store, store,
		scoring.NewEngine(scoring.DefaultConfig()),
		guard.New(),
		nil,
	)

	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	step := 0
	answer := func(lessonID, questionID string, selected int) *SubmitAnswerResult {
		cmd := SubmitAnswerCommand{
			UserID:        "user1",
			LessonID:      lessonID,
			QuestionID:    questionID,
			SelectedIndex: selected,
			TimeTakenMs:   8000,
			OccurredAt:    base.Add(time.Duration(step) * time.Minute),
		}
		step++
		result, err := handler.Handle(ctx, cmd)
		require.NoError(t, err)
		return result
	}

	answer("lesson1", "q1", 1)
	answer("lesson1", "q2", 1)
	third := answer("lesson1", "q3", 1)
	require.Len(t, third.Achievements, 1)

	streaks := store.ledgerBySource(learning.LedgerSourceStreak)
	require.Len(t, streaks, 1)
	assert.Equal(t, learning.CrossLessonAwardLesson, streaks[0].LessonID)

	// A wrong answer resets the run.
	answer("lesson1", "q4", 0)

	// Rebuilding a 3-streak in another lesson reaches the same milestone,
	// but the award is keyed to the user, not the lesson it fired in.
	answer("lesson2", "p1", 1)
	answer("lesson2", "p2", 1)
	again := answer("lesson2", "p3", 1)

	assert.Empty(t, again.Achievements)
	assert.Len(t, store.ledgerBySource(learning.LedgerSourceStreak), 1)
}

func TestSubmitAnswer_AchievementFailureStillPublishesAnswerEvents(t *testing.T) {
	store := newMemStore()
	questions := &memQuestions{
		questions: map[string]*learning.Question{
			"q1": {
				ID:           "q1",
				LessonID:     "lesson1",
				Position:     1,
				Options:      []string{"a", "b", "c", "d"},
				CorrectIndex: 1,
				Difficulty:   learning.DifficultyEasy,
			},
		},
		lessons: map[string]*learning.Lesson{
			"lesson1": {ID: "lesson1", Title: "Counting", Subject: "math", QuestionCount: 5},
		},
	}
	publisher := &capturingPublisher{}

	handler := NewSubmitAnswerHandler(
		&memTx{store}, questions, &failingHistoryReads{store}, store,
		scoring.NewEngine(scoring.DefaultConfig()),
		guard.New(),
		publisher,
	)

	result, err := handler.Handle(context.Background(), submitCmd("q1", 1, 8000))
	require.NoError(t, err)
	require.True(t, result.IsCorrect)

	// The answer and its points committed before the achievement pass
	// broke, so their events must still reach subscribers.
	types := publisher.types()
	assert.Contains(t, types, shared.EventAnswerRecorded)
	assert.Contains(t, types, shared.EventPointsAwarded)
}

func TestSubmitAnswer_LessonCompletionAwardsBonus(t *testing.T) {
	handler, store := fixtureHandler(t, 2)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	cmd := submitCmd("q1", 1, 8000)
	cmd.OccurredAt = base
	first, err := handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, first.LessonCompleted)

	cmd = submitCmd("q2", 0, 8000)
	cmd.OccurredAt = base.Add(time.Minute)
	second, err := handler.Handle(ctx, cmd)
	require.NoError(t, err)

	assert.True(t, second.LessonCompleted)
	assert.Equal(t, learning.ProgressCompleted, second.Progress.Status)

	achievements := store.ledgerBySource(learning.LedgerSourceAchievement)
	require.Len(t, achievements, 1)
	assert.Equal(t, learning.AchievementRelatedID(string(scoring.AchievementLessonCompleted), 1), achievements[0].RelatedID)
}

func TestSubmitAnswer_QuestionLessonMismatch(t *testing.T) {
	handler, _ := fixtureHandler(t, 5)

	cmd := submitCmd("q1", 1, 8000)
	cmd.LessonID = "lesson2"
	_, err := handler.Handle(context.Background(), cmd)
	assert.Error(t, err)
}

func TestSubmitAnswer_SelectedIndexOutOfRange(t *testing.T) {
	handler, _ := fixtureHandler(t, 5)

	_, err := handler.Handle(context.Background(), submitCmd("q1", 7, 8000))
	assert.ErrorIs(t, err, shared.ErrInvalidAnswerIndex)
}

func TestSubmitAnswer_Validation(t *testing.T) {
	handler, _ := fixtureHandler(t, 5)
	ctx := context.Background()

	cases := []SubmitAnswerCommand{
		{LessonID: "lesson1", QuestionID: "q1"},
		{UserID: "user1", QuestionID: "q1"},
		{UserID: "user1", LessonID: "lesson1"},
		{UserID: "user1", LessonID: "lesson1", QuestionID: "q1", SelectedIndex: -2},
		{UserID: "user1", LessonID: "lesson1", QuestionID: "q1", TimeTakenMs: -1},
	}
	for _, cmd := range cases {
		_, err := handler.Handle(ctx, cmd)
		assert.Error(t, err)
	}
}
