package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. These feed the UI event queue: the app consumes
// them to show points and achievement popups independently of sync state.
const (
	// Learning events
	EventAnswerRecorded  EventType = "learning.answer_recorded"
	EventPointsAwarded   EventType = "learning.points_awarded"
	EventLessonCompleted EventType = "learning.lesson_completed"

	// Gamification events
	EventAchievementUnlocked EventType = "gamification.achievement_unlocked"
	EventStreakExtended      EventType = "gamification.streak_extended"

	// Timer events
	EventQuestionTimedOut EventType = "timer.question_timed_out"

	// Sync events (diagnostics only, never shown to the learner)
	EventItemSynced     EventType = "sync.item_synced"
	EventItemParked     EventType = "sync.item_parked"
	EventRunCompleted   EventType = "sync.run_completed"
	EventOnlineRestored EventType = "sync.online_restored"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// AnswerRecordedEvent is emitted when an answer lands in the durable store.
type AnswerRecordedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	LessonID   string `json:"lesson_id"`
	QuestionID string `json:"question_id"`
	IsCorrect  bool   `json:"is_correct"`
	IsTimeout  bool   `json:"is_timeout"`
}

// Payload implements Event interface.
func (e AnswerRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"lesson_id":   e.LessonID,
		"question_id": e.QuestionID,
		"is_correct":  e.IsCorrect,
		"is_timeout":  e.IsTimeout,
	}
}

// NewAnswerRecordedEvent creates a new AnswerRecordedEvent.
func NewAnswerRecordedEvent(submissionID, userID, lessonID, questionID string, isCorrect, isTimeout bool) AnswerRecordedEvent {
	return AnswerRecordedEvent{
		BaseEvent:  NewBaseEvent(EventAnswerRecorded, submissionID),
		UserID:     userID,
		LessonID:   lessonID,
		QuestionID: questionID,
		IsCorrect:  isCorrect,
		IsTimeout:  isTimeout,
	}
}

// PointsAwardedEvent is emitted when points land in the ledger.
// The UI shows the points animation from this event, not from sync state.
type PointsAwardedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	LessonID string `json:"lesson_id"`
	Source   string `json:"source"`
	Amount   int    `json:"amount"`
}

// Payload implements Event interface.
func (e PointsAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"lesson_id": e.LessonID,
		"source":    e.Source,
		"amount":    e.Amount,
	}
}

// NewPointsAwardedEvent creates a new PointsAwardedEvent.
func NewPointsAwardedEvent(entryID, userID, lessonID, source string, amount int) PointsAwardedEvent {
	return PointsAwardedEvent{
		BaseEvent: NewBaseEvent(EventPointsAwarded, entryID),
		UserID:    userID,
		LessonID:  lessonID,
		Source:    source,
		Amount:    amount,
	}
}

// LessonCompletedEvent is emitted when a lesson's last question is answered.
type LessonCompletedEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	LessonID     string `json:"lesson_id"`
	CorrectCount int    `json:"correct_count"`
	TotalCount   int    `json:"total_count"`
	TotalTimeMs  int64  `json:"total_time_ms"`
}

// Payload implements Event interface.
func (e LessonCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"lesson_id":     e.LessonID,
		"correct_count": e.CorrectCount,
		"total_count":   e.TotalCount,
		"total_time_ms": e.TotalTimeMs,
	}
}

// NewLessonCompletedEvent creates a new LessonCompletedEvent.
func NewLessonCompletedEvent(userID, lessonID string, correct, total int, totalTimeMs int64) LessonCompletedEvent {
	return LessonCompletedEvent{
		BaseEvent:    NewBaseEvent(EventLessonCompleted, lessonID),
		UserID:       userID,
		LessonID:     lessonID,
		CorrectCount: correct,
		TotalCount:   total,
		TotalTimeMs:  totalTimeMs,
	}
}

// AchievementUnlockedEvent is emitted when an achievement fires.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID          string `json:"user_id"`
	AchievementType string `json:"achievement_type"`
	Milestone       int    `json:"milestone"`
	BonusPoints     int    `json:"bonus_points"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"achievement_type": e.AchievementType,
		"milestone":        e.Milestone,
		"bonus_points":     e.BonusPoints,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementType string, milestone, bonusPoints int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:       NewBaseEvent(EventAchievementUnlocked, userID),
		UserID:          userID,
		AchievementType: achievementType,
		Milestone:       milestone,
		BonusPoints:     bonusPoints,
	}
}

// QuestionTimedOutEvent is emitted when a question timer expires.
type QuestionTimedOutEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	LessonID   string `json:"lesson_id"`
	QuestionID string `json:"question_id"`
}

// Payload implements Event interface.
func (e QuestionTimedOutEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"lesson_id":   e.LessonID,
		"question_id": e.QuestionID,
	}
}

// NewQuestionTimedOutEvent creates a new QuestionTimedOutEvent.
func NewQuestionTimedOutEvent(userID, lessonID, questionID string) QuestionTimedOutEvent {
	return QuestionTimedOutEvent{
		BaseEvent:  NewBaseEvent(EventQuestionTimedOut, questionID),
		UserID:     userID,
		LessonID:   lessonID,
		QuestionID: questionID,
	}
}

// ItemSyncedEvent is emitted when a queue item is confirmed by the remote.
type ItemSyncedEvent struct {
	BaseEvent
	ItemID         string `json:"item_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Duplicate      bool   `json:"duplicate"`
	Attempts       int    `json:"attempts"`
}

// Payload implements Event interface.
func (e ItemSyncedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"item_id":         e.ItemID,
		"idempotency_key": e.IdempotencyKey,
		"duplicate":       e.Duplicate,
		"attempts":        e.Attempts,
	}
}

// NewItemSyncedEvent creates a new ItemSyncedEvent.
func NewItemSyncedEvent(itemID, idempotencyKey string, duplicate bool, attempts int) ItemSyncedEvent {
	return ItemSyncedEvent{
		BaseEvent:      NewBaseEvent(EventItemSynced, itemID),
		ItemID:         itemID,
		IdempotencyKey: idempotencyKey,
		Duplicate:      duplicate,
		Attempts:       attempts,
	}
}

// ItemParkedEvent is emitted when the remote permanently rejects a payload
// and the item is parked for out-of-band review.
type ItemParkedEvent struct {
	BaseEvent
	ItemID    string `json:"item_id"`
	LastError string `json:"last_error"`
	Attempts  int    `json:"attempts"`
}

// Payload implements Event interface.
func (e ItemParkedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"item_id":    e.ItemID,
		"last_error": e.LastError,
		"attempts":   e.Attempts,
	}
}

// NewItemParkedEvent creates a new ItemParkedEvent.
func NewItemParkedEvent(itemID, lastError string, attempts int) ItemParkedEvent {
	return ItemParkedEvent{
		BaseEvent: NewBaseEvent(EventItemParked, itemID),
		ItemID:    itemID,
		LastError: lastError,
		Attempts:  attempts,
	}
}

// RunCompletedEvent is emitted after every coordinator drain run.
type RunCompletedEvent struct {
	BaseEvent
	Fetched  int   `json:"fetched"`
	Synced   int   `json:"synced"`
	Deferred int   `json:"deferred"`
	Parked   int   `json:"parked"`
	Elapsed  int64 `json:"elapsed_ms"`
}

// Payload implements Event interface.
func (e RunCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"fetched":    e.Fetched,
		"synced":     e.Synced,
		"deferred":   e.Deferred,
		"parked":     e.Parked,
		"elapsed_ms": e.Elapsed,
	}
}

// NewRunCompletedEvent creates a new RunCompletedEvent.
func NewRunCompletedEvent(runID string, fetched, synced, deferred, parked int, elapsed time.Duration) RunCompletedEvent {
	return RunCompletedEvent{
		BaseEvent: NewBaseEvent(EventRunCompleted, runID),
		Fetched:   fetched,
		Synced:    synced,
		Deferred:  deferred,
		Parked:    parked,
		Elapsed:   elapsed.Milliseconds(),
	}
}

// OnlineRestoredEvent is emitted when the connectivity monitor observes
// the offline to online transition. Consumers kick a drain run.
type OnlineRestoredEvent struct {
	BaseEvent
	OfflineFor int64 `json:"offline_for_ms"`
}

// Payload implements Event interface.
func (e OnlineRestoredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"offline_for_ms": e.OfflineFor,
	}
}

// NewOnlineRestoredEvent creates a new OnlineRestoredEvent.
func NewOnlineRestoredEvent(offlineFor time.Duration) OnlineRestoredEvent {
	return OnlineRestoredEvent{
		BaseEvent:  NewBaseEvent(EventOnlineRestored, "connectivity"),
		OfflineFor: offlineFor.Milliseconds(),
	}
}

// EventHandler processes a domain event. Returning an error only affects
// metrics; publishing is fire-and-forget from the producer's perspective.
type EventHandler func(event Event) error

// EventPublisher publishes domain events.
type EventPublisher interface {
	// Publish sends an event to all subscribed handlers.
	Publish(event Event) error
}

// EventSubscriber subscribes handlers to event types.
type EventSubscriber interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// NopPublisher is an EventPublisher that discards all events.
// Useful for tests and for running the write path without a UI consumer.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
