// Package query contains read operations (CQRS - Queries).
//
// These queries feed the parent dashboard and the SMS notification job.
// Both tolerate eventual consistency: local totals are authoritative for
// the device, so sync state never filters what a query returns.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"
	"github.com/sadmanHT/PoraKhela-sub000/pkg/timeutil"
)

// Cache is the optional read-through cache for aggregate results.
// Implementations treat any Get error as a miss.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ══════════════════════════════════════════════════════════════════════════════
// GET POINTS SUMMARY QUERY
// "Points today" / points over a window for one learner.
// ══════════════════════════════════════════════════════════════════════════════

// GetPointsSummaryQuery contains the parameters.
type GetPointsSummaryQuery struct {
	// UserID is the learner.
	UserID string

	// Day selects the local day to total (zero = today).
	Day time.Time
}

// Validate checks the query parameters.
func (q *GetPointsSummaryQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("get_points_summary: user_id is required")
	}
	if q.Day.IsZero() {
		q.Day = timeutil.Now()
	}
	return nil
}

// PointsSummaryDTO is the query result.
type PointsSummaryDTO struct {
	UserID      string    `json:"user_id"`
	Day         string    `json:"day"`
	PointsToday int       `json:"points_today"`
	PointsWeek  int       `json:"points_week"`
	ComputedAt  time.Time `json:"computed_at"`
}

// GetPointsSummaryHandler handles the query.
type GetPointsSummaryHandler struct {
	ledger   learning.LedgerRepository
	cache    Cache
	cacheTTL time.Duration
}

// NewGetPointsSummaryHandler creates a new handler. cache may be nil.
func NewGetPointsSummaryHandler(ledger learning.LedgerRepository, cache Cache) *GetPointsSummaryHandler {
	return &GetPointsSummaryHandler{
		ledger:   ledger,
		cache:    cache,
		cacheTTL: 30 * time.Second,
	}
}

// Handle executes the query.
func (h *GetPointsSummaryHandler) Handle(ctx context.Context, q GetPointsSummaryQuery) (*PointsSummaryDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("points_summary:%s:%s", q.UserID, timeutil.FormatDateStr(q.Day))
	if h.cache != nil {
		var cached PointsSummaryDTO
		if err := h.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	dayStart, dayEnd := timeutil.DayRange(q.Day)
	today, err := h.ledger.SumInRange(ctx, q.UserID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("get_points_summary: %w", err)
	}

	weekStart, weekEnd := timeutil.WeekRange(q.Day)
	week, err := h.ledger.SumInRange(ctx, q.UserID, weekStart, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("get_points_summary: %w", err)
	}

	dto := &PointsSummaryDTO{
		UserID:      q.UserID,
		Day:         timeutil.FormatDateStr(q.Day),
		PointsToday: today,
		PointsWeek:  week,
		ComputedAt:  time.Now().UTC(),
	}

	if h.cache != nil {
		_ = h.cache.SetJSON(ctx, cacheKey, dto, h.cacheTTL)
	}
	return dto, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET LESSON PROGRESS QUERY
// Per-lesson progress plus "lessons completed this week".
// ══════════════════════════════════════════════════════════════════════════════

// GetLessonProgressQuery contains the parameters.
type GetLessonProgressQuery struct {
	// UserID is the learner.
	UserID string

	// LessonID is the lesson to report on.
	LessonID string
}

// Validate checks the query parameters.
func (q *GetLessonProgressQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("get_lesson_progress: user_id is required")
	}
	if q.LessonID == "" {
		return errors.New("get_lesson_progress: lesson_id is required")
	}
	return nil
}

// LessonProgressDTO is the query result.
type LessonProgressDTO struct {
	UserID            string     `json:"user_id"`
	LessonID          string     `json:"lesson_id"`
	QuestionsAnswered int        `json:"questions_answered"`
	CorrectCount      int        `json:"correct_count"`
	TotalTimeMs       int64      `json:"total_time_ms"`
	Status            string     `json:"status"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	LessonsThisWeek   int        `json:"lessons_this_week"`
}

// GetLessonProgressHandler handles the query.
type GetLessonProgressHandler struct {
	progress learning.ProgressRepository
}

// NewGetLessonProgressHandler creates a new handler.
func NewGetLessonProgressHandler(progress learning.ProgressRepository) *GetLessonProgressHandler {
	return &GetLessonProgressHandler{progress: progress}
}

// Handle executes the query. A user who never touched the lesson gets a
// NotStarted record, not an error.
func (h *GetLessonProgressHandler) Handle(ctx context.Context, q GetLessonProgressQuery) (*LessonProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	rec, err := h.progress.Get(ctx, q.UserID, q.LessonID)
	if err != nil {
		rec = &learning.ProgressRecord{
			LessonID: q.LessonID,
			UserID:   q.UserID,
			Status:   learning.ProgressNotStarted,
		}
	}

	weekStart, weekEnd := timeutil.WeekRange(timeutil.Now())
	completed, err := h.progress.CountCompletedInRange(ctx, q.UserID, weekStart, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("get_lesson_progress: %w", err)
	}

	return &LessonProgressDTO{
		UserID:            rec.UserID,
		LessonID:          rec.LessonID,
		QuestionsAnswered: rec.QuestionsAnswered,
		CorrectCount:      rec.CorrectCount,
		TotalTimeMs:       rec.TotalTimeMs,
		Status:            string(rec.Status),
		CompletedAt:       rec.CompletedAt,
		LessonsThisWeek:   completed,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET PARKED ITEMS QUERY
// Review surface for permanently rejected sync items.
// ══════════════════════════════════════════════════════════════════════════════

// GetParkedItemsQuery contains the parameters.
type GetParkedItemsQuery struct {
	// Limit caps the result size (default 50).
	Limit int
}

// ParkedItemDTO describes one parked queue item.
type ParkedItemDTO struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	UserID         string    `json:"user_id"`
	LessonID       string    `json:"lesson_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	RetryCount     int       `json:"retry_count"`
	LastError      string    `json:"last_error"`
	CreatedAt      time.Time `json:"created_at"`
}

// GetParkedItemsHandler handles the query.
type GetParkedItemsHandler struct {
	queue learning.QueueRepository
}

// NewGetParkedItemsHandler creates a new handler.
func NewGetParkedItemsHandler(queue learning.QueueRepository) *GetParkedItemsHandler {
	return &GetParkedItemsHandler{queue: queue}
}

// Handle executes the query.
func (h *GetParkedItemsHandler) Handle(ctx context.Context, q GetParkedItemsQuery) ([]ParkedItemDTO, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	items, err := h.queue.ListParked(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("get_parked_items: %w", err)
	}

	dtos := make([]ParkedItemDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, ParkedItemDTO{
			ID:             item.ID,
			Kind:           string(item.Kind),
			UserID:         item.UserID,
			LessonID:       item.LessonID,
			IdempotencyKey: item.IdempotencyKey,
			RetryCount:     item.RetryCount,
			LastError:      item.LastError,
			CreatedAt:      item.CreatedAt,
		})
	}
	return dtos, nil
}
