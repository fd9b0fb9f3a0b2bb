package learning

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

// LedgerSource identifies what kind of effect produced a ledger entry.
type LedgerSource string

const (
	// LedgerSourceAnswer - points for a correctly answered question.
	LedgerSourceAnswer LedgerSource = "answer"

	// LedgerSourceAchievement - bonus for an unlocked achievement.
	LedgerSourceAchievement LedgerSource = "achievement"

	// LedgerSourceStreak - bonus for a consecutive-correct streak.
	LedgerSourceStreak LedgerSource = "streak"

	// LedgerSourceBonus - miscellaneous bonus awards.
	LedgerSourceBonus LedgerSource = "bonus"
)

// CrossLessonAwardLesson is the LessonID recorded for awards that are
// scoped to the user rather than a lesson, such as consecutive-correct
// streak bonuses. Using a fixed value keeps the (user, lesson, source,
// related) uniqueness constraint user-scoped for those awards: the same
// milestone cannot be re-earned by crossing into another lesson.
const CrossLessonAwardLesson = "_user"

// Valid reports whether the source is one of the known sources.
func (s LedgerSource) Valid() bool {
	switch s {
	case LedgerSourceAnswer, LedgerSourceAchievement, LedgerSourceStreak, LedgerSourceBonus:
		return true
	}
	return false
}

// PointsLedgerEntry is the durable record of a single points award.
// The (user, lesson, source, related) uniqueness constraint prevents any
// award from being applied twice, no matter how many times the scoring
// engine re-evaluates the same input.
type PointsLedgerEntry struct {
	ID             string
	UserID         string
	LessonID       string
	Source         LedgerSource
	Amount         int
	RelatedID      string
	CreatedAt      time.Time
	SyncState      SyncState
	IdempotencyKey string
}

// NewPointsLedgerEntry creates a pending ledger entry. RelatedID ties the
// award to its cause: the submission ID for answers, the achievement
// milestone key for achievements.
func NewPointsLedgerEntry(userID, lessonID string, source LedgerSource, amount int, relatedID string, at time.Time) (*PointsLedgerEntry, error) {
	if userID == "" || lessonID == "" {
		return nil, shared.NewDomainError("learning", "NewLedgerEntry", shared.ErrEmptyValue, "user and lesson IDs are required")
	}
	if !source.Valid() {
		return nil, shared.NewDomainError("learning", "NewLedgerEntry", shared.ErrInvalidInput, "unknown ledger source")
	}
	if amount < 0 {
		return nil, shared.NewDomainError("learning", "NewLedgerEntry", shared.ErrNegativeValue, "award amount cannot be negative")
	}
	if relatedID == "" {
		return nil, shared.NewDomainError("learning", "NewLedgerEntry", shared.ErrEmptyValue, "related ID is required")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	return &PointsLedgerEntry{
		ID:             uuid.NewString(),
		UserID:         userID,
		LessonID:       lessonID,
		Source:         source,
		Amount:         amount,
		RelatedID:      relatedID,
		CreatedAt:      at,
		SyncState:      SyncStatePending,
		IdempotencyKey: LedgerIdempotencyKey(userID, lessonID, source, relatedID),
	}, nil
}

// BusinessKey returns the composite key enforced unique by the store.
func (e *PointsLedgerEntry) BusinessKey() string {
	return LedgerBusinessKey(e.UserID, e.LessonID, e.Source, e.RelatedID)
}

// LedgerBusinessKey builds the composite business key for an award.
func LedgerBusinessKey(userID, lessonID string, source LedgerSource, relatedID string) string {
	return strings.Join([]string{"ledger", userID, lessonID, string(source), relatedID}, ":")
}

// LedgerIdempotencyKey derives the deterministic remote idempotency key
// for an award.
func LedgerIdempotencyKey(userID, lessonID string, source LedgerSource, relatedID string) string {
	return digest("ledger", userID, lessonID, string(source), relatedID)
}

// AchievementRelatedID builds the RelatedID for an achievement award so
// that each (type, milestone) pair can be awarded at most once per user.
func AchievementRelatedID(achievementType string, milestone int) string {
	return achievementType + ":" + strconv.Itoa(milestone)
}
