package learning

import (
	"time"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

// ProgressStatus describes where a user is in a lesson.
type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

// ProgressRecord is the incrementally maintained per-(lesson, user)
// aggregate. It is derived from submissions as they land and is never
// retroactively altered by sync outcome: pre-sync local totals are
// authoritative for the device.
type ProgressRecord struct {
	LessonID          string
	UserID            string
	QuestionsAnswered int
	CorrectCount      int
	TotalTimeMs       int64
	BestTimeMs        int64 // fastest correct answer so far, 0 = none yet
	Status            ProgressStatus
	CompletedAt       *time.Time
	UpdatedAt         time.Time
}

// NewProgressRecord creates an empty record for a (lesson, user) pair.
func NewProgressRecord(lessonID, userID string) (*ProgressRecord, error) {
	if lessonID == "" || userID == "" {
		return nil, shared.NewDomainError("learning", "NewProgress", shared.ErrEmptyValue, "lesson and user IDs are required")
	}
	return &ProgressRecord{
		LessonID:  lessonID,
		UserID:    userID,
		Status:    ProgressNotStarted,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Apply merges a newly stored submission into the record. totalQuestions
// is the lesson's question count; when every question has an answer the
// lesson flips to Completed. Returns true when this submission completed
// the lesson.
func (p *ProgressRecord) Apply(sub *AnswerSubmission, totalQuestions int) bool {
	p.QuestionsAnswered++
	if sub.IsCorrect {
		p.CorrectCount++
		if p.BestTimeMs == 0 || sub.TimeTakenMs < p.BestTimeMs {
			p.BestTimeMs = sub.TimeTakenMs
		}
	}
	p.TotalTimeMs += sub.TimeTakenMs
	p.UpdatedAt = sub.CreatedAt

	if p.Status == ProgressNotStarted {
		p.Status = ProgressInProgress
	}

	if totalQuestions > 0 && p.QuestionsAnswered >= totalQuestions && p.Status != ProgressCompleted {
		p.Status = ProgressCompleted
		completed := sub.CreatedAt
		p.CompletedAt = &completed
		return true
	}
	return false
}

// IsPersonalBest reports whether a correct answer in timeTakenMs beats the
// current best. A first correct answer is not a "personal best" event.
func (p *ProgressRecord) IsPersonalBest(timeTakenMs int64) bool {
	return p.BestTimeMs > 0 && timeTakenMs > 0 && timeTakenMs < p.BestTimeMs
}
