// Package scoring derives correctness, points, and achievement triggers
// from stored records. Everything here is a pure function of its inputs:
// the engine holds configuration but no mutable state, so re-running an
// evaluation for the same input always yields the same result.
package scoring

import (
	"time"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"
)

// AchievementType names the achievement families the engine evaluates.
type AchievementType string

const (
	// AchievementStreak - N consecutive correct answers.
	AchievementStreak AchievementType = "correct_streak"

	// AchievementLessonCompleted - all questions of a lesson answered.
	AchievementLessonCompleted AchievementType = "lesson_completed"

	// AchievementPersonalBest - fastest correct answer in a lesson so far.
	AchievementPersonalBest AchievementType = "personal_best_time"
)

// Config holds the scoring rules.
type Config struct {
	// BasePoints is the award for a correct answer before multipliers.
	BasePoints int

	// FastAnswerThreshold is the cutoff for the time bonus.
	FastAnswerThreshold time.Duration

	// FastAnswerBonus is added when a correct answer lands within the
	// threshold.
	FastAnswerBonus int

	// StreakMilestones are the consecutive-correct counts that unlock a
	// streak achievement, ascending.
	StreakMilestones []int

	// StreakBonus is the award per streak milestone.
	StreakBonus int

	// LessonCompletedBonus is the award for finishing a lesson.
	LessonCompletedBonus int

	// PersonalBestBonus is the award for beating the lesson best time.
	PersonalBestBonus int
}

// DefaultConfig returns the production scoring rules.
func DefaultConfig() Config {
	return Config{
		BasePoints:           10,
		FastAnswerThreshold:  10 * time.Second,
		FastAnswerBonus:      5,
		StreakMilestones:     []int{3, 5, 10},
		StreakBonus:          15,
		LessonCompletedBonus: 25,
		PersonalBestBonus:    10,
	}
}

// Engine computes scores and achievement triggers.
type Engine struct {
	config Config
}

// NewEngine creates an Engine with the given rules. Zero-valued fields
// fall back to defaults.
func NewEngine(config Config) *Engine {
	def := DefaultConfig()
	if config.BasePoints <= 0 {
		config.BasePoints = def.BasePoints
	}
	if config.FastAnswerThreshold <= 0 {
		config.FastAnswerThreshold = def.FastAnswerThreshold
	}
	if len(config.StreakMilestones) == 0 {
		config.StreakMilestones = def.StreakMilestones
	}
	if config.StreakBonus <= 0 {
		config.StreakBonus = def.StreakBonus
	}
	if config.LessonCompletedBonus <= 0 {
		config.LessonCompletedBonus = def.LessonCompletedBonus
	}
	if config.PersonalBestBonus <= 0 {
		config.PersonalBestBonus = def.PersonalBestBonus
	}
	return &Engine{config: config}
}

// Outcome is the scored result of one answer.
type Outcome struct {
	IsCorrect bool
	Points    int
	FastBonus bool
}

// Score grades a selected option against the stored question. Timeout
// submissions (selectedIndex < 0) and wrong answers score zero points.
func (e *Engine) Score(q *learning.Question, selectedIndex int, timeTaken time.Duration) Outcome {
	if selectedIndex < 0 || selectedIndex != q.CorrectIndex {
		return Outcome{IsCorrect: false}
	}

	points := int(float64(e.config.BasePoints) * q.Difficulty.Multiplier())
	fast := timeTaken > 0 && timeTaken <= e.config.FastAnswerThreshold
	if fast {
		points += e.config.FastAnswerBonus
	}

	return Outcome{IsCorrect: true, Points: points, FastBonus: fast}
}

// Achievement is a triggered achievement with its award.
type Achievement struct {
	Type      AchievementType
	Milestone int
	Points    int
}

// EvaluationInput carries the post-merge state an evaluation runs over.
type EvaluationInput struct {
	// Progress is the record after the new submission was applied.
	Progress *learning.ProgressRecord

	// ConsecutiveCorrect is the user's current run of correct answers,
	// including the new submission.
	ConsecutiveCorrect int

	// CompletedLesson is true when the new submission completed the lesson.
	CompletedLesson bool

	// NewPersonalBest is true when the new submission beat the lesson's
	// previous best time.
	NewPersonalBest bool
}

// EvaluateAchievements returns the achievements the new submission
// triggers. The caller routes each one through the Submission Guard keyed
// on (user, type, milestone); running this twice for the same input is
// harmless because the guard and the ledger constraint absorb duplicates.
func (e *Engine) EvaluateAchievements(in EvaluationInput) []Achievement {
	var fired []Achievement

	for _, m := range e.config.StreakMilestones {
		if in.ConsecutiveCorrect == m {
			fired = append(fired, Achievement{
				Type:      AchievementStreak,
				Milestone: m,
				Points:    e.config.StreakBonus,
			})
		}
	}

	if in.CompletedLesson {
		fired = append(fired, Achievement{
			Type:      AchievementLessonCompleted,
			Milestone: 1,
			Points:    e.config.LessonCompletedBonus,
		})
	}

	if in.NewPersonalBest {
		fired = append(fired, Achievement{
			Type:      AchievementPersonalBest,
			Milestone: 1,
			Points:    e.config.PersonalBestBonus,
		})
	}

	return fired
}

// ConsecutiveCorrect counts the run of correct answers at the head of a
// newest-first submission history.
func ConsecutiveCorrect(history []*learning.AnswerSubmission) int {
	streak := 0
	for _, sub := range history {
		if !sub.IsCorrect {
			break
		}
		streak++
	}
	return streak
}
