package learning

import (
	"time"
)

// Difficulty grades a question for scoring purposes.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Multiplier returns the points multiplier for the difficulty.
// Unknown difficulties score as easy.
func (d Difficulty) Multiplier() float64 {
	switch d {
	case DifficultyMedium:
		return 1.5
	case DifficultyHard:
		return 2.0
	default:
		return 1.0
	}
}

// Question is the read-side input for scoring: the stored correct index
// and difficulty. Question content itself is delivered by the content
// pipeline, which is outside this engine.
type Question struct {
	ID           string
	LessonID     string
	Position     int // 1-based order within the lesson
	Prompt       string
	Options      []string
	CorrectIndex int
	Difficulty   Difficulty
	TimeLimit    time.Duration // 0 = untimed
}

// Lesson groups questions and defines completion semantics.
type Lesson struct {
	ID            string
	Title         string
	Subject       string
	QuestionCount int
	CreatedAt     time.Time
}
