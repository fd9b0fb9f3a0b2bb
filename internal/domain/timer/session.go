// Package timer implements lifecycle-resilient elapsed-time tracking for
// timed questions. Elapsed time is measured on the monotonic clock, so
// wall-clock or timezone changes never affect it; lifecycle transitions
// (pause, resume, stop) are explicit state-machine inputs rather than
// ambient platform hooks, which keeps the machine testable.
package timer

import (
	"time"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

// State is the timer state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateExpired State = "expired"
	StateStopped State = "stopped"
)

// Clock abstracts time for tests. time.Now carries a monotonic reading,
// so durations computed from its values are immune to wall-clock jumps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Session tracks active elapsed time for one timed question.
type Session struct {
	sessionID  string
	userID     string
	lessonID   string
	questionID string

	clock Clock
	limit time.Duration

	state       State
	start       time.Time // monotonic reference, set on Start
	startedWall time.Time // wall time for persistence
	accumPaused time.Duration
	pauseStart  time.Time
	expiredOnce bool
}

// NewSession creates an idle session for a question with the given limit.
// A zero limit means the question is untimed and never expires.
func NewSession(sessionID, userID, lessonID, questionID string, limit time.Duration, clock Clock) *Session {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Session{
		sessionID:  sessionID,
		userID:     userID,
		lessonID:   lessonID,
		questionID: questionID,
		clock:      clock,
		limit:      limit,
		state:      StateIdle,
	}
}

// SessionID returns the session identifier.
func (s *Session) SessionID() string { return s.sessionID }

// UserID returns the user the session belongs to.
func (s *Session) UserID() string { return s.userID }

// LessonID returns the lesson the session belongs to.
func (s *Session) LessonID() string { return s.lessonID }

// QuestionID returns the timed question.
func (s *Session) QuestionID() string { return s.questionID }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Limit returns the time limit, 0 for untimed.
func (s *Session) Limit() time.Duration { return s.limit }

// Start transitions Idle -> Running.
func (s *Session) Start() error {
	if s.state != StateIdle {
		return shared.NewDomainError("timer", "Start", shared.ErrStateTransition, "timer can only start from idle")
	}
	now := s.clock.Now()
	s.start = now
	s.startedWall = now
	s.state = StateRunning
	return nil
}

// Pause freezes elapsed time, typically on app backgrounding.
// Pausing a paused timer is a no-op.
func (s *Session) Pause() error {
	switch s.state {
	case StatePaused:
		return nil
	case StateRunning:
		s.pauseStart = s.clock.Now()
		s.state = StatePaused
		return nil
	default:
		return shared.ErrTimerNotRunning
	}
}

// Resume adds the paused interval to accumulated pause time and
// continues the clock.
func (s *Session) Resume() error {
	if s.state != StatePaused {
		return shared.ErrTimerNotPaused
	}
	s.accumPaused += s.clock.Now().Sub(s.pauseStart)
	s.pauseStart = time.Time{}
	s.state = StateRunning
	return nil
}

// Stop ends the session without expiry, e.g. when the user answers.
func (s *Session) Stop() error {
	switch s.state {
	case StateRunning, StatePaused:
		s.state = StateStopped
		return nil
	default:
		return shared.ErrTimerFinished
	}
}

// Elapsed returns active elapsed time: monotonic now minus start minus
// accumulated pauses. While paused, elapsed is frozen at the pause point.
func (s *Session) Elapsed() time.Duration {
	switch s.state {
	case StateIdle:
		return 0
	case StatePaused:
		return s.pauseStart.Sub(s.start) - s.accumPaused
	default:
		return s.clock.Now().Sub(s.start) - s.accumPaused
	}
}

// Remaining returns time left before expiry, clamped at zero.
// Untimed sessions report a negative value meaning "no limit".
func (s *Session) Remaining() time.Duration {
	if s.limit <= 0 {
		return -1
	}
	left := s.limit - s.Elapsed()
	if left < 0 {
		return 0
	}
	return left
}

// Tick checks the limit and transitions Running -> Expired at most once.
// It returns true exactly on the tick that expired the session; the
// periodic UI tick calls this, so repeated ticks after expiry must not
// fire again. The caller routes the single timeout submission through the
// Submission Guard.
func (s *Session) Tick() bool {
	if s.state != StateRunning || s.limit <= 0 {
		return false
	}
	if s.Elapsed() < s.limit {
		return false
	}
	s.state = StateExpired
	if s.expiredOnce {
		return false
	}
	s.expiredOnce = true
	return true
}

// Snapshot captures the fields that survive a process restart.
type Snapshot struct {
	SessionID      string        `json:"session_id"`
	UserID         string        `json:"user_id"`
	LessonID       string        `json:"lesson_id"`
	QuestionID     string        `json:"question_id"`
	Limit          time.Duration `json:"limit"`
	StartedAt      time.Time     `json:"started_at"`
	AccumPausedMs  int64         `json:"accum_paused_ms"`
	Paused         bool          `json:"paused"`
	PauseStartedAt time.Time     `json:"pause_started_at"`
}

// Snapshot returns the persistable state of an active session.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		SessionID:      s.sessionID,
		UserID:         s.userID,
		LessonID:       s.lessonID,
		QuestionID:     s.questionID,
		Limit:          s.limit,
		StartedAt:      s.startedWall,
		AccumPausedMs:  s.accumPaused.Milliseconds(),
		Paused:         s.state == StatePaused,
		PauseStartedAt: s.pauseStart,
	}
}

// Rehydrate rebuilds a session from persisted state after a restart.
//
// The monotonic reading is lost across restarts, so wall-clock deltas are
// the only information available; that is acceptable because the interval
// spans a process death, not a running timer. If the rebuilt elapsed time
// already exceeds the limit the session comes back Expired, and the first
// Tick-equivalent check is the caller's Expired() test. Corrupt or
// missing state is conservatively treated as expired rather than reset,
// so repeated restarts can never mint extra time.
func Rehydrate(snap Snapshot, clock Clock) (*Session, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if snap.SessionID == "" || snap.QuestionID == "" || snap.StartedAt.IsZero() || snap.AccumPausedMs < 0 {
		return nil, shared.ErrTimerStateBroken
	}

	s := NewSession(snap.SessionID, snap.UserID, snap.LessonID, snap.QuestionID, snap.Limit, clock)
	now := clock.Now()

	s.startedWall = snap.StartedAt
	s.accumPaused = time.Duration(snap.AccumPausedMs) * time.Millisecond
	// Re-anchor the monotonic reference so Elapsed spans the restart.
	s.start = now.Add(-now.Sub(snap.StartedAt))
	s.state = StateRunning

	if snap.Paused {
		if snap.PauseStartedAt.IsZero() {
			return nil, shared.ErrTimerStateBroken
		}
		// Time spent paused before the crash stays paused time.
		s.accumPaused += now.Sub(snap.PauseStartedAt)
	}

	if snap.Limit > 0 && s.Elapsed() >= snap.Limit {
		// Already past the limit: come back Expired so the caller fires
		// the timeout submission immediately instead of resetting the clock.
		s.state = StateExpired
		s.expiredOnce = true
	}
	return s, nil
}

// Expired reports whether the session has expired.
func (s *Session) Expired() bool { return s.state == StateExpired }
