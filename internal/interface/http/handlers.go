package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/sadmanHT/PoraKhela-sub000/internal/application/query"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
	"github.com/sadmanHT/PoraKhela-sub000/internal/infrastructure/scheduler"
	"github.com/sadmanHT/PoraKhela-sub000/pkg/logger"
	"github.com/sadmanHT/PoraKhela-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// componentHealth reports one dependency in the health response.
type componentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// handleHealth checks every registered dependency and reports the
// aggregate. The engine keeps working without Redis or the remote, so
// a degraded response still lists which pieces are up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make([]componentHealth, 0, len(s.deps.HealthCheckers))
	healthy := true

	for _, checker := range s.deps.HealthCheckers {
		ch := componentHealth{Name: checker.Name(), Healthy: true}
		if err := checker.Check(r.Context()); err != nil {
			ch.Healthy = false
			ch.Error = err.Error()
			healthy = false
		}
		components = append(components, ch)
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, r, status, map[string]interface{}{
		"status":     statusWord(healthy),
		"uptime":     s.Uptime().String(),
		"components": components,
	})
}

func statusWord(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "degraded"
}

// ══════════════════════════════════════════════════════════════════════════════
// DASHBOARD AGGREGATE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetPoints returns today's and this week's point totals for a learner.
//
// GET /api/v1/users/{id}/points?day=2026-08-29
func (s *Server) handleGetPoints(w http.ResponseWriter, r *http.Request) {
	q := query.GetPointsSummaryQuery{UserID: r.PathValue("id")}
	if day := getQueryParam(r, "day", ""); day != "" {
		parsed, err := timeutil.ParseDate(day)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_day", "day must be formatted as YYYY-MM-DD")
			return
		}
		q.Day = parsed
	}

	result, err := s.deps.GetPointsSummaryHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeHandlerError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// handleGetLessonProgress returns the progress record for one learner
// and lesson, plus the count of lessons completed this week.
//
// GET /api/v1/users/{id}/lessons/{lesson_id}/progress
func (s *Server) handleGetLessonProgress(w http.ResponseWriter, r *http.Request) {
	q := query.GetLessonProgressQuery{
		UserID:   r.PathValue("id"),
		LessonID: r.PathValue("lesson_id"),
	}

	result, err := s.deps.GetLessonProgressHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeHandlerError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC QUEUE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetSyncStats returns per-state counts of the sync queue.
//
// GET /api/v1/sync/stats
func (s *Server) handleGetSyncStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Queue.Stats(r.Context())
	if err != nil {
		s.writeHandlerError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, stats)
}

// handleGetParked lists parked items awaiting review.
//
// GET /api/v1/sync/parked?limit=50
func (s *Server) handleGetParked(w http.ResponseWriter, r *http.Request) {
	q := query.GetParkedItemsQuery{
		Limit: getQueryParamInt(r, "limit", 50),
	}

	items, err := s.deps.GetParkedItemsHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeHandlerError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// handleRequeue returns a parked item to the pending queue after review
// and kicks the coordinator so it does not wait for the next tick.
//
// POST /api/v1/sync/parked/{id}/requeue
func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.deps.Queue.Requeue(r.Context(), id); err != nil {
		if errors.Is(err, shared.ErrInvalidState) {
			writeJSONError(w, http.StatusConflict, "not_parked", "only parked items can be requeued")
			return
		}
		s.writeHandlerError(w, r, err)
		return
	}

	if s.deps.Coordinator != nil {
		s.deps.Coordinator.Kick()
	}

	s.logger.Info("parked item requeued",
		logger.String("item_id", id),
		logger.String("request_id", getRequestID(r.Context())),
	)

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"item_id":     id,
		"state":       "pending",
		"requeued_at": time.Now().UTC(),
	})
}

// handleDrain asks the coordinator for an immediate drain pass.
//
// POST /api/v1/sync/drain
func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if s.deps.Coordinator == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "coordinator_unavailable", "sync coordinator is not running")
		return
	}

	s.deps.Coordinator.Kick()

	writeJSON(w, r, http.StatusAccepted, map[string]interface{}{
		"status": "drain requested",
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// BACKGROUND JOB HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListJobs lists registered background jobs and their run state.
//
// GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "scheduler is not running")
		return
	}

	jobs := s.deps.Jobs.ListJobs()
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleJobHistory returns recent job executions, newest last.
//
// GET /api/v1/jobs/history?limit=50
func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "scheduler is not running")
		return
	}

	history := s.deps.Jobs.GetHistory(getQueryParamInt(r, "limit", 50))
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
}

// handleRunJob triggers one job immediately, ignoring its schedule. A
// job that ran but failed still answers 200; its result carries the
// failure.
//
// POST /api/v1/jobs/{name}/run
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "scheduler is not running")
		return
	}

	name := r.PathValue("name")
	result, err := s.deps.Jobs.RunNow(r.Context(), name)
	if err != nil && result == nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			writeJSONError(w, http.StatusNotFound, "job_not_found", "no job registered under that name")
			return
		}
		s.writeHandlerError(w, r, err)
		return
	}

	s.logger.Info("manual job run requested",
		logger.String("job", name),
		logger.String("request_id", getRequestID(r.Context())),
	)

	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeHandlerError maps domain and validation errors to HTTP status codes.
func (s *Server) writeHandlerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		s.logger.Error("request failed",
			logger.Err(err),
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
