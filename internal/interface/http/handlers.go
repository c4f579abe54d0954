package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/learnsight/engagement-analytics/config"
	"github.com/learnsight/engagement-analytics/internal/application/query"
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
	"github.com/learnsight/engagement-analytics/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":    "Engagement Analytics API",
		"version": s.deps.Version,
		"endpoints": map[string]string{
			"health":          "/health",
			"dashboard":       registrationPath + "/dashboard",
			"weekly_progress": registrationPath + "/weekly-progress",
			"engagement":      registrationPath + "/engagement",
			"risk":            registrationPath + "/risk",
		},
	}
	s.writeJSON(w, r, http.StatusOK, info)
}

// handleHealth runs every check and reports the aggregate.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		s.writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	s.writeJSON(w, r, http.StatusOK, status)
}

// handleReady handles the readiness probe. Only critical checks gate it.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		s.writeError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYTICS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleDashboard handles GET .../dashboard?week=N
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.registration(w, r)
	if !ok {
		return
	}
	week, ok := s.intParam(w, r, "week")
	if !ok {
		return
	}
	if s.deps.Dashboard == nil {
		s.notConfigured(w, r)
		return
	}

	result, err := s.deps.Dashboard.Handle(r.Context(), query.GetDashboardQuery{
		StudentID:  reg.studentID,
		CourseID:   reg.courseID,
		WeekNumber: week,
	})
	if err != nil {
		s.handleQueryError(w, r, "GetDashboard", err)
		return
	}
	s.observeRisk(r, reg, week, result.RiskPrediction.UsedStatisticalModel, result.RiskPrediction.RiskLevel)
	s.writeJSON(w, r, http.StatusOK, result)
}

// handleWeeklyProgress handles GET .../weekly-progress?total_weeks=N
func (s *Server) handleWeeklyProgress(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.registration(w, r)
	if !ok {
		return
	}
	total, ok := s.intParam(w, r, "total_weeks")
	if !ok {
		return
	}
	if s.deps.WeeklyProgress == nil {
		s.notConfigured(w, r)
		return
	}

	result, err := s.deps.WeeklyProgress.Handle(r.Context(), query.GetWeeklyProgressQuery{
		StudentID:  reg.studentID,
		CourseID:   reg.courseID,
		TotalWeeks: total,
	})
	if err != nil {
		s.handleQueryError(w, r, "GetWeeklyProgress", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, result)
}

// handleEngagementDetails handles GET .../engagement?week=N. Hidden unless the
// details feature is enabled for the registration.
func (s *Server) handleEngagementDetails(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.registration(w, r)
	if !ok {
		return
	}
	if s.deps.Toggles != nil && !s.deps.Toggles.Enabled(config.FeatureEngagementDetails, reg.studentID, reg.courseID) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "Engagement details are not available")
		return
	}
	week, ok := s.intParam(w, r, "week")
	if !ok {
		return
	}
	if s.deps.EngagementDetails == nil {
		s.notConfigured(w, r)
		return
	}

	result, err := s.deps.EngagementDetails.Handle(r.Context(), query.GetEngagementDetailsQuery{
		StudentID:  reg.studentID,
		CourseID:   reg.courseID,
		WeekNumber: week,
	})
	if err != nil {
		s.handleQueryError(w, r, "GetEngagementDetails", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, result)
}

// handleRisk handles GET .../risk?week=N
func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.registration(w, r)
	if !ok {
		return
	}
	week, ok := s.intParam(w, r, "week")
	if !ok {
		return
	}
	if s.deps.Risk == nil {
		s.notConfigured(w, r)
		return
	}

	result, err := s.deps.Risk.Handle(r.Context(), query.GetRiskQuery{
		StudentID:  reg.studentID,
		CourseID:   reg.courseID,
		WeekNumber: week,
	})
	if err != nil {
		s.handleQueryError(w, r, "GetRisk", err)
		return
	}
	s.observeRisk(r, reg, week, result.Assessment.UsedModel, string(result.Assessment.Level))
	s.writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST PARSING
// ══════════════════════════════════════════════════════════════════════════════

type registrationRef struct {
	studentID int64
	courseID  int64
}

// registration parses the path ids, writing a 400 on failure.
func (s *Server) registration(w http.ResponseWriter, r *http.Request) (registrationRef, bool) {
	studentID, err := strconv.ParseInt(r.PathValue("studentID"), 10, 64)
	if err != nil || studentID <= 0 {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "student id must be a positive integer")
		return registrationRef{}, false
	}
	courseID, err := strconv.ParseInt(r.PathValue("courseID"), 10, 64)
	if err != nil || courseID <= 0 {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "course id must be a positive integer")
		return registrationRef{}, false
	}
	return registrationRef{studentID: studentID, courseID: courseID}, true
}

// intParam reads an optional integer query parameter; absent means 0.
func (s *Server) intParam(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", key+" must be an integer")
		return 0, false
	}
	return v, true
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleQueryError(w http.ResponseWriter, r *http.Request, op string, err error) {
	log := logger.FromContext(r.Context())

	switch {
	case shared.IsValidation(err):
		s.writeError(w, r, http.StatusBadRequest, "validation_error", publicMessage(err, "Invalid request"))
	case shared.IsNotFound(err):
		s.writeError(w, r, http.StatusNotFound, "not_found", publicMessage(err, "Not found"))
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("analytics query timed out", logger.Operation(op), logger.Err(err))
		s.writeError(w, r, http.StatusGatewayTimeout, "timeout", "The request took too long")
	case shared.IsExternalService(err):
		log.Error("analytics query failed", logger.Operation(op), logger.Err(err))
		s.writeError(w, r, http.StatusServiceUnavailable, "service_unavailable", "Analytics are temporarily unavailable")
	default:
		log.Error("analytics query failed", logger.Operation(op), logger.Err(err))
		s.writeError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
	}
}

func (s *Server) notConfigured(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusServiceUnavailable, "not_configured", "Handler not configured")
}

func (s *Server) observeRisk(r *http.Request, reg registrationRef, week int, usedModel bool, level string) {
	strategy := "formula"
	if usedModel {
		strategy = "model"
	}
	logger.FromContext(r.Context()).Debug("risk estimated",
		logger.StudentID(reg.studentID),
		logger.CourseID(reg.courseID),
		logger.Week(week),
		logger.RiskLevel(level),
		logger.Strategy(strategy),
	)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveRisk(usedModel, level)
	}
}

// publicMessage returns the outermost domain error message.
func publicMessage(err error, fallback string) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return fallback
}
