package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/pmr_assist/backend/internal/models"
	"github.com/pmr_assist/backend/internal/notify"
	"github.com/pmr_assist/backend/internal/service"
)

// Store is everything the HTTP surface reads or writes directly.
type Store interface {
	service.Store
	service.RunRecorder
	ResetDailyCounters(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

type Handler struct {
	Engine    *service.Engine
	Store     Store
	Notifier  *notify.Service
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary List agents
// @Tags agents
// @Produce json
// @Param status query string false "Filter by availability status"
// @Success 200 {object} map[string]any
// @Router /api/agents [get]
func (h *Handler) AgentsList(c *gin.Context) {
	var status models.AgentStatus
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		parsed, err := models.ParseAgentStatus(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown agent status", err.Error())
			return
		}
		status = parsed
	}

	agents, err := h.Store.ListAgents(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to list agents")
		return
	}
	items := make([]models.AgentProfile, 0, len(agents))
	for _, a := range agents {
		if status != "" && a.Availability.Status != status {
			continue
		}
		items = append(items, a)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Mission details
// @Tags missions
// @Produce json
// @Param id path string true "Mission ID"
// @Success 200 {object} models.Mission
// @Failure 404 {object} map[string]any
// @Router /api/missions/{id} [get]
func (h *Handler) MissionDetails(c *gin.Context) {
	m, err := h.Store.GetMission(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to load mission")
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary Ranked candidates for a mission
// @Description Scores every agent for the mission without assigning anyone
// @Tags missions
// @Produce json
// @Param id path string true "Mission ID"
// @Success 200 {object} service.EligibilityResult
// @Router /api/missions/{id}/candidates [get]
func (h *Handler) MissionCandidates(c *gin.Context) {
	res, err := h.Engine.Candidates(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to rank candidates")
		return
	}
	c.JSON(http.StatusOK, res)
}

type AssignRequest struct {
	PriorityLevel string `json:"priority_level" validate:"omitempty,max=16"`
}

// @Summary Assign the best agent
// @Tags missions
// @Accept json
// @Produce json
// @Param id path string true "Mission ID"
// @Param body body AssignRequest false "Optional priority override"
// @Success 200 {object} service.AssignmentResult
// @Failure 409 {object} map[string]any
// @Router /api/missions/{id}/assign [post]
func (h *Handler) AssignMission(c *gin.Context) {
	var req AssignRequest
	if !h.bindOptional(c, &req) {
		return
	}
	var priority *models.PriorityLevel
	if req.PriorityLevel != "" {
		p, err := models.ParsePriorityLevel(req.PriorityLevel)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
			return
		}
		priority = &p
	}

	res, err := h.Engine.Assign(c.Request.Context(), c.Param("id"), priority)
	if err != nil {
		h.fail(c, err, "Assignment failed")
		return
	}
	h.Notifier.Dispatch(c.Request.Context(), res.Events)
	c.JSON(http.StatusOK, res)
}

// @Summary Re-evaluate a mission
// @Description Recomputes priority, then reassigns the agent when a trigger fires
// @Tags missions
// @Produce json
// @Param id path string true "Mission ID"
// @Success 200 {object} service.ReevaluationResult
// @Router /api/missions/{id}/reevaluate [post]
func (h *Handler) ReevaluateMission(c *gin.Context) {
	res, err := h.Engine.Reevaluate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Re-evaluation failed")
		return
	}
	h.Notifier.Dispatch(c.Request.Context(), res.Events)
	c.JSON(http.StatusOK, res)
}

type ReassignRequest struct {
	Reason string `json:"reason" validate:"required,oneof=agent_unavailable connection_risk critical_delay escalation_required incident"`
}

// @Summary Reassign a mission manually
// @Tags missions
// @Accept json
// @Produce json
// @Param id path string true "Mission ID"
// @Param body body ReassignRequest true "Reassignment reason"
// @Success 200 {object} service.ReassignmentResult
// @Router /api/missions/{id}/reassign [post]
func (h *Handler) ReassignMission(c *gin.Context) {
	var req ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	reason, err := models.ParseReassignmentReason(req.Reason)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown reason", err.Error())
		return
	}

	res, err := h.Engine.Reassign(c.Request.Context(), c.Param("id"), reason)
	if err != nil {
		h.fail(c, err, "Reassignment failed")
		return
	}
	h.Notifier.Dispatch(c.Request.Context(), res.Events)
	c.JSON(http.StatusOK, res)
}

// @Summary Run a monitoring sweep
// @Tags monitor
// @Produce json
// @Success 200 {object} service.MonitorResult
// @Router /api/monitor [post]
func (h *Handler) Monitor(c *gin.Context) {
	res, err := h.Engine.RecordedMonitor(c.Request.Context(), h.Store)
	if err != nil {
		h.Logger.Error().Err(err).Msg("monitor sweep failed")
		writeError(c, http.StatusInternalServerError, "MONITOR_ERROR", "Monitor sweep failed", err.Error())
		return
	}
	h.Notifier.Dispatch(c.Request.Context(), res.Events)
	c.JSON(http.StatusOK, res)
}

type AvailabilityRequest struct {
	Status            string   `json:"status" validate:"omitempty,oneof=available busy break on_mission off_duty"`
	MaxMissionsPerDay *int     `json:"max_missions_per_day" validate:"omitempty,min=0,max=50"`
	Lat               *float64 `json:"lat" validate:"omitempty,latitude"`
	Lon               *float64 `json:"lon" validate:"omitempty,longitude"`
	ExpectedVersion   int64    `json:"expected_version" validate:"omitempty,min=1"`
}

func (r AvailabilityRequest) patch() (models.AvailabilityPatch, error) {
	p := models.AvailabilityPatch{MaxMissionsPerDay: r.MaxMissionsPerDay, ExpectedVersion: r.ExpectedVersion}
	if r.Status != "" {
		status, err := models.ParseAgentStatus(r.Status)
		if err != nil {
			return models.AvailabilityPatch{}, err
		}
		p.Status = &status
	}
	switch {
	case r.Lat != nil && r.Lon != nil:
		p.CurrentLocation = &models.GeoPoint{Lat: *r.Lat, Lon: *r.Lon}
	case r.Lat != nil || r.Lon != nil:
		return models.AvailabilityPatch{}, errors.New("lat and lon must be set together")
	}
	return p, nil
}

// @Summary Update agent availability
// @Description Partial update guarded by the availability version when expected_version is set
// @Tags agents
// @Accept json
// @Produce json
// @Param id path string true "Agent ID"
// @Param body body AvailabilityRequest true "Availability changes"
// @Success 200 {object} models.AgentAvailability
// @Failure 409 {object} map[string]any
// @Router /api/agents/{id}/availability [patch]
func (h *Handler) PatchAvailability(c *gin.Context) {
	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	patch, err := req.patch()
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	av, err := h.Store.UpdateAvailability(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err, "Failed to update availability")
		return
	}
	c.JSON(http.StatusOK, av)
}

// @Summary Reset daily mission counters
// @Tags agents
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/agents/reset-daily [post]
func (h *Handler) ResetDaily(c *gin.Context) {
	n, err := h.Store.ResetDailyCounters(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to reset counters")
		return
	}
	h.Logger.Info().Int64("agents", n).Msg("daily counters reset")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "agents_updated": n})
}

// @Summary Latest monitor run
// @Tags runs
// @Produce json
// @Success 200 {object} models.Run
// @Router /api/runs/latest [get]
func (h *Handler) RunsLatest(c *gin.Context) {
	result, err := h.Store.GetLatestRun(c.Request.Context())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "No runs found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load run", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

// bindOptional accepts an empty body.
func (h *Handler) bindOptional(c *gin.Context, req any) bool {
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(req); err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
			return false
		}
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", message, err.Error())
	case errors.Is(err, models.ErrConflict):
		writeError(c, http.StatusConflict, "CONFLICT", message, err.Error())
	case errors.Is(err, models.ErrMissionInactive):
		writeError(c, http.StatusConflict, "MISSION_INACTIVE", message, err.Error())
	case errors.Is(err, models.ErrAgentUnavailable):
		writeError(c, http.StatusConflict, "AGENT_UNAVAILABLE", message, err.Error())
	case errors.Is(err, models.ErrInvalidProfile):
		writeError(c, http.StatusUnprocessableEntity, "INVALID_PROFILE", message, err.Error())
	default:
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg(message)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, err.Error())
	}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
