package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parc-api/internal/models"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
	"github.com/noah-isme/parc-api/pkg/response"
)

type scheduleService interface {
	Create(ctx context.Context, actorID string, req models.ScheduleRequest) (*models.Schedule, error)
	Update(ctx context.Context, actorID, id string, req models.ScheduleRequest) (*models.Schedule, error)
	Delete(ctx context.Context, actorID, id string) error
}

type lifecycleService interface {
	ComputeTrainerLifecycle(ctx context.Context, trainerID string) (*models.LifecycleOutcome, error)
}

// ScheduleHandler manages schedule endpoints and trainer recomputation.
type ScheduleHandler struct {
	service   scheduleService
	lifecycle lifecycleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc scheduleService, lifecycle lifecycleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc, lifecycle: lifecycle}
}

// Create godoc
// @Summary Create schedule
// @Description Stores the schedule and activates or extends the trainer
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body models.ScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req models.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid schedule payload"))
		return
	}
	schedule, err := h.service.Create(c.Request.Context(), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schedule)
}

// Update godoc
// @Summary Update schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body models.ScheduleRequest true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req models.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid schedule payload"))
		return
	}
	schedule, err := h.service.Update(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule)
}

// Delete godoc
// @Summary Delete schedule
// @Tags Schedules
// @Param id path string true "Schedule ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RecomputeTrainer godoc
// @Summary Recompute trainer access
// @Tags Schedules
// @Produce json
// @Param id path string true "Trainer ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /trainers/{id}/lifecycle [post]
func (h *ScheduleHandler) RecomputeTrainer(c *gin.Context) {
	outcome, err := h.lifecycle.ComputeTrainerLifecycle(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome)
}
