package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parc-api/internal/models"
	"github.com/noah-isme/parc-api/internal/service"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
	"github.com/noah-isme/parc-api/pkg/response"
)

type batchService interface {
	CreateBatch(ctx context.Context, req models.CreateBatchRequest) (*models.Batch, error)
	DeleteBatch(ctx context.Context, id string) error
	AddStudents(ctx context.Context, actorID, batchID string, req models.BatchStudentsRequest) (*models.BatchMembershipResult, error)
	RemoveStudents(ctx context.Context, actorID, batchID string, req models.BatchStudentsRequest) (*models.BatchMembershipResult, error)
	CreateWithRoster(ctx context.Context, actorID string, req models.CreateBatchRequest, upload service.RosterUpload) (*models.BatchImportResult, error)
	AppendRoster(ctx context.Context, actorID, batchID string, upload service.RosterUpload) (*models.BatchImportResult, error)
}

// BatchHandler exposes batch administration and roster imports.
type BatchHandler struct {
	service        batchService
	maxRosterBytes int64
}

// NewBatchHandler constructs the handler.
func NewBatchHandler(svc batchService, maxRosterBytes int64) *BatchHandler {
	return &BatchHandler{service: svc, maxRosterBytes: maxRosterBytes}
}

// Create godoc
// @Summary Create batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body models.CreateBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	var req models.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid batch payload"))
		return
	}
	batch, err := h.service.CreateBatch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}

// Delete godoc
// @Summary Delete batch
// @Description Only empty batches can be deleted
// @Tags Batches
// @Param id path string true "Batch ID"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /batches/{id} [delete]
func (h *BatchHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteBatch(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddStudents godoc
// @Summary Attach students
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body models.BatchStudentsRequest true "Student IDs"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/students [post]
func (h *BatchHandler) AddStudents(c *gin.Context) {
	var req models.BatchStudentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid student list"))
		return
	}
	result, err := h.service.AddStudents(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// RemoveStudents godoc
// @Summary Detach students
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body models.BatchStudentsRequest true "Student IDs"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/students [delete]
func (h *BatchHandler) RemoveStudents(c *gin.Context) {
	var req models.BatchStudentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid student list"))
		return
	}
	result, err := h.service.RemoveStudents(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Import godoc
// @Summary Create batch from roster
// @Description Creates the batch and enrolls the roster. The batch is removed if enrollment fails.
// @Tags Batches
// @Accept multipart/form-data
// @Produce json
// @Param course_id formData string true "Course ID"
// @Param college_id formData string false "College ID"
// @Param name formData string true "Batch name"
// @Param start_date formData string true "Start date (YYYY-MM-DD)"
// @Param end_date formData string true "End date (YYYY-MM-DD)"
// @Param file formData file true "Roster (.xlsx or .csv) with name and email columns"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /batches/import [post]
func (h *BatchHandler) Import(c *gin.Context) {
	var req models.CreateBatchRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid batch payload"))
		return
	}
	if req.CollegeID != nil && *req.CollegeID == "" {
		req.CollegeID = nil
	}
	file, err := h.rosterFile(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.close()

	result, err := h.service.CreateWithRoster(c.Request.Context(), actorID(c), req, service.RosterUpload{Filename: file.Filename, Reader: file.Reader})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Append godoc
// @Summary Enroll roster into batch
// @Tags Batches
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Batch ID"
// @Param file formData file true "Roster (.xlsx or .csv) with name and email columns"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /batches/{id}/import [post]
func (h *BatchHandler) Append(c *gin.Context) {
	file, err := h.rosterFile(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.close()

	result, err := h.service.AppendRoster(c.Request.Context(), actorID(c), c.Param("id"), service.RosterUpload{Filename: file.Filename, Reader: file.Reader})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

func (h *BatchHandler) rosterFile(c *gin.Context) (*formUpload, error) {
	file, err := openFormFile(c, "file", h.maxRosterBytes)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roster file is required")
	}
	return file, nil
}
