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

type applicationService interface {
	Submit(ctx context.Context, kind models.ApplicationKind, req models.SubmitApplicationRequest, resume service.FileUpload) (*models.Application, error)
	Approve(ctx context.Context, actorID string, kind models.ApplicationKind, id string) (*models.Account, error)
	Decline(ctx context.Context, actorID string, kind models.ApplicationKind, id string) error
}

// ApplicationHandler exposes trainer and employee applications.
type ApplicationHandler struct {
	service        applicationService
	maxResumeBytes int64
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(svc applicationService, maxResumeBytes int64) *ApplicationHandler {
	return &ApplicationHandler{service: svc, maxResumeBytes: maxResumeBytes}
}

// Submit godoc
// @Summary Submit application
// @Tags Applications
// @Accept multipart/form-data
// @Produce json
// @Param kind path string true "trainer or employee"
// @Param name formData string true "Full name"
// @Param email formData string true "Email"
// @Param phone formData string true "Phone"
// @Param experience formData int false "Years of experience"
// @Param resume formData file true "Resume"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{kind} [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	kind, err := service.ParseApplicationKind(c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.SubmitApplicationRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid application payload"))
		return
	}
	resume, err := openFormFile(c, "resume", h.maxResumeBytes)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer resume.close()

	upload := service.FileUpload{}
	if resume != nil {
		upload = service.FileUpload{Filename: resume.Filename, Reader: resume.Reader}
	}
	app, err := h.service.Submit(c.Request.Context(), kind, req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// Approve godoc
// @Summary Approve application
// @Tags Applications
// @Produce json
// @Param kind path string true "trainer or employee"
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{kind}/{id}/approve [post]
func (h *ApplicationHandler) Approve(c *gin.Context) {
	kind, err := service.ParseApplicationKind(c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}
	account, err := h.service.Approve(c.Request.Context(), actorID(c), kind, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account)
}

// Decline godoc
// @Summary Decline application
// @Tags Applications
// @Param kind path string true "trainer or employee"
// @Param id path string true "Application ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{kind}/{id}/decline [post]
func (h *ApplicationHandler) Decline(c *gin.Context) {
	kind, err := service.ParseApplicationKind(c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Decline(c.Request.Context(), actorID(c), kind, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}
