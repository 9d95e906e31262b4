package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parc-api/internal/models"
	"github.com/noah-isme/parc-api/internal/service"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
	"github.com/noah-isme/parc-api/pkg/response"
)

type documentService interface {
	CreateCertification(ctx context.Context, employeeID string, req models.CertificationRequest, file *service.FileUpload) (*models.Certification, error)
	SaveEducationEntry(ctx context.Context, employeeID string, req models.EducationRequest, file *service.FileUpload) (*models.EducationEntry, error)
}

// DocumentHandler lets employees record qualifications on their own profile.
type DocumentHandler struct {
	service  documentService
	maxBytes int64
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(svc documentService, maxBytes int64) *DocumentHandler {
	return &DocumentHandler{service: svc, maxBytes: maxBytes}
}

// CreateCertification godoc
// @Summary Add certification
// @Tags Employee Documents
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param institute formData string true "Institute"
// @Param issued_on formData string true "Issue date (YYYY-MM-DD)"
// @Param expires_on formData string false "Expiry date (YYYY-MM-DD)"
// @Param file formData file false "Certificate"
// @Success 201 {object} response.Envelope
// @Router /employees/me/certifications [post]
func (h *DocumentHandler) CreateCertification(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.CertificationRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid certification payload"))
		return
	}
	file, err := openFormFile(c, "file", h.maxBytes)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.close()

	cert, err := h.service.CreateCertification(c.Request.Context(), claims.UserID, req, toFileUpload(file))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cert)
}

// SaveEducationEntry godoc
// @Summary Add education entry
// @Tags Employee Documents
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Qualification"
// @Param institute formData string true "Institute"
// @Param start_date formData string true "Start date (YYYY-MM-DD)"
// @Param end_date formData string false "End date (YYYY-MM-DD)"
// @Param file formData file false "Marksheet"
// @Success 201 {object} response.Envelope
// @Router /employees/me/education [post]
func (h *DocumentHandler) SaveEducationEntry(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.EducationRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid education payload"))
		return
	}
	file, err := openFormFile(c, "file", h.maxBytes)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.close()

	entry, err := h.service.SaveEducationEntry(c.Request.Context(), claims.UserID, req, toFileUpload(file))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

func toFileUpload(file *formUpload) *service.FileUpload {
	if file == nil {
		return nil
	}
	return &service.FileUpload{Filename: file.Filename, Reader: file.Reader}
}
