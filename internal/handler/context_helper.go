package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parc-api/internal/authz"
	"github.com/noah-isme/parc-api/internal/middleware"
	"github.com/noah-isme/parc-api/internal/models"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

func actorFromContext(c *gin.Context) *authz.Actor {
	return middleware.Actor(c)
}

type formUpload struct {
	Filename string
	Reader   io.ReadCloser
}

// openFormFile opens an optional multipart file. A missing field yields nil without error.
// maxBytes of zero disables the size check.
func openFormFile(c *gin.Context, field string, maxBytes int64) (*formUpload, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}
	if maxBytes > 0 && fileHeader.Size > maxBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, field+" exceeds the maximum upload size")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	return &formUpload{Filename: fileHeader.Filename, Reader: src}, nil
}

func (u *formUpload) close() {
	if u != nil && u.Reader != nil {
		_ = u.Reader.Close()
	}
}
