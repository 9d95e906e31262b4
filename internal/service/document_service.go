package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/parc-api/internal/models"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
)

type documentStore interface {
	CreateCertification(ctx context.Context, exec sqlx.ExtContext, cert *models.Certification) error
	CreateEducation(ctx context.Context, exec sqlx.ExtContext, entry *models.EducationEntry) error
	DocumentExists(ctx context.Context, exec sqlx.ExtContext, employeeID, filePath string) (bool, error)
	CreateDocument(ctx context.Context, exec sqlx.ExtContext, doc *models.EmployeeDocument) error
}

// DocumentService records employee qualifications and registers their files on the profile.
type DocumentService struct {
	db        txProvider
	documents documentStore
	files     fileStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDocumentService constructs the service.
func NewDocumentService(db txProvider, documents documentStore, files fileStore, validate *validator.Validate, logger *zap.Logger) *DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{db: db, documents: documents, files: files, validator: validate, logger: logger}
}

// CreateCertification stores a certification and, when a file is attached, a matching profile document.
func (s *DocumentService) CreateCertification(ctx context.Context, employeeID string, req models.CertificationRequest, file *FileUpload) (*models.Certification, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid certification payload")
	}
	if req.ExpiresOn != nil && req.ExpiresOn.Before(req.IssuedOn) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "certification cannot expire before it is issued")
	}

	path, err := s.store(file, "certifications", employeeID)
	if err != nil {
		return nil, err
	}
	cert := &models.Certification{
		EmployeeID: employeeID,
		Title:      strings.TrimSpace(req.Title),
		Institute:  strings.TrimSpace(req.Institute),
		IssuedOn:   req.IssuedOn,
		ExpiresOn:  req.ExpiresOn,
		FilePath:   path,
	}
	err = runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.documents.CreateCertification(ctx, tx, cert); err != nil {
			return err
		}
		return s.register(ctx, tx, employeeID, fmt.Sprintf("Certificate: %s", cert.Title), path)
	})
	if err != nil {
		s.discard(path)
		return nil, err
	}
	return cert, nil
}

// SaveEducationEntry stores an education entry and registers its marksheet when attached.
func (s *DocumentService) SaveEducationEntry(ctx context.Context, employeeID string, req models.EducationRequest, file *FileUpload) (*models.EducationEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid education payload")
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "education end date must not precede its start date")
	}

	path, err := s.store(file, "marksheets", employeeID)
	if err != nil {
		return nil, err
	}
	entry := &models.EducationEntry{
		EmployeeID: employeeID,
		Title:      strings.TrimSpace(req.Title),
		Institute:  strings.TrimSpace(req.Institute),
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		FilePath:   path,
	}
	err = runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.documents.CreateEducation(ctx, tx, entry); err != nil {
			return err
		}
		return s.register(ctx, tx, employeeID, fmt.Sprintf("Marksheet: %s (%s)", entry.Title, entry.Institute), path)
	})
	if err != nil {
		s.discard(path)
		return nil, err
	}
	return entry, nil
}

// register adds a profile document unless the same file is already registered.
func (s *DocumentService) register(ctx context.Context, exec sqlx.ExtContext, employeeID, title string, path *string) error {
	if path == nil {
		return nil
	}
	exists, err := s.documents.DocumentExists(ctx, exec, employeeID, *path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.documents.CreateDocument(ctx, exec, &models.EmployeeDocument{EmployeeID: employeeID, Title: title, FilePath: *path})
}

func (s *DocumentService) store(file *FileUpload, folder, employeeID string) (*string, error) {
	if file == nil || file.Reader == nil {
		return nil, nil
	}
	name := fmt.Sprintf("%s/%s/%s%s", folder, employeeID, uuid.NewString(), strings.ToLower(filepath.Ext(file.Filename)))
	path, err := s.files.SaveStream(name, file.Reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}
	return &path, nil
}

func (s *DocumentService) discard(path *string) {
	if path == nil {
		return
	}
	if err := s.files.Delete(*path); err != nil {
		s.logger.Warn("failed to remove orphaned document", zap.String("path", *path), zap.Error(err))
	}
}
