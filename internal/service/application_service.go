package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/parc-api/internal/models"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
	"github.com/noah-isme/parc-api/pkg/mailer"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	ExistsByEmail(ctx context.Context, kind models.ApplicationKind, email string) (bool, error)
	FindPending(ctx context.Context, exec sqlx.ExtContext, kind models.ApplicationKind, id string) (*models.Application, error)
	MarkApproved(ctx context.Context, exec sqlx.ExtContext, id string) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type applicationAccountStore interface {
	FindByEmail(ctx context.Context, exec sqlx.ExtContext, email string) (*models.Account, error)
	Create(ctx context.Context, exec sqlx.ExtContext, account *models.Account) error
}

type fileStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Delete(filename string) error
}

// FileUpload is an attached file from a multipart request.
type FileUpload struct {
	Filename string
	Reader   io.Reader
}

// ApplicationService handles public applications and their review by administrators.
type ApplicationService struct {
	db           txProvider
	applications applicationStore
	accounts     applicationAccountStore
	credentials  credentialIssuer
	files        fileStore
	audit        auditWriter
	notifier     *NotificationService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewApplicationService constructs the workflow.
func NewApplicationService(db txProvider, applications applicationStore, accounts applicationAccountStore, credentials credentialIssuer, files fileStore, audit auditWriter, notifier *NotificationService, validate *validator.Validate, logger *zap.Logger) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		db:           db,
		applications: applications,
		accounts:     accounts,
		credentials:  credentials,
		files:        files,
		audit:        audit,
		notifier:     notifier,
		validator:    validate,
		logger:       logger,
	}
}

// ParseApplicationKind maps a route segment to a kind.
func ParseApplicationKind(raw string) (models.ApplicationKind, error) {
	switch models.ApplicationKind(strings.ToUpper(strings.TrimSpace(raw))) {
	case models.ApplicationKindTrainer:
		return models.ApplicationKindTrainer, nil
	case models.ApplicationKindEmployee:
		return models.ApplicationKindEmployee, nil
	}
	return "", appErrors.Clone(appErrors.ErrNotFound, "unknown application kind")
}

// Submit stores a pending application together with its resume.
func (s *ApplicationService) Submit(ctx context.Context, kind models.ApplicationKind, req models.SubmitApplicationRequest, resume FileUpload) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid application payload")
	}
	if resume.Reader == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resume is required")
	}

	exists, err := s.applications.ExistsByEmail(ctx, kind, req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check application email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an application with this email already exists")
	}

	id := uuid.NewString()
	path, err := s.files.SaveStream(fmt.Sprintf("resumes/%s/%s%s", strings.ToLower(string(kind)), id, strings.ToLower(filepath.Ext(resume.Filename))), resume.Reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store resume")
	}

	app := &models.Application{
		ID:               id,
		Kind:             kind,
		Name:             strings.TrimSpace(req.Name),
		Email:            req.Email,
		Phone:            req.Phone,
		ExperienceYears:  req.ExperienceYears,
		TechStack:        req.TechStack,
		ExpertiseDomains: req.ExpertiseDomains,
		Skills:           req.Skills,
		Department:       req.Department,
		ResumePath:       path,
	}
	if err := s.applications.Create(ctx, app); err != nil {
		if delErr := s.files.Delete(path); delErr != nil {
			s.logger.Warn("failed to remove orphaned resume", zap.String("path", path), zap.Error(delErr))
		}
		return nil, asAppError(err, "failed to store application")
	}
	return app, nil
}

// Approve turns a pending application into an account. Trainers start inactive without credentials;
// employees are activated and receive credentials immediately.
func (s *ApplicationService) Approve(ctx context.Context, actorID string, kind models.ApplicationKind, id string) (*models.Account, error) {
	outbox := &Outbox{}
	var account *models.Account
	err := runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		app, err := s.findPending(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		if _, err := s.accounts.FindByEmail(ctx, tx, app.Email); err == nil {
			return appErrors.Clone(appErrors.ErrConflict, "a user with this email already exists")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		account = accountFromApplication(app)
		if kind == models.ApplicationKindEmployee {
			created := account
			notice := func(secret string) mailer.Message {
				return s.notifier.AccountCredentials(created, secret)
			}
			if err := s.credentials.Assign(account, notice, outbox); err != nil {
				return err
			}
		}
		if err := s.accounts.Create(ctx, tx, account); err != nil {
			return err
		}
		if err := s.applications.MarkApproved(ctx, tx, app.ID); err != nil {
			return err
		}
		outbox.Add(s.notifier.ApplicationApproved(kind, account))
		return s.audit.Create(ctx, tx, newAuditLog(actorID, models.AuditActionApplicationApprove, "application", app.ID, map[string]interface{}{"kind": kind, "account_id": account.ID}))
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Deliver(outbox)
	s.logger.Info("application approved", zap.String("application_id", id), zap.String("kind", string(kind)), zap.String("account_id", account.ID))
	return account, nil
}

// Decline removes a pending application and notifies the applicant.
func (s *ApplicationService) Decline(ctx context.Context, actorID string, kind models.ApplicationKind, id string) error {
	outbox := &Outbox{}
	err := runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		app, err := s.findPending(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		outbox.Add(s.notifier.ApplicationDeclined(app))
		if err := s.applications.Delete(ctx, tx, app.ID); err != nil {
			return err
		}
		return s.audit.Create(ctx, tx, newAuditLog(actorID, models.AuditActionApplicationDecline, "application", app.ID, map[string]interface{}{"kind": kind, "email": app.Email}))
	})
	if err != nil {
		return err
	}
	s.notifier.Deliver(outbox)
	return nil
}

func (s *ApplicationService) findPending(ctx context.Context, exec sqlx.ExtContext, kind models.ApplicationKind, id string) (*models.Application, error) {
	app, err := s.applications.FindPending(ctx, exec, kind, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func accountFromApplication(app *models.Application) *models.Account {
	account := &models.Account{
		ID:              uuid.NewString(),
		Email:           app.Email,
		FullName:        app.Name,
		Phone:           app.Phone,
		ResumePath:      app.ResumePath,
		ExperienceYears: app.ExperienceYears,
	}
	switch app.Kind {
	case models.ApplicationKindTrainer:
		account.Role = models.RoleTrainer
		account.Expertise = app.ExpertiseDomains
	default:
		account.Role = models.RoleEmployee
		account.Active = true
		account.MustChangePassword = true
		account.Department = app.Department
		account.Expertise = app.Skills
	}
	return account
}
