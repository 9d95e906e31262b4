package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/parc-api/internal/models"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
	"github.com/noah-isme/parc-api/pkg/roster"
)

// batchCleanupTimeout bounds the removal of a half-imported batch once the request context is gone.
const batchCleanupTimeout = 5 * time.Second

const errBatchNotEmpty = "Cannot delete a batch that has students enrolled. Please remove all students from the batch first."

type batchStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Batch, error)
	ExistsByKey(ctx context.Context, exec sqlx.ExtContext, courseID, name string, collegeID *string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	CountStudents(ctx context.Context, exec sqlx.ExtContext, batchID string) (int, error)
	AddStudents(ctx context.Context, exec sqlx.ExtContext, batchID string, accountIDs []string) (int64, error)
	RemoveStudents(ctx context.Context, exec sqlx.ExtContext, batchID string, accountIDs []string) (int64, error)
	CourseExists(ctx context.Context, id string) (bool, error)
	CollegeExists(ctx context.Context, id string) (bool, error)
}

type roleFilter interface {
	FilterIDsByRole(ctx context.Context, exec sqlx.ExtContext, ids []string, role models.Role) ([]string, error)
}

type rosterReconciler interface {
	Reconcile(ctx context.Context, exec sqlx.ExtContext, batchID string, rows []roster.Row, outbox *Outbox) (models.EnrollmentReport, error)
}

// RosterUpload is a spreadsheet received from a client.
type RosterUpload struct {
	Filename string
	Reader   io.Reader
}

// BatchService administers batches and their enrollment.
type BatchService struct {
	db         txProvider
	batches    batchStore
	accounts   roleFilter
	reconciler rosterReconciler
	audit      auditWriter
	notifier   *NotificationService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewBatchService constructs the service.
func NewBatchService(db txProvider, batches batchStore, accounts roleFilter, reconciler rosterReconciler, audit auditWriter, notifier *NotificationService, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{db: db, batches: batches, accounts: accounts, reconciler: reconciler, audit: audit, notifier: notifier, validator: validate, logger: logger}
}

// CreateBatch validates references and the natural key, then inserts the batch.
func (s *BatchService) CreateBatch(ctx context.Context, req models.CreateBatchRequest) (*models.Batch, error) {
	if err := s.validateBatch(ctx, req); err != nil {
		return nil, err
	}
	batch := &models.Batch{CourseID: req.CourseID, CollegeID: req.CollegeID, Name: req.Name, StartDate: req.StartDate, EndDate: req.EndDate}
	if err := s.batches.Create(ctx, nil, batch); err != nil {
		return nil, asAppError(err, "failed to create batch")
	}
	return batch, nil
}

// DeleteBatch removes an empty batch.
func (s *BatchService) DeleteBatch(ctx context.Context, id string) error {
	return runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := s.find(ctx, tx, id); err != nil {
			return err
		}
		count, err := s.batches.CountStudents(ctx, tx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return appErrors.Clone(appErrors.ErrValidation, errBatchNotEmpty)
		}
		return s.batches.Delete(ctx, tx, id)
	})
}

// AddStudents attaches the listed accounts that hold the STUDENT role. Others are reported as ignored.
func (s *BatchService) AddStudents(ctx context.Context, actorID, batchID string, req models.BatchStudentsRequest) (*models.BatchMembershipResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid student list")
	}
	result := &models.BatchMembershipResult{BatchID: batchID}
	err := runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := s.find(ctx, tx, batchID); err != nil {
			return err
		}
		students, err := s.accounts.FilterIDsByRole(ctx, tx, req.StudentIDs, models.RoleStudent)
		if err != nil {
			return err
		}
		added, err := s.batches.AddStudents(ctx, tx, batchID, students)
		if err != nil {
			return err
		}
		result.Affected = int(added)
		result.Ignored = difference(req.StudentIDs, students)
		return s.audit.Create(ctx, tx, newAuditLog(actorID, models.AuditActionBatchMembership, "batch", batchID, map[string]interface{}{"op": "add", "student_ids": students}))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveStudents detaches the listed accounts.
func (s *BatchService) RemoveStudents(ctx context.Context, actorID, batchID string, req models.BatchStudentsRequest) (*models.BatchMembershipResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid student list")
	}
	result := &models.BatchMembershipResult{BatchID: batchID}
	err := runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := s.find(ctx, tx, batchID); err != nil {
			return err
		}
		removed, err := s.batches.RemoveStudents(ctx, tx, batchID, req.StudentIDs)
		if err != nil {
			return err
		}
		result.Affected = int(removed)
		return s.audit.Create(ctx, tx, newAuditLog(actorID, models.AuditActionBatchMembership, "batch", batchID, map[string]interface{}{"op": "remove", "student_ids": req.StudentIDs}))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateWithRoster creates a batch and enrolls the roster. If enrollment fails the new batch is deleted.
func (s *BatchService) CreateWithRoster(ctx context.Context, actorID string, req models.CreateBatchRequest, upload RosterUpload) (*models.BatchImportResult, error) {
	rows, err := parseRoster(upload)
	if err != nil {
		return nil, err
	}
	batch, err := s.CreateBatch(ctx, req)
	if err != nil {
		return nil, err
	}

	report, err := s.importRows(ctx, actorID, batch.ID, rows)
	if err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), batchCleanupTimeout)
		defer cancel()
		if delErr := s.batches.Delete(cleanupCtx, nil, batch.ID); delErr != nil {
			s.logger.Error("failed to remove batch after import failure", zap.String("batch_id", batch.ID), zap.Error(delErr))
		}
		return nil, err
	}
	return &models.BatchImportResult{Batch: batch, Report: report}, nil
}

// AppendRoster enrolls the roster into an existing batch. On failure nothing changes and the batch stays.
func (s *BatchService) AppendRoster(ctx context.Context, actorID, batchID string, upload RosterUpload) (*models.BatchImportResult, error) {
	rows, err := parseRoster(upload)
	if err != nil {
		return nil, err
	}
	batch, err := s.find(ctx, nil, batchID)
	if err != nil {
		return nil, err
	}
	report, err := s.importRows(ctx, actorID, batchID, rows)
	if err != nil {
		return nil, err
	}
	return &models.BatchImportResult{Batch: batch, Report: report}, nil
}

func (s *BatchService) importRows(ctx context.Context, actorID, batchID string, rows []roster.Row) (models.EnrollmentReport, error) {
	outbox := &Outbox{}
	var report models.EnrollmentReport
	err := runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var reconcileErr error
		report, reconcileErr = s.reconciler.Reconcile(ctx, tx, batchID, rows, outbox)
		if reconcileErr != nil {
			return reconcileErr
		}
		return s.audit.Create(ctx, tx, newAuditLog(actorID, models.AuditActionRosterImport, "batch", batchID, report))
	})
	if err != nil {
		s.logger.Warn("roster import rolled back", zap.String("batch_id", batchID), zap.Error(err))
		return models.EnrollmentReport{}, err
	}
	s.notifier.Deliver(outbox)
	return report, nil
}

func (s *BatchService) validateBatch(ctx context.Context, req models.CreateBatchRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Invalid(err, "invalid batch payload")
	}
	if req.EndDate.Before(req.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "batch end date must not precede its start date")
	}
	ok, err := s.batches.CourseExists(ctx, req.CourseID)
	if err != nil {
		return asAppError(err, "failed to check course")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, "course does not exist")
	}
	if req.CollegeID != nil && *req.CollegeID != "" {
		ok, err := s.batches.CollegeExists(ctx, *req.CollegeID)
		if err != nil {
			return asAppError(err, "failed to check college")
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, "college does not exist")
		}
	} else {
		req.CollegeID = nil
	}
	exists, err := s.batches.ExistsByKey(ctx, nil, req.CourseID, req.Name, req.CollegeID)
	if err != nil {
		return asAppError(err, "failed to check batch uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "a batch with this name already exists for the course and college")
	}
	return nil
}

func (s *BatchService) find(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Batch, error) {
	batch, err := s.batches.FindByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

func parseRoster(upload RosterUpload) ([]roster.Row, error) {
	if upload.Reader == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roster file is required")
	}
	rows, err := roster.Parse(upload.Filename, upload.Reader)
	if err != nil {
		return nil, appErrors.Invalid(err, "invalid roster file")
	}
	return rows, nil
}

func difference(all, keep []string) []string {
	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	var out []string
	for _, id := range all {
		if _, ok := kept[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
