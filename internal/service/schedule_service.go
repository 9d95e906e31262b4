package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/parc-api/internal/models"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
)

type scheduleStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error)
	Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	Update(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type accountLookup interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Account, error)
}

type lifecycleRecomputer interface {
	Lock(ctx context.Context, trainerIDs ...string) (func(), error)
	Recompute(ctx context.Context, exec sqlx.ExtContext, trainerID string, outbox *Outbox) (*models.LifecycleOutcome, error)
}

// ScheduleService mutates trainer schedules and recomputes the affected trainers in the same transaction.
type ScheduleService struct {
	db        txProvider
	schedules scheduleStore
	accounts  accountLookup
	lifecycle lifecycleRecomputer
	audit     auditWriter
	notifier  *NotificationService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService constructs the service.
func NewScheduleService(db txProvider, schedules scheduleStore, accounts accountLookup, lifecycle lifecycleRecomputer, audit auditWriter, notifier *NotificationService, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{db: db, schedules: schedules, accounts: accounts, lifecycle: lifecycle, audit: audit, notifier: notifier, validator: validate, logger: logger}
}

// Create stores a schedule and activates or extends the trainer.
func (s *ScheduleService) Create(ctx context.Context, actorID string, req models.ScheduleRequest) (*models.Schedule, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	release, err := s.lifecycle.Lock(ctx, req.TrainerID)
	if err != nil {
		return nil, err
	}
	defer release()

	schedule := &models.Schedule{TrainerID: req.TrainerID, BatchID: req.BatchID, StartAt: req.StartAt.UTC(), EndAt: req.EndAt.UTC()}
	outbox := &Outbox{}
	err = runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.ensureTrainer(ctx, tx, req.TrainerID); err != nil {
			return err
		}
		if err := s.schedules.Create(ctx, tx, schedule); err != nil {
			return err
		}
		if _, err := s.lifecycle.Recompute(ctx, tx, schedule.TrainerID, outbox); err != nil {
			return err
		}
		return s.audit.Create(ctx, tx, newAuditLog(actorID, models.AuditActionScheduleMutate, "schedule", schedule.ID, map[string]interface{}{"op": "create", "schedule": schedule}))
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Deliver(outbox)
	return schedule, nil
}

// Update rewrites a schedule. When the trainer changes both trainers are recomputed.
func (s *ScheduleService) Update(ctx context.Context, actorID, id string, req models.ScheduleRequest) (*models.Schedule, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	existing, err := s.find(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	release, err := s.lifecycle.Lock(ctx, existing.TrainerID, req.TrainerID)
	if err != nil {
		return nil, err
	}
	defer release()

	var updated *models.Schedule
	outbox := &Outbox{}
	err = runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		current, err := s.find(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.ensureTrainer(ctx, tx, req.TrainerID); err != nil {
			return err
		}
		previousTrainer := current.TrainerID
		current.TrainerID = req.TrainerID
		current.BatchID = req.BatchID
		current.StartAt = req.StartAt.UTC()
		current.EndAt = req.EndAt.UTC()
		if err := s.schedules.Update(ctx, tx, current); err != nil {
			return err
		}
		for _, trainerID := range affectedTrainers(previousTrainer, current.TrainerID) {
			if _, err := s.lifecycle.Recompute(ctx, tx, trainerID, outbox); err != nil {
				return err
			}
		}
		updated = current
		return s.audit.Create(ctx, tx, newAuditLog(actorID, models.AuditActionScheduleMutate, "schedule", id, map[string]interface{}{"op": "update", "previous_trainer_id": previousTrainer, "schedule": current}))
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Deliver(outbox)
	return updated, nil
}

// Delete removes a schedule and recomputes its trainer.
func (s *ScheduleService) Delete(ctx context.Context, actorID, id string) error {
	existing, err := s.find(ctx, nil, id)
	if err != nil {
		return err
	}
	release, err := s.lifecycle.Lock(ctx, existing.TrainerID)
	if err != nil {
		return err
	}
	defer release()

	outbox := &Outbox{}
	err = runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		current, err := s.find(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.schedules.Delete(ctx, tx, id); err != nil {
			return err
		}
		if _, err := s.lifecycle.Recompute(ctx, tx, current.TrainerID, outbox); err != nil {
			return err
		}
		return s.audit.Create(ctx, tx, newAuditLog(actorID, models.AuditActionScheduleMutate, "schedule", id, map[string]interface{}{"op": "delete", "trainer_id": current.TrainerID}))
	})
	if err != nil {
		return err
	}
	s.notifier.Deliver(outbox)
	return nil
}

func (s *ScheduleService) validate(req models.ScheduleRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Invalid(err, "invalid schedule payload")
	}
	if !req.EndAt.After(req.StartAt) {
		return appErrors.Clone(appErrors.ErrValidation, "schedule must end after it starts")
	}
	return nil
}

func (s *ScheduleService) find(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error) {
	schedule, err := s.schedules.FindByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	return schedule, nil
}

func (s *ScheduleService) ensureTrainer(ctx context.Context, exec sqlx.ExtContext, trainerID string) error {
	account, err := s.accounts.FindByID(ctx, exec, trainerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "trainer does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer")
	}
	if account.Role != models.RoleTrainer {
		return appErrors.Clone(appErrors.ErrValidation, "schedules can only be assigned to trainers")
	}
	return nil
}

func affectedTrainers(previous, current string) []string {
	if previous == current {
		return []string{current}
	}
	return []string{previous, current}
}
