package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/parc-api/internal/models"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
	"github.com/noah-isme/parc-api/pkg/mailer"
)

// Lifecycle transition labels.
const (
	TransitionActivated   = "activated"
	TransitionExtended    = "extended"
	TransitionDeactivated = "deactivated"
)

// LifecycleDecision is the outcome of evaluating a trainer against their schedules.
type LifecycleDecision struct {
	Next             models.TrainerState
	ResetCredentials bool
	Persist          bool
	Transition       string
}

// DecideTrainerLifecycle derives the next trainer state from the end times of their schedules.
// Only windows ending at or after now count. Credentials are reset when the trainer is inactive,
// still flagged to change their password, or holding an already expired deadline.
func DecideTrainerLifecycle(current models.TrainerState, scheduleEnds []time.Time, now time.Time) LifecycleDecision {
	var latest *time.Time
	for _, end := range scheduleEnds {
		if end.Before(now) {
			continue
		}
		if latest == nil || end.After(*latest) {
			e := end
			latest = &e
		}
	}

	if latest == nil {
		next := models.TrainerState{Active: false, MustChangePassword: current.MustChangePassword}
		if !current.Active && current.AccessExpiry == nil {
			return LifecycleDecision{Next: next}
		}
		return LifecycleDecision{Next: next, Persist: true, Transition: TransitionDeactivated}
	}

	expired := current.AccessExpiry != nil && current.AccessExpiry.Before(now)
	if current.MustChangePassword || !current.Active || expired {
		return LifecycleDecision{
			Next:             models.TrainerState{Active: true, MustChangePassword: false, AccessExpiry: latest},
			ResetCredentials: true,
			Persist:          true,
			Transition:       TransitionActivated,
		}
	}

	if current.AccessExpiry == nil || !current.AccessExpiry.Equal(*latest) {
		return LifecycleDecision{
			Next:       models.TrainerState{Active: true, MustChangePassword: current.MustChangePassword, AccessExpiry: latest},
			Persist:    true,
			Transition: TransitionExtended,
		}
	}

	return LifecycleDecision{Next: current}
}

type lifecycleAccountStore interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Account, error)
	UpdateLifecycle(ctx context.Context, exec sqlx.ExtContext, id string, active, mustChange bool, expiry *time.Time) error
}

type scheduleEndLister interface {
	ListEndTimes(ctx context.Context, exec sqlx.ExtContext, trainerID string) ([]time.Time, error)
}

type credentialIssuer interface {
	Assign(account *models.Account, notice CredentialNotice, outbox *Outbox) error
	Issue(ctx context.Context, exec sqlx.ExtContext, account *models.Account, notice CredentialNotice, outbox *Outbox) error
}

// LifecycleService keeps trainer activation and access expiry consistent with their schedules.
type LifecycleService struct {
	db          txProvider
	accounts    lifecycleAccountStore
	schedules   scheduleEndLister
	credentials credentialIssuer
	notifier    *NotificationService
	locker      keyLocker
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewLifecycleService constructs the manager. locker may be nil.
func NewLifecycleService(db txProvider, accounts lifecycleAccountStore, schedules scheduleEndLister, credentials credentialIssuer, notifier *NotificationService, locker keyLocker, metrics *MetricsService, logger *zap.Logger) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		db:          db,
		accounts:    accounts,
		schedules:   schedules,
		credentials: credentials,
		notifier:    notifier,
		locker:      locker,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Lock serialises recomputes for the given trainers when a locker is configured.
func (s *LifecycleService) Lock(ctx context.Context, trainerIDs ...string) (func(), error) {
	return lockKeys(ctx, s.locker, trainerIDs...)
}

// ComputeTrainerLifecycle recomputes one trainer in its own transaction and delivers any notice after commit.
func (s *LifecycleService) ComputeTrainerLifecycle(ctx context.Context, trainerID string) (*models.LifecycleOutcome, error) {
	release, err := s.Lock(ctx, trainerID)
	if err != nil {
		return nil, err
	}
	defer release()

	outbox := &Outbox{}
	var outcome *models.LifecycleOutcome
	err = runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var recomputeErr error
		outcome, recomputeErr = s.recompute(ctx, tx, trainerID, outbox, true)
		return recomputeErr
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Deliver(outbox)
	return outcome, nil
}

// Recompute evaluates and persists the trainer state inside exec. Credential notices are appended to outbox.
// Accounts that no longer hold the trainer role are left untouched.
func (s *LifecycleService) Recompute(ctx context.Context, exec sqlx.ExtContext, trainerID string, outbox *Outbox) (*models.LifecycleOutcome, error) {
	return s.recompute(ctx, exec, trainerID, outbox, false)
}

func (s *LifecycleService) recompute(ctx context.Context, exec sqlx.ExtContext, trainerID string, outbox *Outbox, requireTrainer bool) (*models.LifecycleOutcome, error) {
	account, err := s.accounts.FindByIDForUpdate(ctx, exec, trainerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trainer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer")
	}
	if account.Role != models.RoleTrainer {
		if requireTrainer {
			return nil, appErrors.Clone(appErrors.ErrValidation, "account is not a trainer")
		}
		s.logger.Debug("skipping lifecycle for non-trainer account", zap.String("account_id", trainerID), zap.String("role", string(account.Role)))
		return &models.LifecycleOutcome{TrainerID: trainerID, Active: account.Active, AccessExpiry: account.AccessExpiry}, nil
	}

	ends, err := s.schedules.ListEndTimes(ctx, exec, trainerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer schedules")
	}

	current := models.TrainerState{Active: account.Active, MustChangePassword: account.MustChangePassword, AccessExpiry: account.AccessExpiry}
	decision := DecideTrainerLifecycle(current, ends, s.now().UTC())
	outcome := &models.LifecycleOutcome{
		TrainerID:    trainerID,
		Active:       decision.Next.Active,
		AccessExpiry: decision.Next.AccessExpiry,
	}
	if !decision.Persist {
		return outcome, nil
	}

	if decision.ResetCredentials {
		expiry := *decision.Next.AccessExpiry
		notice := func(secret string) mailer.Message {
			return s.notifier.TrainerCredentials(account, secret, expiry)
		}
		if err := s.credentials.Issue(ctx, exec, account, notice, outbox); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue trainer credentials")
		}
		outcome.CredentialsIssued = true
	}

	next := decision.Next
	if err := s.accounts.UpdateLifecycle(ctx, exec, trainerID, next.Active, next.MustChangePassword, next.AccessExpiry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update trainer access")
	}
	outcome.Changed = true

	s.metrics.LifecycleTransition(decision.Transition)
	s.logger.Info("trainer lifecycle updated",
		zap.String("trainer_id", trainerID),
		zap.String("transition", decision.Transition),
		zap.Bool("active", next.Active),
		zap.Timep("access_expiry", next.AccessExpiry),
	)
	return outcome, nil
}
