package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/parc-api/internal/authz"
	"github.com/noah-isme/parc-api/internal/models"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
	"github.com/noah-isme/parc-api/pkg/mailer"
)

type accountStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, exec sqlx.ExtContext, email string) (*models.Account, error)
	Create(ctx context.Context, exec sqlx.ExtContext, account *models.Account) error
	Update(ctx context.Context, exec sqlx.ExtContext, account *models.Account) error
}

type actionAuthorizer interface {
	Authorize(actor *authz.Actor, action authz.Action, res authz.Resource) authz.Decision
}

// AccountService manages accounts created directly by administrators.
type AccountService struct {
	db          txProvider
	accounts    accountStore
	credentials credentialIssuer
	lifecycle   lifecycleRecomputer
	authorizer  actionAuthorizer
	audit       auditWriter
	notifier    *NotificationService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAccountService constructs the service.
func NewAccountService(db txProvider, accounts accountStore, credentials credentialIssuer, lifecycle lifecycleRecomputer, authorizer actionAuthorizer, audit auditWriter, notifier *NotificationService, validate *validator.Validate, logger *zap.Logger) *AccountService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{db: db, accounts: accounts, credentials: credentials, lifecycle: lifecycle, authorizer: authorizer, audit: audit, notifier: notifier, validator: validate, logger: logger}
}

// Get returns an account by id.
func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	return account, nil
}

// Create inserts an account. Trainers start inactive without credentials; every other role
// receives credentials, and students and employees must change them on first login.
func (s *AccountService) Create(ctx context.Context, actor *authz.Actor, req models.CreateAccountRequest) (*models.Account, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid account payload")
	}

	account := &models.Account{
		ID:              uuid.NewString(),
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		FullName:        strings.TrimSpace(req.FullName),
		Phone:           req.Phone,
		Role:            req.Role,
		Staff:           req.Staff,
		Department:      req.Department,
		Expertise:       req.Expertise,
		ExperienceYears: req.ExperienceYears,
	}
	if req.Staff && !actor.Elevated() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can grant staff access")
	}

	outbox := &Outbox{}
	err := runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := s.accounts.FindByEmail(ctx, tx, account.Email); err == nil {
			return appErrors.Clone(appErrors.ErrConflict, "a user with this email already exists")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if account.Role != models.RoleTrainer {
			account.Active = true
			account.MustChangePassword = account.Role == models.RoleStudent || account.Role == models.RoleEmployee
			notice := func(secret string) mailer.Message {
				return s.notifier.AccountCredentials(account, secret)
			}
			if err := s.credentials.Assign(account, notice, outbox); err != nil {
				return err
			}
		}
		if err := s.accounts.Create(ctx, tx, account); err != nil {
			return err
		}
		return s.audit.Create(ctx, tx, newAuditLog(actorID(actor), models.AuditActionAccountCreate, "account", account.ID, map[string]interface{}{"role": account.Role, "email": account.Email}))
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Deliver(outbox)
	return account, nil
}

// Update applies profile changes. Changing the role needs the change-role permission.
// Leaving the trainer role clears the access deadline and entering it recomputes the
// trainer lifecycle from the account's schedules.
func (s *AccountService) Update(ctx context.Context, actor *authz.Actor, id string, req models.UpdateAccountRequest) (*models.Account, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid account payload")
	}
	if req.Role != nil && *req.Role == models.RoleTrainer {
		release, err := s.lifecycle.Lock(ctx, id)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	var updated *models.Account
	outbox := &Outbox{}
	err := runInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		account, err := s.accounts.FindByID(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "account not found")
			}
			return err
		}

		promoted := false
		if req.Role != nil && *req.Role != account.Role {
			decision := s.authorizer.Authorize(actor, authz.ActionAccountChangeRole, authz.Resource{OwnerID: account.ID, TargetRole: account.Role})
			if err := decision.Err(); err != nil {
				return err
			}
			if account.Role == models.RoleTrainer {
				account.AccessExpiry = nil
			}
			promoted = *req.Role == models.RoleTrainer
			account.Role = *req.Role
		}
		if req.FullName != nil {
			account.FullName = strings.TrimSpace(*req.FullName)
		}
		if req.Phone != nil {
			account.Phone = *req.Phone
		}
		if req.Department != nil {
			account.Department = *req.Department
		}
		if req.Expertise != nil {
			account.Expertise = *req.Expertise
		}
		if req.ExperienceYears != nil {
			account.ExperienceYears = *req.ExperienceYears
		}

		if err := s.accounts.Update(ctx, tx, account); err != nil {
			return err
		}
		if promoted {
			if _, err := s.lifecycle.Recompute(ctx, tx, account.ID, outbox); err != nil {
				return err
			}
			if account, err = s.accounts.FindByID(ctx, tx, account.ID); err != nil {
				return err
			}
		}
		updated = account
		return s.audit.Create(ctx, tx, newAuditLog(actorID(actor), models.AuditActionAccountUpdate, "account", account.ID, req))
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Deliver(outbox)
	return updated, nil
}
