package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/parc-api/internal/models"
	"github.com/noah-isme/parc-api/pkg/mailer"
	"github.com/noah-isme/parc-api/pkg/roster"
)

type enrollmentAccountStore interface {
	FindByEmail(ctx context.Context, exec sqlx.ExtContext, email string) (*models.Account, error)
	Create(ctx context.Context, exec sqlx.ExtContext, account *models.Account) error
}

type membershipWriter interface {
	AddStudents(ctx context.Context, exec sqlx.ExtContext, batchID string, accountIDs []string) (int64, error)
}

// EnrollmentService reconciles roster rows against student accounts and a batch's membership.
type EnrollmentService struct {
	accounts    enrollmentAccountStore
	memberships membershipWriter
	credentials credentialIssuer
	notifier    *NotificationService
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewEnrollmentService constructs the reconciler.
func NewEnrollmentService(accounts enrollmentAccountStore, memberships membershipWriter, credentials credentialIssuer, notifier *NotificationService, metrics *MetricsService, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{accounts: accounts, memberships: memberships, credentials: credentials, notifier: notifier, metrics: metrics, logger: logger}
}

// Reconcile walks rows in order inside exec, creating missing students and attaching every
// resolved student to the batch in one statement. Row-level problems are reported, not returned.
func (s *EnrollmentService) Reconcile(ctx context.Context, exec sqlx.ExtContext, batchID string, rows []roster.Row, outbox *Outbox) (models.EnrollmentReport, error) {
	report := models.EnrollmentReport{Errors: []string{}}
	resolved := make([]string, 0, len(rows))

	for _, row := range rows {
		name := strings.TrimSpace(row.Name)
		email := strings.ToLower(strings.TrimSpace(row.Email))
		if name == "" || email == "" || !row.EmailIsText {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("Row %d: Missing name or invalid email.", row.Line))
			s.metrics.RosterRow(RosterOutcomeSkipped)
			continue
		}

		account, err := s.accounts.FindByEmail(ctx, exec, email)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			account, err = s.createStudent(ctx, exec, name, email, outbox)
			if err != nil {
				return report, err
			}
			report.NewlyCreated++
			s.metrics.RosterRow(RosterOutcomeCreated)
		case err != nil:
			return report, fmt.Errorf("row %d: %w", row.Line, err)
		case account.Role != models.RoleStudent:
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("Row %d: Email %s exists but is not a student.", row.Line, email))
			s.metrics.RosterRow(RosterOutcomeSkipped)
			continue
		default:
			s.metrics.RosterRow(RosterOutcomeReused)
		}

		resolved = append(resolved, account.ID)
	}

	if _, err := s.memberships.AddStudents(ctx, exec, batchID, uniqueIDs(resolved)); err != nil {
		return report, err
	}
	report.AddedToBatch = len(resolved)

	s.logger.Info("roster reconciled",
		zap.String("batch_id", batchID),
		zap.Int("added_to_batch", report.AddedToBatch),
		zap.Int("newly_created", report.NewlyCreated),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

func (s *EnrollmentService) createStudent(ctx context.Context, exec sqlx.ExtContext, name, email string, outbox *Outbox) (*models.Account, error) {
	account := &models.Account{
		ID:                 uuid.NewString(),
		Email:              email,
		FullName:           name,
		Role:               models.RoleStudent,
		Active:             true,
		MustChangePassword: true,
	}
	notice := func(secret string) mailer.Message {
		return s.notifier.AccountCredentials(account, secret)
	}
	if err := s.credentials.Assign(account, notice, outbox); err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, exec, account); err != nil {
		return nil, err
	}
	return account, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
