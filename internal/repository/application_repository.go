package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/parc-api/internal/models"
)

const applicationColumns = `id, kind, name, email, phone, experience_years, tech_stack, expertise_domains, skills, department, resume_path, status, submitted_at`

// ApplicationRepository stores trainer and employee applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

func (r *ApplicationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a pending application.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = time.Now().UTC()
	}
	if app.Status == "" {
		app.Status = models.ApplicationStatusPending
	}
	app.Email = strings.ToLower(strings.TrimSpace(app.Email))
	const query = `INSERT INTO applications (` + applicationColumns + `) VALUES (:id, :kind, :name, :email, :phone, :experience_years, :tech_stack, :expertise_domains, :skills, :department, :resume_path, :status, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// FindPending returns a pending application of the given kind.
func (r *ApplicationRepository) FindPending(ctx context.Context, exec sqlx.ExtContext, kind models.ApplicationKind, id string) (*models.Application, error) {
	const query = `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 AND kind = $2 AND status = $3`
	var app models.Application
	if err := sqlx.GetContext(ctx, r.exec(exec), &app, query, id, kind, models.ApplicationStatusPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find pending application: %w", err)
	}
	return &app, nil
}

// MarkApproved flips status to APPROVED.
func (r *ApplicationRepository) MarkApproved(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE applications SET status = $2 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, models.ApplicationStatusApproved); err != nil {
		return fmt.Errorf("approve application: %w", err)
	}
	return nil
}

// Delete removes an application.
func (r *ApplicationRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM applications WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	return nil
}

// ExistsByEmail checks uniqueness of email within a kind.
func (r *ApplicationRepository) ExistsByEmail(ctx context.Context, kind models.ApplicationKind, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM applications WHERE kind = $1 AND email = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, kind, strings.ToLower(strings.TrimSpace(email))); err != nil {
		return false, fmt.Errorf("check application email: %w", err)
	}
	return exists, nil
}
