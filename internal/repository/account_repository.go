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
	"github.com/lib/pq"

	"github.com/noah-isme/parc-api/internal/models"
)

const accountColumns = `id, email, password_hash, full_name, phone, role, is_staff, active, must_change_password, access_expiry, department, expertise, experience_years, resume_path, last_login, created_at, updated_at`

// AccountRepository provides database access for login accounts.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new instance of AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns an account by identifier.
func (r *AccountRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 LIMIT 1`
	var account models.Account
	if err := sqlx.GetContext(ctx, r.exec(exec), &account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return &account, nil
}

// FindByIDForUpdate locks the account row for the rest of the transaction.
func (r *AccountRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	var account models.Account
	if err := sqlx.GetContext(ctx, r.exec(exec), &account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return &account, nil
}

// FindByEmail matches case-insensitively.
func (r *AccountRepository) FindByEmail(ctx context.Context, exec sqlx.ExtContext, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1 LIMIT 1`
	var account models.Account
	if err := sqlx.GetContext(ctx, r.exec(exec), &account, query, strings.ToLower(strings.TrimSpace(email))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return &account, nil
}

// Create inserts a new account, lowercasing its email.
func (r *AccountRepository) Create(ctx context.Context, exec sqlx.ExtContext, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))

	const query = `INSERT INTO accounts (id, email, password_hash, full_name, phone, role, is_staff, active, must_change_password, access_expiry, department, expertise, experience_years, resume_path, created_at, updated_at)
VALUES (:id, :email, :password_hash, :full_name, :phone, :role, :is_staff, :active, :must_change_password, :access_expiry, :department, :expertise, :experience_years, :resume_path, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Update writes mutable profile fields, including role and access expiry.
func (r *AccountRepository) Update(ctx context.Context, exec sqlx.ExtContext, account *models.Account) error {
	account.UpdatedAt = time.Now().UTC()
	const query = `UPDATE accounts SET full_name = :full_name, phone = :phone, role = :role, department = :department, expertise = :expertise, experience_years = :experience_years, access_expiry = :access_expiry, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, account); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// UpdateSecret stores a freshly issued password hash.
func (r *AccountRepository) UpdateSecret(ctx context.Context, exec sqlx.ExtContext, id, passwordHash string) error {
	const query = `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, passwordHash, time.Now().UTC()); err != nil {
		return fmt.Errorf("update account secret: %w", err)
	}
	return nil
}

// UpdateLifecycle persists the trainer access state.
func (r *AccountRepository) UpdateLifecycle(ctx context.Context, exec sqlx.ExtContext, id string, active, mustChange bool, expiry *time.Time) error {
	const query = `UPDATE accounts SET active = $2, must_change_password = $3, access_expiry = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, active, mustChange, expiry, time.Now().UTC()); err != nil {
		return fmt.Errorf("update account lifecycle: %w", err)
	}
	return nil
}

// SetPassword replaces the hash and clears the forced-change flag.
func (r *AccountRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE accounts SET password_hash = $2, must_change_password = FALSE, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, time.Now().UTC()); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

// Deactivate marks the account inactive without touching other fields.
func (r *AccountRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE accounts SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE accounts SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// FilterIDsByRole returns the subset of ids whose account has the given role.
func (r *AccountRepository) FilterIDsByRole(ctx context.Context, exec sqlx.ExtContext, ids []string, role models.Role) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id FROM accounts WHERE id = ANY($1) AND role = $2`
	var matched []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &matched, query, pq.Array(ids), role); err != nil {
		return nil, fmt.Errorf("filter accounts by role: %w", err)
	}
	return matched, nil
}

// ListExpiredTrainers returns active trainers whose access expired before now.
func (r *AccountRepository) ListExpiredTrainers(ctx context.Context, now time.Time) ([]string, error) {
	const query = `SELECT id FROM accounts WHERE role = $1 AND active = TRUE AND access_expiry IS NOT NULL AND access_expiry < $2 ORDER BY access_expiry`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, models.RoleTrainer, now); err != nil {
		return nil, fmt.Errorf("list expired trainers: %w", err)
	}
	return ids, nil
}
