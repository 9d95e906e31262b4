package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/parc-api/internal/models"
)

// BatchRepository persists batches and their student membership.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a batch.
func (r *BatchRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Batch, error) {
	const query = `SELECT id, course_id, college_id, name, start_date, end_date, created_at FROM batches WHERE id = $1`
	var batch models.Batch
	if err := sqlx.GetContext(ctx, r.exec(exec), &batch, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find batch: %w", err)
	}
	return &batch, nil
}

// ExistsByKey checks the (course, name, college) natural key; a NULL college is compared as a value.
func (r *BatchRepository) ExistsByKey(ctx context.Context, exec sqlx.ExtContext, courseID, name string, collegeID *string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM batches WHERE course_id = $1 AND name = $2 AND college_id IS NOT DISTINCT FROM $3)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, courseID, name, collegeID); err != nil {
		return false, fmt.Errorf("check batch key: %w", err)
	}
	return exists, nil
}

// Create inserts a batch.
func (r *BatchRepository) Create(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO batches (id, course_id, college_id, name, start_date, end_date, created_at) VALUES (:id, :course_id, :college_id, :name, :start_date, :end_date, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// Delete removes a batch row.
func (r *BatchRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM batches WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountStudents returns the enrolled student count.
func (r *BatchRepository) CountStudents(ctx context.Context, exec sqlx.ExtContext, batchID string) (int, error) {
	const query = `SELECT COUNT(*) FROM batch_students WHERE batch_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, batchID); err != nil {
		return 0, fmt.Errorf("count batch students: %w", err)
	}
	return count, nil
}

// AddStudents attaches accounts in one statement, ignoring existing memberships.
func (r *BatchRepository) AddStudents(ctx context.Context, exec sqlx.ExtContext, batchID string, accountIDs []string) (int64, error) {
	if len(accountIDs) == 0 {
		return 0, nil
	}
	const query = `INSERT INTO batch_students (batch_id, account_id, added_at) SELECT $1, ids.id, $3 FROM unnest($2::uuid[]) AS ids(id) ON CONFLICT (batch_id, account_id) DO NOTHING`
	res, err := r.exec(exec).ExecContext(ctx, query, batchID, pq.Array(accountIDs), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("add batch students: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

// RemoveStudents detaches accounts from the batch.
func (r *BatchRepository) RemoveStudents(ctx context.Context, exec sqlx.ExtContext, batchID string, accountIDs []string) (int64, error) {
	if len(accountIDs) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM batch_students WHERE batch_id = $1 AND account_id = ANY($2::uuid[])`
	res, err := r.exec(exec).ExecContext(ctx, query, batchID, pq.Array(accountIDs))
	if err != nil {
		return 0, fmt.Errorf("remove batch students: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

// CourseExists reports whether the course row is present.
func (r *BatchRepository) CourseExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM courses WHERE id = $1)`, id, "course")
}

// CollegeExists reports whether the college row is present.
func (r *BatchRepository) CollegeExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM colleges WHERE id = $1)`, id, "college")
}

func (r *BatchRepository) exists(ctx context.Context, query, id, label string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, fmt.Errorf("check %s: %w", label, err)
	}
	return exists, nil
}
