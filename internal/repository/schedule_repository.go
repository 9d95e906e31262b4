package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/parc-api/internal/models"
)

// ScheduleRepository manages trainer schedules.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a schedule.
func (r *ScheduleRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error) {
	const query = `SELECT id, trainer_id, batch_id, start_at, end_at, created_at, updated_at FROM schedules WHERE id = $1`
	var schedule models.Schedule
	if err := sqlx.GetContext(ctx, r.exec(exec), &schedule, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find schedule: %w", err)
	}
	return &schedule, nil
}

// Create inserts a schedule.
func (r *ScheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	const query = `INSERT INTO schedules (id, trainer_id, batch_id, start_at, end_at, created_at, updated_at) VALUES (:id, :trainer_id, :batch_id, :start_at, :end_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, schedule); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// Update rewrites trainer, batch and window.
func (r *ScheduleRepository) Update(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	schedule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedules SET trainer_id = :trainer_id, batch_id = :batch_id, start_at = :start_at, end_at = :end_at, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, schedule)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a schedule.
func (r *ScheduleRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM schedules WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListEndTimes returns the end of every schedule assigned to the trainer.
func (r *ScheduleRepository) ListEndTimes(ctx context.Context, exec sqlx.ExtContext, trainerID string) ([]time.Time, error) {
	const query = `SELECT end_at FROM schedules WHERE trainer_id = $1`
	var ends []time.Time
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ends, query, trainerID); err != nil {
		return nil, fmt.Errorf("list schedule ends: %w", err)
	}
	return ends, nil
}
