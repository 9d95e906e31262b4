package models

import "time"

// Schedule assigns a trainer to a time window, optionally for a batch.
type Schedule struct {
	ID        string    `db:"id" json:"id"`
	TrainerID string    `db:"trainer_id" json:"trainer_id"`
	BatchID   *string   `db:"batch_id" json:"batch_id,omitempty"`
	StartAt   time.Time `db:"start_at" json:"start_at"`
	EndAt     time.Time `db:"end_at" json:"end_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduleRequest is the create/update payload for schedules.
type ScheduleRequest struct {
	TrainerID string    `json:"trainer_id" validate:"required"`
	BatchID   *string   `json:"batch_id"`
	StartAt   time.Time `json:"start_at" validate:"required"`
	EndAt     time.Time `json:"end_at" validate:"required"`
}

// TrainerState is the lifecycle-relevant slice of a trainer account.
type TrainerState struct {
	Active             bool
	MustChangePassword bool
	AccessExpiry       *time.Time
}

// LifecycleOutcome summarises one recompute for callers and audit.
type LifecycleOutcome struct {
	TrainerID         string     `json:"trainer_id"`
	Active            bool       `json:"active"`
	AccessExpiry      *time.Time `json:"access_expiry,omitempty"`
	CredentialsIssued bool       `json:"credentials_issued"`
	Changed           bool       `json:"changed"`
}
