package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/parc-api/internal/models"
)

func TestScheduleCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec("INSERT INTO schedules").WillReturnResult(sqlmock.NewResult(1, 1))

	schedule := &models.Schedule{TrainerID: "t1", StartAt: time.Now(), EndAt: time.Now().Add(time.Hour)}
	require.NoError(t, repo.Create(context.Background(), nil, schedule))
	assert.NotEmpty(t, schedule.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleUpdateMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec("UPDATE schedules SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), nil, &models.Schedule{ID: "missing", TrainerID: "t1"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedules WHERE id = $1")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), nil, "s1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleListEndTimes(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	first := time.Date(2026, 1, 10, 17, 0, 0, 0, time.UTC)
	second := time.Date(2026, 2, 10, 17, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT end_at FROM schedules WHERE trainer_id = $1")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"end_at"}).AddRow(first).AddRow(second))

	ends, err := repo.ListEndTimes(context.Background(), nil, "t1")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{first, second}, ends)
	assert.NoError(t, mock.ExpectationsWereMet())
}
