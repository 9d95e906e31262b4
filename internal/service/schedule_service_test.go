package service

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/parc-api/internal/models"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
)

type scheduleFixture struct {
	svc       *ScheduleService
	accounts  *fakeAccountStore
	schedules *fakeScheduleStore
	audit     *fakeAuditWriter
	queue     *recordingQueue
	mock      sqlmock.Sqlmock
}

func newScheduleFixture(t *testing.T, accounts ...*models.Account) *scheduleFixture {
	return newSeededScheduleFixture(t, nil, accounts...)
}

func newSeededScheduleFixture(t *testing.T, seed []models.Schedule, accounts ...*models.Account) *scheduleFixture {
	db, mock := newTxProviderMock(t)
	accountStore := newFakeAccountStore(accounts...)
	schedules := newFakeScheduleStore(seed...)
	audit := &fakeAuditWriter{}
	queue := &recordingQueue{}
	notifier := newTestNotifier(queue)

	lifecycle := NewLifecycleService(db, accountStore, schedules, newTestCredentials(accountStore), notifier, nil, nil, nil)
	lifecycle.now = func() time.Time { return lifecycleNow }
	svc := NewScheduleService(db, schedules, accountStore, lifecycle, audit, notifier, nil, nil)
	return &scheduleFixture{svc: svc, accounts: accountStore, schedules: schedules, audit: audit, queue: queue, mock: mock}
}

func scheduleRequest(trainerID string, end time.Time) models.ScheduleRequest {
	return models.ScheduleRequest{TrainerID: trainerID, StartAt: end.Add(-3 * time.Hour), EndAt: end}
}

func TestScheduleCreateActivatesTrainer(t *testing.T) {
	f := newScheduleFixture(t, newTrainer("t1"))
	end := lifecycleNow.Add(24 * time.Hour)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	schedule, err := f.svc.Create(context.Background(), "admin", scheduleRequest("t1", end))
	require.NoError(t, err)
	assert.NotEmpty(t, schedule.ID)

	trainer := f.accounts.get("t1")
	assert.True(t, trainer.Active)
	assert.True(t, end.Equal(*trainer.AccessExpiry))
	assert.Len(t, f.queue.messages(), 1)
	assert.Equal(t, []string{models.AuditActionScheduleMutate}, f.audit.actions())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleCreateRejectsInvertedWindow(t *testing.T) {
	f := newScheduleFixture(t, newTrainer("t1"))
	req := models.ScheduleRequest{TrainerID: "t1", StartAt: lifecycleNow.Add(time.Hour), EndAt: lifecycleNow}

	_, err := f.svc.Create(context.Background(), "admin", req)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.schedules.schedules)
}

func TestScheduleCreateRequiresTrainerRole(t *testing.T) {
	f := newScheduleFixture(t, &models.Account{ID: "s1", Email: "s1@parc.test", Role: models.RoleStudent})

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.Create(context.Background(), "admin", scheduleRequest("s1", lifecycleNow.Add(time.Hour)))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.queue.messages())
}

func TestScheduleDeleteDeactivatesTrainer(t *testing.T) {
	f := newScheduleFixture(t, newTrainer("t1"))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	schedule, err := f.svc.Create(context.Background(), "admin", scheduleRequest("t1", lifecycleNow.Add(24*time.Hour)))
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.Delete(context.Background(), "admin", schedule.ID))

	trainer := f.accounts.get("t1")
	assert.False(t, trainer.Active)
	assert.Nil(t, trainer.AccessExpiry)
	assert.Len(t, f.queue.messages(), 1)
}

func TestScheduleDeleteNotFound(t *testing.T) {
	f := newScheduleFixture(t, newTrainer("t1"))
	err := f.svc.Delete(context.Background(), "admin", "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestScheduleUpdateReassignsBetweenTrainers(t *testing.T) {
	f := newScheduleFixture(t, newTrainer("t1"), newTrainer("t2"))
	end := lifecycleNow.Add(24 * time.Hour)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	schedule, err := f.svc.Create(context.Background(), "admin", scheduleRequest("t1", end))
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	updated, err := f.svc.Update(context.Background(), "admin", schedule.ID, scheduleRequest("t2", end))
	require.NoError(t, err)
	assert.Equal(t, "t2", updated.TrainerID)

	assert.False(t, f.accounts.get("t1").Active)
	assert.True(t, f.accounts.get("t2").Active)
	assert.Len(t, f.queue.messages(), 2)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func formerTrainer(id string) *models.Account {
	account := newTrainer(id)
	account.Role = models.RoleEmployee
	account.Active = true
	return account
}

func TestScheduleDeleteForFormerTrainer(t *testing.T) {
	f := newSeededScheduleFixture(t, []models.Schedule{scheduleFor("s1", "e1", lifecycleNow.Add(24*time.Hour))}, formerTrainer("e1"))

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.Delete(context.Background(), "admin", "s1"))

	assert.Empty(t, f.schedules.schedules)
	employee := f.accounts.get("e1")
	assert.Equal(t, models.RoleEmployee, employee.Role)
	assert.True(t, employee.Active)
	assert.Nil(t, employee.AccessExpiry)
	assert.Empty(t, f.queue.messages())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleUpdateMovesFormerTrainerScheduleToTrainer(t *testing.T) {
	end := lifecycleNow.Add(24 * time.Hour)
	f := newSeededScheduleFixture(t, []models.Schedule{scheduleFor("s1", "e1", end)}, formerTrainer("e1"), newTrainer("t2"))

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	updated, err := f.svc.Update(context.Background(), "admin", "s1", scheduleRequest("t2", end))
	require.NoError(t, err)
	assert.Equal(t, "t2", updated.TrainerID)

	assert.True(t, f.accounts.get("e1").Active)
	trainer := f.accounts.get("t2")
	assert.True(t, trainer.Active)
	assert.True(t, end.Equal(*trainer.AccessExpiry))
	assert.Len(t, f.queue.messages(), 1)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAffectedTrainers(t *testing.T) {
	assert.Equal(t, []string{"a"}, affectedTrainers("a", "a"))
	assert.Equal(t, []string{"a", "b"}, affectedTrainers("a", "b"))
}
