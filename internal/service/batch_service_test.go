package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/parc-api/internal/models"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
)

type batchFixture struct {
	svc      *BatchService
	batches  *fakeBatchStore
	accounts *fakeAccountStore
	audit    *fakeAuditWriter
	queue    *recordingQueue
	mock     sqlmock.Sqlmock
}

func newBatchFixture(t *testing.T, accounts ...*models.Account) *batchFixture {
	db, mock := newTxProviderMock(t)
	accountStore := newFakeAccountStore(accounts...)
	batches := newFakeBatchStore()
	audit := &fakeAuditWriter{}
	queue := &recordingQueue{}
	notifier := newTestNotifier(queue)
	reconciler := NewEnrollmentService(accountStore, batches, newTestCredentials(accountStore), notifier, nil, nil)
	svc := NewBatchService(db, batches, accountStore, reconciler, audit, notifier, nil, nil)
	return &batchFixture{svc: svc, batches: batches, accounts: accountStore, audit: audit, queue: queue, mock: mock}
}

func batchRequest(name string) models.CreateBatchRequest {
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	return models.CreateBatchRequest{CourseID: "course-1", Name: name, StartDate: start, EndDate: start.AddDate(0, 3, 0)}
}

func csvUpload(body string) RosterUpload {
	return RosterUpload{Filename: "roster.csv", Reader: strings.NewReader(body)}
}

func TestCreateWithRosterEnrollsStudents(t *testing.T) {
	f := newBatchFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.svc.CreateWithRoster(context.Background(), "admin", batchRequest("Spring"), csvUpload("Name,Email\nAlice,alice@x.io\n,missing@x.io\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Report.AddedToBatch)
	assert.Equal(t, 1, result.Report.NewlyCreated)
	assert.Equal(t, []string{"Row 3: Missing name or invalid email."}, result.Report.Errors)
	assert.Len(t, f.batches.members[result.Batch.ID], 1)
	assert.Equal(t, []string{"Your Parc Platform Account Credentials"}, f.queue.subjects())
	assert.Equal(t, []string{models.AuditActionRosterImport}, f.audit.actions())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateWithRosterRemovesBatchOnFailure(t *testing.T) {
	f := newBatchFixture(t)
	f.batches.addErr = errBoom
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.CreateWithRoster(context.Background(), "admin", batchRequest("Spring"), csvUpload("name,email\nAlice,alice@x.io\n"))
	require.Error(t, err)
	assert.Empty(t, f.batches.batches)
	assert.Len(t, f.batches.deleted, 1)
	assert.Empty(t, f.queue.messages())
}

func TestCreateWithRosterRemovesBatchWhenRequestCancelled(t *testing.T) {
	f := newBatchFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.batches.onAdd = cancel
	f.batches.addErr = context.Canceled
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.CreateWithRoster(ctx, "admin", batchRequest("Spring"), csvUpload("name,email\nAlice,alice@x.io\n"))
	require.Error(t, err)
	assert.Empty(t, f.batches.batches)
	assert.Len(t, f.batches.deleted, 1)
	assert.Empty(t, f.queue.messages())
}

func TestCreateWithRosterInvalidFileCreatesNothing(t *testing.T) {
	f := newBatchFixture(t)

	_, err := f.svc.CreateWithRoster(context.Background(), "admin", batchRequest("Spring"), csvUpload("first,last\nA,B\n"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.batches.batches)

	_, err = f.svc.CreateWithRoster(context.Background(), "admin", batchRequest("Spring"), RosterUpload{Filename: "roster.pdf", Reader: strings.NewReader("x")})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.CreateWithRoster(context.Background(), "admin", batchRequest("Spring"), RosterUpload{})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAppendRosterKeepsBatchOnFailure(t *testing.T) {
	f := newBatchFixture(t)
	batch, err := f.svc.CreateBatch(context.Background(), batchRequest("Spring"))
	require.NoError(t, err)

	f.batches.addErr = errBoom
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.AppendRoster(context.Background(), "admin", batch.ID, csvUpload("name,email\nAlice,alice@x.io\n"))
	require.Error(t, err)
	assert.Contains(t, f.batches.batches, batch.ID)
	assert.Empty(t, f.batches.deleted)
}

func TestAppendRosterUnknownBatch(t *testing.T) {
	f := newBatchFixture(t)
	_, err := f.svc.AppendRoster(context.Background(), "admin", "missing", csvUpload("name,email\nAlice,alice@x.io\n"))
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestCreateBatchValidation(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateBatch(ctx, batchRequest("Spring"))
	require.NoError(t, err)

	_, err = f.svc.CreateBatch(ctx, batchRequest("Spring"))
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	college := "college-1"
	withCollege := batchRequest("Spring")
	withCollege.CollegeID = &college
	_, err = f.svc.CreateBatch(ctx, withCollege)
	assert.NoError(t, err)

	unknownCourse := batchRequest("Autumn")
	unknownCourse.CourseID = "nope"
	_, err = f.svc.CreateBatch(ctx, unknownCourse)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	inverted := batchRequest("Winter")
	inverted.EndDate = inverted.StartDate.AddDate(0, 0, -1)
	_, err = f.svc.CreateBatch(ctx, inverted)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestDeleteBatchRequiresEmpty(t *testing.T) {
	f := newBatchFixture(t)
	batch, err := f.svc.CreateBatch(context.Background(), batchRequest("Spring"))
	require.NoError(t, err)
	f.batches.members[batch.ID] = map[string]struct{}{"s1": {}}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err = f.svc.DeleteBatch(context.Background(), batch.ID)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, err.Error(), "Cannot delete a batch that has students enrolled.")

	delete(f.batches.members, batch.ID)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.DeleteBatch(context.Background(), batch.ID))
	assert.Empty(t, f.batches.batches)
}

func TestAddStudentsIgnoresNonStudents(t *testing.T) {
	const (
		studentID = "6f1c2a4e-8d3b-4c1a-9e2f-1a2b3c4d5e01"
		trainerID = "6f1c2a4e-8d3b-4c1a-9e2f-1a2b3c4d5e02"
		ghostID   = "6f1c2a4e-8d3b-4c1a-9e2f-1a2b3c4d5e03"
	)
	f := newBatchFixture(t,
		&models.Account{ID: studentID, Email: "s1@x.io", Role: models.RoleStudent},
		&models.Account{ID: trainerID, Email: "t1@x.io", Role: models.RoleTrainer},
	)
	batch, err := f.svc.CreateBatch(context.Background(), batchRequest("Spring"))
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	result, err := f.svc.AddStudents(context.Background(), "admin", batch.ID, models.BatchStudentsRequest{StudentIDs: []string{studentID, trainerID, ghostID}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Affected)
	assert.Equal(t, []string{trainerID, ghostID}, result.Ignored)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	removed, err := f.svc.RemoveStudents(context.Background(), "admin", batch.ID, models.BatchStudentsRequest{StudentIDs: []string{studentID}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed.Affected)
	assert.Empty(t, f.batches.members[batch.ID])
}

func TestAddStudentsRejectsEmptyList(t *testing.T) {
	f := newBatchFixture(t)
	_, err := f.svc.AddStudents(context.Background(), "admin", "b1", models.BatchStudentsRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestBatchMembershipRejectsMalformedIDs(t *testing.T) {
	f := newBatchFixture(t)
	req := models.BatchStudentsRequest{StudentIDs: []string{"not-a-uuid"}}

	_, err := f.svc.AddStudents(context.Background(), "admin", "b1", req)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	_, err = f.svc.RemoveStudents(context.Background(), "admin", "b1", req)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAsAppErrorMapsMalformedInput(t *testing.T) {
	err := asAppError(fmt.Errorf("remove students: %w", &pq.Error{Code: "22P02"}), "failed")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	err = asAppError(errors.New("boom"), "failed")
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}
