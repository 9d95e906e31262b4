package service

import (
	"context"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/parc-api/internal/models"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
)

type applicationFixture struct {
	svc      *ApplicationService
	apps     *fakeApplicationStore
	accounts *fakeAccountStore
	files    *memoryFileStore
	audit    *fakeAuditWriter
	queue    *recordingQueue
	mock     sqlmock.Sqlmock
}

func newApplicationFixture(t *testing.T, apps []*models.Application, accounts ...*models.Account) *applicationFixture {
	db, mock := newTxProviderMock(t)
	appStore := newFakeApplicationStore(apps...)
	accountStore := newFakeAccountStore(accounts...)
	files := newMemoryFileStore()
	audit := &fakeAuditWriter{}
	queue := &recordingQueue{}
	svc := NewApplicationService(db, appStore, accountStore, newTestCredentials(accountStore), files, audit, newTestNotifier(queue), nil, nil)
	return &applicationFixture{svc: svc, apps: appStore, accounts: accountStore, files: files, audit: audit, queue: queue, mock: mock}
}

func pendingApplication(id string, kind models.ApplicationKind) *models.Application {
	return &models.Application{
		ID:               id,
		Kind:             kind,
		Name:             "Priya Patel",
		Email:            id + "@x.io",
		Phone:            "555-0100",
		ExperienceYears:  4,
		ExpertiseDomains: "Go, Kubernetes",
		Skills:           "Payroll",
		Department:       "Finance",
		ResumePath:       "resumes/" + id + ".pdf",
	}
}

func TestParseApplicationKind(t *testing.T) {
	kind, err := ParseApplicationKind("trainer")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationKindTrainer, kind)

	kind, err = ParseApplicationKind("EMPLOYEE")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationKindEmployee, kind)

	_, err = ParseApplicationKind("intern")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestSubmitStoresResume(t *testing.T) {
	f := newApplicationFixture(t, nil)
	req := models.SubmitApplicationRequest{Name: " Priya ", Email: "Priya@X.io", Phone: "555", ExperienceYears: 3}

	app, err := f.svc.Submit(context.Background(), models.ApplicationKindTrainer, req, FileUpload{Filename: "cv.PDF", Reader: strings.NewReader("resume")})
	require.NoError(t, err)
	assert.Equal(t, "Priya", app.Name)
	assert.Equal(t, models.ApplicationStatusPending, app.Status)
	assert.Equal(t, "resumes/trainer/"+app.ID+".pdf", app.ResumePath)
	assert.Equal(t, "resume", f.files.files[app.ResumePath])

	_, err = f.svc.Submit(context.Background(), models.ApplicationKindTrainer, req, FileUpload{Filename: "cv.pdf", Reader: strings.NewReader("again")})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestSubmitRequiresResume(t *testing.T) {
	f := newApplicationFixture(t, nil)
	req := models.SubmitApplicationRequest{Name: "Priya", Email: "p@x.io", Phone: "555"}
	_, err := f.svc.Submit(context.Background(), models.ApplicationKindEmployee, req, FileUpload{})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.files.files)
}

func TestApproveTrainerCreatesInactiveAccount(t *testing.T) {
	f := newApplicationFixture(t, []*models.Application{pendingApplication("a1", models.ApplicationKindTrainer)})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	account, err := f.svc.Approve(context.Background(), "admin", models.ApplicationKindTrainer, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTrainer, account.Role)
	assert.False(t, account.Active)
	assert.Empty(t, account.PasswordHash)
	assert.Equal(t, "Go, Kubernetes", account.Expertise)
	assert.Equal(t, models.ApplicationStatusApproved, f.apps.apps["a1"].Status)
	assert.Equal(t, []string{"Your Trainer Application has been Approved!"}, f.queue.subjects())
	assert.Equal(t, []string{models.AuditActionApplicationApprove}, f.audit.actions())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestApproveEmployeeIssuesCredentials(t *testing.T) {
	f := newApplicationFixture(t, []*models.Application{pendingApplication("a2", models.ApplicationKindEmployee)})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	account, err := f.svc.Approve(context.Background(), "admin", models.ApplicationKindEmployee, "a2")
	require.NoError(t, err)
	assert.Equal(t, models.RoleEmployee, account.Role)
	assert.True(t, account.Active)
	assert.True(t, account.MustChangePassword)
	assert.Equal(t, "Finance", account.Department)
	assert.NotEmpty(t, account.PasswordHash)
	assert.Equal(t, []string{
		"Your Parc Platform Employee Account Credentials",
		"Your Employee Application has been Approved!",
	}, f.queue.subjects())
}

func TestApproveConflictsWithExistingAccount(t *testing.T) {
	existing := &models.Account{ID: "u1", Email: "a1@x.io", Role: models.RoleStudent}
	f := newApplicationFixture(t, []*models.Application{pendingApplication("a1", models.ApplicationKindTrainer)}, existing)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Approve(context.Background(), "admin", models.ApplicationKindTrainer, "a1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, models.ApplicationStatusPending, f.apps.apps["a1"].Status)
	assert.Empty(t, f.queue.messages())
}

func TestApproveRejectsProcessedApplication(t *testing.T) {
	app := pendingApplication("a1", models.ApplicationKindTrainer)
	app.Status = models.ApplicationStatusApproved
	f := newApplicationFixture(t, []*models.Application{app})
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Approve(context.Background(), "admin", models.ApplicationKindTrainer, "a1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestApproveWrongKindIsNotFound(t *testing.T) {
	f := newApplicationFixture(t, []*models.Application{pendingApplication("a1", models.ApplicationKindTrainer)})
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Approve(context.Background(), "admin", models.ApplicationKindEmployee, "a1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestDeclineDeletesAndNotifies(t *testing.T) {
	f := newApplicationFixture(t, []*models.Application{pendingApplication("a1", models.ApplicationKindTrainer)})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.Decline(context.Background(), "admin", models.ApplicationKindTrainer, "a1"))
	assert.Empty(t, f.apps.apps)
	msgs := f.queue.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Update on Your Parc Platform Trainer Application", msgs[0].Subject)
	assert.Contains(t, msgs[0].Body, "Hi Priya Patel")
	assert.Equal(t, 0, f.accounts.count())
}
