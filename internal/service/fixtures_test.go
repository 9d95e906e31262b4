package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/parc-api/internal/models"
	"github.com/noah-isme/parc-api/pkg/jobs"
	"github.com/noah-isme/parc-api/pkg/mailer"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// --- accounts ---

type fakeAccountStore struct {
	mu          sync.Mutex
	accounts    map[string]*models.Account
	createErr   error
	deactivated []string
}

func newFakeAccountStore(accounts ...*models.Account) *fakeAccountStore {
	store := &fakeAccountStore{accounts: make(map[string]*models.Account)}
	for _, account := range accounts {
		store.put(account)
	}
	return store
}

func (f *fakeAccountStore) put(account *models.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *account
	f.accounts[account.ID] = &copy
}

func (f *fakeAccountStore) get(id string) *models.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return nil
	}
	copy := *account
	return &copy
}

func (f *fakeAccountStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts)
}

func (f *fakeAccountStore) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Account, error) {
	if account := f.get(id); account != nil {
		return account, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAccountStore) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Account, error) {
	return f.FindByID(ctx, exec, id)
}

func (f *fakeAccountStore) FindByEmail(ctx context.Context, exec sqlx.ExtContext, email string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(email))
	for _, account := range f.accounts {
		if account.Email == needle {
			copy := *account
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAccountStore) Create(ctx context.Context, exec sqlx.ExtContext, account *models.Account) error {
	if f.createErr != nil {
		return f.createErr
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	f.put(account)
	return nil
}

func (f *fakeAccountStore) Update(ctx context.Context, exec sqlx.ExtContext, account *models.Account) error {
	f.put(account)
	return nil
}

func (f *fakeAccountStore) UpdateSecret(ctx context.Context, exec sqlx.ExtContext, id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return sql.ErrNoRows
	}
	account.PasswordHash = passwordHash
	return nil
}

func (f *fakeAccountStore) UpdateLifecycle(ctx context.Context, exec sqlx.ExtContext, id string, active, mustChange bool, expiry *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return sql.ErrNoRows
	}
	account.Active = active
	account.MustChangePassword = mustChange
	account.AccessExpiry = expiry
	return nil
}

func (f *fakeAccountStore) SetPassword(ctx context.Context, id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return sql.ErrNoRows
	}
	account.PasswordHash = passwordHash
	account.MustChangePassword = false
	return nil
}

func (f *fakeAccountStore) Deactivate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, id)
	if account, ok := f.accounts[id]; ok {
		account.Active = false
	}
	return nil
}

func (f *fakeAccountStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account, ok := f.accounts[id]; ok {
		account.LastLogin = &ts
	}
	return nil
}

func (f *fakeAccountStore) FilterIDsByRole(ctx context.Context, exec sqlx.ExtContext, ids []string, role models.Role) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []string
	for _, id := range ids {
		if account, ok := f.accounts[id]; ok && account.Role == role {
			matched = append(matched, id)
		}
	}
	return matched, nil
}

func (f *fakeAccountStore) ListExpiredTrainers(ctx context.Context, now time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, account := range f.accounts {
		if account.Role == models.RoleTrainer && account.Active && account.AccessExpiry != nil && account.AccessExpiry.Before(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// --- schedules ---

type fakeScheduleStore struct {
	schedules map[string]*models.Schedule
}

func newFakeScheduleStore(schedules ...models.Schedule) *fakeScheduleStore {
	store := &fakeScheduleStore{schedules: make(map[string]*models.Schedule)}
	for i := range schedules {
		schedule := schedules[i]
		store.schedules[schedule.ID] = &schedule
	}
	return store
}

func (f *fakeScheduleStore) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error) {
	schedule, ok := f.schedules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *schedule
	return &copy, nil
}

func (f *fakeScheduleStore) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	copy := *schedule
	f.schedules[schedule.ID] = &copy
	return nil
}

func (f *fakeScheduleStore) Update(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	if _, ok := f.schedules[schedule.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *schedule
	f.schedules[schedule.ID] = &copy
	return nil
}

func (f *fakeScheduleStore) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, ok := f.schedules[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.schedules, id)
	return nil
}

func (f *fakeScheduleStore) ListEndTimes(ctx context.Context, exec sqlx.ExtContext, trainerID string) ([]time.Time, error) {
	var ends []time.Time
	for _, schedule := range f.schedules {
		if schedule.TrainerID == trainerID {
			ends = append(ends, schedule.EndAt)
		}
	}
	return ends, nil
}

// --- audit ---

type fakeAuditWriter struct {
	entries []*models.AuditLog
}

func (f *fakeAuditWriter) Create(ctx context.Context, exec sqlx.ExtContext, log *models.AuditLog) error {
	f.entries = append(f.entries, log)
	return nil
}

func (f *fakeAuditWriter) actions() []string {
	out := make([]string, 0, len(f.entries))
	for _, entry := range f.entries {
		out = append(out, entry.Action)
	}
	return out
}

// --- notifications ---

type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) messages() []mailer.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]mailer.Message, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, job.Payload.(mailer.Message))
	}
	return out
}

func (q *recordingQueue) subjects() []string {
	var out []string
	for _, msg := range q.messages() {
		out = append(out, msg.Subject)
	}
	return out
}

func newTestNotifier(queue *recordingQueue) *NotificationService {
	if queue == nil {
		return NewNotificationService(nil, "https://parc.test/login", nil, nil)
	}
	return NewNotificationService(queue, "https://parc.test/login", nil, nil)
}

func newTestCredentials(store credentialStore) *CredentialService {
	svc := NewCredentialService(store, 8, nil, nil)
	svc.cost = 4
	return svc
}

// secretFrom extracts the plaintext password from a credentials email body.
func secretFrom(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "Password: ") {
			return strings.TrimPrefix(line, "Password: ")
		}
	}
	return ""
}

// --- files ---

type memoryFileStore struct {
	files   map[string]string
	deleted []string
	saveErr error
}

func newMemoryFileStore() *memoryFileStore {
	return &memoryFileStore{files: make(map[string]string)}
}

func (m *memoryFileStore) SaveStream(filename string, r io.Reader) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.files[filename] = string(body)
	return filename, nil
}

func (m *memoryFileStore) Delete(filename string) error {
	m.deleted = append(m.deleted, filename)
	delete(m.files, filename)
	return nil
}

var errBoom = errors.New("boom")

// --- batches ---

type fakeBatchStore struct {
	batches  map[string]*models.Batch
	members  map[string]map[string]struct{}
	courses  map[string]bool
	colleges map[string]bool
	addErr   error
	onAdd    func()
	deleted  []string
}

func newFakeBatchStore() *fakeBatchStore {
	return &fakeBatchStore{
		batches:  make(map[string]*models.Batch),
		members:  make(map[string]map[string]struct{}),
		courses:  map[string]bool{"course-1": true},
		colleges: map[string]bool{"college-1": true},
	}
}

func (f *fakeBatchStore) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Batch, error) {
	batch, ok := f.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *batch
	return &copy, nil
}

func (f *fakeBatchStore) ExistsByKey(ctx context.Context, exec sqlx.ExtContext, courseID, name string, collegeID *string) (bool, error) {
	for _, batch := range f.batches {
		if batch.CourseID != courseID || batch.Name != name {
			continue
		}
		switch {
		case batch.CollegeID == nil && collegeID == nil:
			return true, nil
		case batch.CollegeID != nil && collegeID != nil && *batch.CollegeID == *collegeID:
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBatchStore) Create(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	copy := *batch
	f.batches[batch.ID] = &copy
	return nil
}

func (f *fakeBatchStore) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := f.batches[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.batches, id)
	delete(f.members, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBatchStore) CountStudents(ctx context.Context, exec sqlx.ExtContext, batchID string) (int, error) {
	return len(f.members[batchID]), nil
}

func (f *fakeBatchStore) AddStudents(ctx context.Context, exec sqlx.ExtContext, batchID string, accountIDs []string) (int64, error) {
	if f.onAdd != nil {
		f.onAdd()
	}
	if f.addErr != nil {
		return 0, f.addErr
	}
	set, ok := f.members[batchID]
	if !ok {
		set = make(map[string]struct{})
		f.members[batchID] = set
	}
	var added int64
	for _, id := range accountIDs {
		if _, exists := set[id]; exists {
			continue
		}
		set[id] = struct{}{}
		added++
	}
	return added, nil
}

func (f *fakeBatchStore) RemoveStudents(ctx context.Context, exec sqlx.ExtContext, batchID string, accountIDs []string) (int64, error) {
	var removed int64
	for _, id := range accountIDs {
		if _, ok := f.members[batchID][id]; ok {
			delete(f.members[batchID], id)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeBatchStore) CourseExists(ctx context.Context, id string) (bool, error) {
	return f.courses[id], nil
}

func (f *fakeBatchStore) CollegeExists(ctx context.Context, id string) (bool, error) {
	return f.colleges[id], nil
}

// --- applications ---

type fakeApplicationStore struct {
	apps map[string]*models.Application
}

func newFakeApplicationStore(apps ...*models.Application) *fakeApplicationStore {
	store := &fakeApplicationStore{apps: make(map[string]*models.Application)}
	for _, app := range apps {
		copy := *app
		if copy.Status == "" {
			copy.Status = models.ApplicationStatusPending
		}
		store.apps[app.ID] = &copy
	}
	return store
}

func (f *fakeApplicationStore) Create(ctx context.Context, app *models.Application) error {
	app.Status = models.ApplicationStatusPending
	app.Email = strings.ToLower(app.Email)
	copy := *app
	f.apps[app.ID] = &copy
	return nil
}

func (f *fakeApplicationStore) ExistsByEmail(ctx context.Context, kind models.ApplicationKind, email string) (bool, error) {
	for _, app := range f.apps {
		if app.Kind == kind && strings.EqualFold(app.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeApplicationStore) FindPending(ctx context.Context, exec sqlx.ExtContext, kind models.ApplicationKind, id string) (*models.Application, error) {
	app, ok := f.apps[id]
	if !ok || app.Kind != kind || app.Status != models.ApplicationStatusPending {
		return nil, sql.ErrNoRows
	}
	copy := *app
	return &copy, nil
}

func (f *fakeApplicationStore) MarkApproved(ctx context.Context, exec sqlx.ExtContext, id string) error {
	app, ok := f.apps[id]
	if !ok {
		return sql.ErrNoRows
	}
	app.Status = models.ApplicationStatusApproved
	return nil
}

func (f *fakeApplicationStore) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, ok := f.apps[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.apps, id)
	return nil
}

// --- documents ---

type fakeDocumentStore struct {
	certifications []*models.Certification
	education      []*models.EducationEntry
	documents      []*models.EmployeeDocument
	createErr      error
}

func (f *fakeDocumentStore) CreateCertification(ctx context.Context, exec sqlx.ExtContext, cert *models.Certification) error {
	if f.createErr != nil {
		return f.createErr
	}
	cert.ID = uuid.NewString()
	f.certifications = append(f.certifications, cert)
	return nil
}

func (f *fakeDocumentStore) CreateEducation(ctx context.Context, exec sqlx.ExtContext, entry *models.EducationEntry) error {
	if f.createErr != nil {
		return f.createErr
	}
	entry.ID = uuid.NewString()
	f.education = append(f.education, entry)
	return nil
}

func (f *fakeDocumentStore) DocumentExists(ctx context.Context, exec sqlx.ExtContext, employeeID, filePath string) (bool, error) {
	for _, doc := range f.documents {
		if doc.EmployeeID == employeeID && doc.FilePath == filePath {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDocumentStore) CreateDocument(ctx context.Context, exec sqlx.ExtContext, doc *models.EmployeeDocument) error {
	doc.ID = uuid.NewString()
	f.documents = append(f.documents, doc)
	return nil
}
