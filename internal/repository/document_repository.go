package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/parc-api/internal/models"
)

// DocumentRepository stores employee certifications, education and the document registry.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateCertification inserts a certification row.
func (r *DocumentRepository) CreateCertification(ctx context.Context, exec sqlx.ExtContext, cert *models.Certification) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO certifications (id, employee_id, title, institute, issued_on, expires_on, file_path, created_at) VALUES (:id, :employee_id, :title, :institute, :issued_on, :expires_on, :file_path, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, cert); err != nil {
		return fmt.Errorf("create certification: %w", err)
	}
	return nil
}

// CreateEducation inserts an education row.
func (r *DocumentRepository) CreateEducation(ctx context.Context, exec sqlx.ExtContext, entry *models.EducationEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO education_entries (id, employee_id, title, institute, start_date, end_date, file_path, created_at) VALUES (:id, :employee_id, :title, :institute, :start_date, :end_date, :file_path, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("create education: %w", err)
	}
	return nil
}

// DocumentExists reports whether the file is already registered for the employee.
func (r *DocumentRepository) DocumentExists(ctx context.Context, exec sqlx.ExtContext, employeeID, filePath string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM employee_documents WHERE employee_id = $1 AND file_path = $2)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, employeeID, filePath); err != nil {
		return false, fmt.Errorf("check employee document: %w", err)
	}
	return exists, nil
}

// CreateDocument registers a file on the employee profile.
func (r *DocumentRepository) CreateDocument(ctx context.Context, exec sqlx.ExtContext, doc *models.EmployeeDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO employee_documents (id, employee_id, title, file_path, uploaded_at) VALUES (:id, :employee_id, :title, :file_path, :uploaded_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, doc); err != nil {
		return fmt.Errorf("create employee document: %w", err)
	}
	return nil
}
