package models

import "time"

// EmployeeDocument is a file attached to an employee profile.
type EmployeeDocument struct {
	ID         string    `db:"id" json:"id"`
	EmployeeID string    `db:"employee_id" json:"employee_id"`
	Title      string    `db:"title" json:"title"`
	FilePath   string    `db:"file_path" json:"file_path"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// Certification is a professional certificate held by an employee.
type Certification struct {
	ID         string     `db:"id" json:"id"`
	EmployeeID string     `db:"employee_id" json:"employee_id"`
	Title      string     `db:"title" json:"title"`
	Institute  string     `db:"institute" json:"institute"`
	IssuedOn   time.Time  `db:"issued_on" json:"issued_on"`
	ExpiresOn  *time.Time `db:"expires_on" json:"expires_on,omitempty"`
	FilePath   *string    `db:"file_path" json:"file_path,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// EducationEntry is an academic qualification with an optional marksheet.
type EducationEntry struct {
	ID         string     `db:"id" json:"id"`
	EmployeeID string     `db:"employee_id" json:"employee_id"`
	Title      string     `db:"title" json:"title"`
	Institute  string     `db:"institute" json:"institute"`
	StartDate  time.Time  `db:"start_date" json:"start_date"`
	EndDate    *time.Time `db:"end_date" json:"end_date,omitempty"`
	FilePath   *string    `db:"file_path" json:"file_path,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// CertificationRequest is the multipart form for a certification.
type CertificationRequest struct {
	Title     string     `form:"title" validate:"required,max=200"`
	Institute string     `form:"institute" validate:"required,max=200"`
	IssuedOn  time.Time  `form:"issued_on" time_format:"2006-01-02" validate:"required"`
	ExpiresOn *time.Time `form:"expires_on" time_format:"2006-01-02"`
}

// EducationRequest is the multipart form for an education entry.
type EducationRequest struct {
	Title     string     `form:"title" validate:"required,max=200"`
	Institute string     `form:"institute" validate:"required,max=200"`
	StartDate time.Time  `form:"start_date" time_format:"2006-01-02" validate:"required"`
	EndDate   *time.Time `form:"end_date" time_format:"2006-01-02"`
}
