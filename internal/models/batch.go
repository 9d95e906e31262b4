package models

import "time"

// Course is a reference row; batches belong to one.
type Course struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// College is an optional host institution for a batch.
type College struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Batch groups students taking a course, optionally at a college.
type Batch struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	CollegeID *string   `db:"college_id" json:"college_id,omitempty"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CreateBatchRequest is the payload for creating a batch.
type CreateBatchRequest struct {
	CourseID  string    `json:"course_id" form:"course_id" validate:"required"`
	CollegeID *string   `json:"college_id" form:"college_id"`
	Name      string    `json:"name" form:"name" validate:"required"`
	StartDate time.Time `json:"start_date" form:"start_date" time_format:"2006-01-02" validate:"required"`
	EndDate   time.Time `json:"end_date" form:"end_date" time_format:"2006-01-02" validate:"required"`
}

// BatchStudentsRequest lists accounts to attach or detach.
type BatchStudentsRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,required,uuid"`
}
