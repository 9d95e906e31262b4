package models

import "time"

// ApplicationKind distinguishes trainer and employee applications.
type ApplicationKind string

const (
	ApplicationKindTrainer  ApplicationKind = "TRAINER"
	ApplicationKindEmployee ApplicationKind = "EMPLOYEE"
)

// ApplicationStatus tracks review progress. Declined applications are deleted.
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "PENDING"
	ApplicationStatusApproved ApplicationStatus = "APPROVED"
)

// Application is a public onboarding request awaiting admin review.
type Application struct {
	ID               string            `db:"id" json:"id"`
	Kind             ApplicationKind   `db:"kind" json:"kind"`
	Name             string            `db:"name" json:"name"`
	Email            string            `db:"email" json:"email"`
	Phone            string            `db:"phone" json:"phone"`
	ExperienceYears  int               `db:"experience_years" json:"experience_years,omitempty"`
	TechStack        string            `db:"tech_stack" json:"tech_stack,omitempty"`
	ExpertiseDomains string            `db:"expertise_domains" json:"expertise_domains,omitempty"`
	Skills           string            `db:"skills" json:"skills,omitempty"`
	Department       string            `db:"department" json:"department,omitempty"`
	ResumePath       string            `db:"resume_path" json:"resume_path"`
	Status           ApplicationStatus `db:"status" json:"status"`
	SubmittedAt      time.Time         `db:"submitted_at" json:"submitted_at"`
}

// SubmitApplicationRequest is the multipart form for a new application.
type SubmitApplicationRequest struct {
	Name             string `form:"name" validate:"required,max=100"`
	Email            string `form:"email" validate:"required,email"`
	Phone            string `form:"phone" validate:"required,max=20"`
	ExperienceYears  int    `form:"experience" validate:"gte=0"`
	TechStack        string `form:"tech_stack"`
	ExpertiseDomains string `form:"expertise_domains"`
	Skills           string `form:"skills"`
	Department       string `form:"department"`
}
