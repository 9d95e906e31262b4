package models

import (
	"strings"
	"time"
)

// Role represents the available account roles.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleTrainer  Role = "TRAINER"
	RoleStudent  Role = "STUDENT"
	RoleEmployee Role = "EMPLOYEE"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTrainer, RoleStudent, RoleEmployee:
		return true
	}
	return false
}

// Account is a login identity stored in the accounts table.
type Account struct {
	ID                 string     `db:"id" json:"id"`
	Email              string     `db:"email" json:"email"`
	PasswordHash       string     `db:"password_hash" json:"-"`
	FullName           string     `db:"full_name" json:"full_name"`
	Phone              string     `db:"phone" json:"phone,omitempty"`
	Role               Role       `db:"role" json:"role"`
	Staff              bool       `db:"is_staff" json:"is_staff"`
	Active             bool       `db:"active" json:"active"`
	MustChangePassword bool       `db:"must_change_password" json:"must_change_password"`
	AccessExpiry       *time.Time `db:"access_expiry" json:"access_expiry,omitempty"`
	Department         string     `db:"department" json:"department,omitempty"`
	Expertise          string     `db:"expertise" json:"expertise,omitempty"`
	ExperienceYears    int        `db:"experience_years" json:"experience_years,omitempty"`
	ResumePath         string     `db:"resume_path" json:"resume_path,omitempty"`
	LastLogin          *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// FirstName is the leading word of the full name, used in greetings.
func (a *Account) FirstName() string {
	fields := strings.Fields(a.FullName)
	if len(fields) == 0 {
		return a.Email
	}
	return fields[0]
}

// CreateAccountRequest is the admin payload for direct account creation.
type CreateAccountRequest struct {
	Email           string `json:"email" validate:"required,email"`
	FullName        string `json:"full_name" validate:"required"`
	Phone           string `json:"phone"`
	Role            Role   `json:"role" validate:"required,oneof=ADMIN TRAINER STUDENT EMPLOYEE"`
	Staff           bool   `json:"is_staff"`
	Department      string `json:"department"`
	Expertise       string `json:"expertise"`
	ExperienceYears int    `json:"experience_years" validate:"gte=0"`
}

// UpdateAccountRequest carries optional profile changes.
type UpdateAccountRequest struct {
	FullName        *string `json:"full_name"`
	Phone           *string `json:"phone"`
	Role            *Role   `json:"role" validate:"omitempty,oneof=ADMIN TRAINER STUDENT EMPLOYEE"`
	Department      *string `json:"department"`
	Expertise       *string `json:"expertise"`
	ExperienceYears *int    `json:"experience_years" validate:"omitempty,gte=0"`
}
