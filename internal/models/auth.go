package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating an account.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and account info.
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   int64       `json:"expires_in"`
	User        AccountInfo `json:"user"`
	IssuedAt    time.Time   `json:"issued_at"`
}

// SetPasswordRequest replaces the caller's password.
type SetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

// AccountInfo describes the authenticated account in responses.
type AccountInfo struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	FullName           string `json:"full_name"`
	Role               Role   `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID             string `json:"user_id"`
	Role               Role   `json:"role"`
	Staff              bool   `json:"is_staff,omitempty"`
	Email              string `json:"email"`
	FullName           string `json:"full_name"`
	MustChangePassword bool   `json:"must_change_password"`
	jwt.RegisteredClaims
}
