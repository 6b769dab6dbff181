package model

import (
	"time"
)

type StaffStatus string

const (
	StaffStatusActive StaffStatus = "active"
	StaffStatusLocked StaffStatus = "locked"
)

// Staff is an account that can authenticate and act against clinical
// records. Role is assigned at account creation and carried into the session
// token on login.
type Staff struct {
	Base
	Email            string      `json:"email" db:"email"`
	Name             string      `json:"name" db:"name"`
	Phone            string      `json:"phone" db:"phone"`
	PasswordHash     string      `json:"-" db:"password_hash"`
	Role             Role        `json:"role" db:"role"`
	Status           StaffStatus `json:"status" db:"status"`
	LoginAttempts    int         `json:"login_attempts" db:"login_attempts"`
	LastLoginAttempt time.Time   `json:"last_login_attempt" db:"last_login_attempt"`
	LastLoginAt      *time.Time  `json:"last_login_at" db:"last_login_at"`
}

// Actor returns the staff member as an acting identity for lifecycle calls.
func (s *Staff) Actor() Actor {
	return Actor{ID: s.ID, Name: s.Name, Role: s.Role}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Actor       Actor     `json:"actor"`
}
