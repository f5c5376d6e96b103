package models

import (
	"time"
)

// User is the identity a login attempt resolves to
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     *string
	Role         string // e.g., "user", "admin"
	IsActive     bool
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
