package models

import (
	"time"
)

// Account is a firm user able to sign in to the case-management API.
// Accounts are deactivated, never deleted.
type Account struct {
	ID             int64
	Username       string
	Email          string
	FullName       string
	PasswordHash   string
	RoleID         int64
	Role           *Role
	Active         bool
	FailedAttempts int
	LockoutExpiry  *time.Time // nil when not locked
	LastAccess     *time.Time
	CreatedBy      *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsLockedAt reports whether the lockout window is still open at now.
func (a *Account) IsLockedAt(now time.Time) bool {
	return a.LockoutExpiry != nil && now.Before(*a.LockoutExpiry)
}

// LockoutState is the outcome of recording a failed login.
type LockoutState struct {
	AccountID      int64
	Email          string
	FailedAttempts int
	LockoutExpiry  *time.Time
	// JustLocked is set when this failure is the one that opened the lockout window.
	JustLocked bool
}
