package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccountLockedError_MatchesSentinel(t *testing.T) {
	until := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	err := fmt.Errorf("login: %w", &AccountLockedError{Until: until})

	assert.True(t, errors.Is(err, ErrAccountLocked))
	assert.False(t, errors.Is(err, ErrInvalidCredentials))

	got, ok := LockedUntil(err)
	assert.True(t, ok)
	assert.Equal(t, until, got)
	assert.Contains(t, err.Error(), "2026-03-01T10:30:00Z")
}

func TestLockedUntil_OtherError(t *testing.T) {
	_, ok := LockedUntil(ErrInvalidCredentials)
	assert.False(t, ok)
}

func TestAccount_IsLockedAt(t *testing.T) {
	now := time.Now()
	future := now.Add(10 * time.Minute)
	past := now.Add(-time.Second)

	assert.False(t, (&Account{}).IsLockedAt(now))
	assert.True(t, (&Account{LockoutExpiry: &future}).IsLockedAt(now))
	assert.False(t, (&Account{LockoutExpiry: &past}).IsLockedAt(now))
	assert.False(t, (&Account{LockoutExpiry: &now}).IsLockedAt(now), "lockout lifts at exactly the expiry instant")
}

func TestSession_UsableAt(t *testing.T) {
	now := time.Now()
	s := &Session{Active: true, ExpiresAt: now.Add(time.Minute)}
	assert.True(t, s.UsableAt(now))
	assert.False(t, s.UsableAt(now.Add(time.Minute)))

	s.Active = false
	assert.False(t, s.UsableAt(now))
}
