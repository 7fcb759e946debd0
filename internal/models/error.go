package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("resource already exists")
	ErrBadRequest = errors.New("bad request")
	ErrForbidden  = errors.New("forbidden")
	ErrInternal   = errors.New("internal server error")

	// Authentication errors. Callers only ever see these kinds; store and
	// crypto failures collapse into ErrInternal.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrAccountNotFound    = errors.New("account not found")
	ErrMissingToken       = errors.New("missing bearer token")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
)

// AccountLockedError reports a lockout together with the time it lifts.
// errors.Is(err, ErrAccountLocked) holds for it.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked, e.Until.UTC().Format(time.RFC3339))
}

func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// LockedUntil extracts the unlock time from a lockout error.
func LockedUntil(err error) (time.Time, bool) {
	var locked *AccountLockedError
	if errors.As(err, &locked) {
		return locked.Until, true
	}
	return time.Time{}, false
}
