package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenKind discriminates the two session token types.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Session is a persisted issued token. TokenHash is the SHA-256 of the token
// string and is the row's lookup handle. Rows minted together share PairID.
type Session struct {
	ID            uuid.UUID
	TokenHash     string
	PairID        uuid.UUID
	AccountID     int64
	Kind          TokenKind
	ExpiresAt     time.Time
	Active        bool
	IssuedAt      time.Time
	RequestOrigin string
	ClientAgent   string
}

// UsableAt reports whether the session may still authenticate at now.
func (s *Session) UsableAt(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

// ClientMeta is request provenance recorded on issued sessions. It is kept
// for audit only and never consulted during validation.
type ClientMeta struct {
	RequestOrigin string
	ClientAgent   string
}

// TokenPair is an access/refresh pair returned to the client.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	AccountID        int64     `json:"-"`
}

// LogoutScope selects which sessions a logout invalidates.
type LogoutScope string

const (
	LogoutScopeToken LogoutScope = "token"
	LogoutScopePair  LogoutScope = "pair"
)
