package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the signed claims of access and refresh tokens.
type TokenClaims struct {
	Type      TokenKind `json:"type"`
	AccountID int64     `json:"account_id"`
	jwt.RegisteredClaims
}
