package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/controlinterno/casos-api/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IssuedToken is a freshly signed token with the claims needed to persist it
type IssuedToken struct {
	Token     string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenManager signs and verifies access and refresh JWTs. Each kind has its
// own HMAC secret so one can never be replayed as the other.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// TokenOption customises a TokenManager
type TokenOption func(*TokenManager)

// WithClock overrides the time source used for iat/exp and verification
func WithClock(now func() time.Time) TokenOption {
	return func(tm *TokenManager) {
		if now != nil {
			tm.now = now
		}
	}
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, opts ...TokenOption) *TokenManager {
	tm := &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

func (tm *TokenManager) AccessTTL() time.Duration  { return tm.accessTTL }
func (tm *TokenManager) RefreshTTL() time.Duration { return tm.refreshTTL }

// GenerateAccessToken creates a short-lived access token with JTI
func (tm *TokenManager) GenerateAccessToken(accountID int64) (IssuedToken, error) {
	return tm.sign(models.TokenKindAccess, accountID, tm.accessTTL, tm.accessSecret)
}

// GenerateRefreshToken creates a long-lived refresh token with JTI
func (tm *TokenManager) GenerateRefreshToken(accountID int64) (IssuedToken, error) {
	return tm.sign(models.TokenKindRefresh, accountID, tm.refreshTTL, tm.refreshSecret)
}

func (tm *TokenManager) sign(kind models.TokenKind, accountID int64, ttl time.Duration, secret []byte) (IssuedToken, error) {
	// NumericDate has second precision; truncate so the returned expiry matches the signed exp
	now := tm.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl)
	jti := uuid.NewString()

	claims := &models.TokenClaims{
		Type:      kind,
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	return IssuedToken{Token: signed, JTI: jti, IssuedAt: now, ExpiresAt: expiresAt}, nil
}

// ParseAccessToken verifies an access token. It returns models.ErrTokenExpired
// when the signature is valid but exp has passed, and models.ErrInvalidToken
// for anything else.
func (tm *TokenManager) ParseAccessToken(tokenString string) (*models.TokenClaims, error) {
	return tm.parse(tokenString, models.TokenKindAccess, tm.accessSecret)
}

// ParseRefreshToken verifies a refresh token with the same error mapping as ParseAccessToken
func (tm *TokenManager) ParseRefreshToken(tokenString string) (*models.TokenClaims, error) {
	return tm.parse(tokenString, models.TokenKindRefresh, tm.refreshSecret)
}

func (tm *TokenManager) parse(tokenString string, kind models.TokenKind, secret []byte) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		// the signature is verified before claims, so an expiry error implies a genuine token
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrInvalidToken
	}

	if !token.Valid || claims.Type != kind || claims.AccountID <= 0 || claims.ID == "" {
		return nil, models.ErrInvalidToken
	}

	return claims, nil
}

// HashToken returns the hex SHA-256 of a token string. Sessions are stored and
// looked up by this digest, never by the raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
