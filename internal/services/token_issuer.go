package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/controlinterno/casos-api/internal/auth"
	"github.com/controlinterno/casos-api/internal/models"
	"github.com/google/uuid"
)

// SessionRepository persists issued tokens by their hash
type SessionRepository interface {
	CreatePair(ctx context.Context, access, refresh *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	// RotateRefresh deactivates the refresh row identified by oldHash and
	// inserts the new pair in one transaction. It returns models.ErrNotFound
	// when no active, unexpired refresh row for accountID matched.
	RotateRefresh(ctx context.Context, oldHash string, accountID int64, now time.Time, access, refresh *models.Session) error
	// Deactivate marks the token inactive only when it belongs to accountID
	Deactivate(ctx context.Context, tokenHash string, accountID int64) error
	DeactivatePair(ctx context.Context, pairID uuid.UUID) error
	DeactivateAllForAccount(ctx context.Context, accountID int64, kinds []models.TokenKind) (int64, error)
}

// TokenIssuer mints access/refresh pairs and persists them as sessions
type TokenIssuer struct {
	tokens   *auth.TokenManager
	sessions SessionRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewTokenIssuer creates a new TokenIssuer
func NewTokenIssuer(tokens *auth.TokenManager, sessions SessionRepository, logger *slog.Logger) *TokenIssuer {
	return &TokenIssuer{
		tokens:   tokens,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Issue signs a fresh pair for accountID and stores both sessions
func (ti *TokenIssuer) Issue(ctx context.Context, accountID int64, meta models.ClientMeta) (*models.TokenPair, error) {
	pair, access, refresh, err := ti.mint(accountID, meta)
	if err != nil {
		return nil, err
	}

	if err := ti.sessions.CreatePair(ctx, access, refresh); err != nil {
		return nil, fmt.Errorf("store session pair: %w", err)
	}

	return pair, nil
}

// Rotate exchanges a refresh token for a new pair. The old refresh row is
// deactivated and the new rows inserted atomically; a token that is missing,
// expired, inactive or already rotated yields models.ErrInvalidToken and no
// new tokens.
func (ti *TokenIssuer) Rotate(ctx context.Context, refreshToken string, meta models.ClientMeta) (*models.TokenPair, error) {
	claims, err := ti.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, models.ErrInvalidToken
	}

	oldHash := auth.HashToken(refreshToken)
	session, err := ti.sessions.GetByTokenHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidToken
		}
		return nil, fmt.Errorf("load refresh session: %w", err)
	}
	if err := checkSession(session, models.TokenKindRefresh, claims.AccountID, ti.now()); err != nil {
		return nil, err
	}

	pair, access, refresh, err := ti.mint(claims.AccountID, meta)
	if err != nil {
		return nil, err
	}

	// a concurrent rotation of the same token loses here: zero rows match
	if err := ti.sessions.RotateRefresh(ctx, oldHash, claims.AccountID, ti.now(), access, refresh); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidToken
		}
		return nil, fmt.Errorf("rotate refresh session: %w", err)
	}

	return pair, nil
}

func (ti *TokenIssuer) mint(accountID int64, meta models.ClientMeta) (*models.TokenPair, *models.Session, *models.Session, error) {
	accessToken, err := ti.tokens.GenerateAccessToken(accountID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generate access token: %w", err)
	}
	refreshToken, err := ti.tokens.GenerateRefreshToken(accountID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generate refresh token: %w", err)
	}

	pairID := uuid.New()
	access := newSession(pairID, accountID, models.TokenKindAccess, accessToken, meta)
	refresh := newSession(pairID, accountID, models.TokenKindRefresh, refreshToken, meta)

	return &models.TokenPair{
		AccessToken:      accessToken.Token,
		RefreshToken:     refreshToken.Token,
		AccessExpiresAt:  accessToken.ExpiresAt,
		RefreshExpiresAt: refreshToken.ExpiresAt,
		AccountID:        accountID,
	}, access, refresh, nil
}

func newSession(pairID uuid.UUID, accountID int64, kind models.TokenKind, token auth.IssuedToken, meta models.ClientMeta) *models.Session {
	return &models.Session{
		ID:            uuid.New(),
		TokenHash:     auth.HashToken(token.Token),
		PairID:        pairID,
		AccountID:     accountID,
		Kind:          kind,
		ExpiresAt:     token.ExpiresAt,
		Active:        true,
		IssuedAt:      token.IssuedAt,
		RequestOrigin: meta.RequestOrigin,
		ClientAgent:   meta.ClientAgent,
	}
}

// checkSession applies the stored-row half of token validation. The stored
// expiry is authoritative independently of the signed exp.
func checkSession(session *models.Session, kind models.TokenKind, accountID int64, now time.Time) error {
	if session.Kind != kind || session.AccountID != accountID || !session.UsableAt(now) {
		return models.ErrInvalidToken
	}
	return nil
}
