package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/controlinterno/casos-api/internal/database"
	"github.com/controlinterno/casos-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// SessionRepository persists issued tokens by the SHA-256 of the token string
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var session models.Session
	var kind string

	err := scanner.Scan(
		&session.ID, &session.TokenHash, &session.PairID, &session.AccountID,
		&kind, &session.ExpiresAt, &session.Active, &session.IssuedAt,
		&session.RequestOrigin, &session.ClientAgent,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	session.Kind = models.TokenKind(kind)
	return &session, nil
}

func insertSession(ctx context.Context, tx pgx.Tx, s *models.Session) error {
	query := `
		INSERT INTO sessions (id, token_hash, pair_id, account_id, kind, expires_at, active, issued_at, request_origin, client_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	_, err := tx.Exec(ctx, query,
		s.ID, s.TokenHash, s.PairID, s.AccountID, string(s.Kind),
		s.ExpiresAt, s.Active, s.IssuedAt, s.RequestOrigin, s.ClientAgent,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// CreatePair stores the access and refresh rows of one issuance atomically
func (r *SessionRepository) CreatePair(ctx context.Context, access, refresh *models.Session) error {
	return database.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertSession(ctx, tx, access); err != nil {
			return fmt.Errorf("failed to store access session: %w", err)
		}
		if err := insertSession(ctx, tx, refresh); err != nil {
			return fmt.Errorf("failed to store refresh session: %w", err)
		}
		return nil
	})
}

func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `
		SELECT id, token_hash, pair_id, account_id, kind, expires_at, active, issued_at, request_origin, client_agent
		FROM sessions WHERE token_hash = $1
	`

	return scanSessionRow(r.pool.QueryRow(ctx, query, tokenHash))
}

// RotateRefresh retires the refresh row identified by oldHash and stores the
// replacement pair in the same transaction. Only one caller can win the
// conditional update; every other concurrent caller gets models.ErrNotFound.
func (r *SessionRepository) RotateRefresh(ctx context.Context, oldHash string, accountID int64, now time.Time, access, refresh *models.Session) error {
	return database.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			UPDATE sessions SET active = FALSE
			WHERE token_hash = $1 AND account_id = $2 AND kind = 'refresh'
			  AND active AND expires_at > $3
		`

		tag, err := tx.Exec(ctx, query, oldHash, accountID, now)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if tag.RowsAffected() != 1 {
			return models.ErrNotFound
		}

		if err := insertSession(ctx, tx, access); err != nil {
			return fmt.Errorf("failed to store access session: %w", err)
		}
		if err := insertSession(ctx, tx, refresh); err != nil {
			return fmt.Errorf("failed to store refresh session: %w", err)
		}
		return nil
	})
}

// Deactivate marks one token of accountID inactive. Unknown or foreign
// tokens are not an error.
func (r *SessionRepository) Deactivate(ctx context.Context, tokenHash string, accountID int64) error {
	query := `UPDATE sessions SET active = FALSE WHERE token_hash = $1 AND account_id = $2 AND active`

	if _, err := r.pool.Exec(ctx, query, tokenHash, accountID); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

func (r *SessionRepository) DeactivatePair(ctx context.Context, pairID uuid.UUID) error {
	query := `UPDATE sessions SET active = FALSE WHERE pair_id = $1 AND active`

	if _, err := r.pool.Exec(ctx, query, pairID); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// DeactivateAllForAccount retires every active session of the given kinds and
// returns how many rows changed.
func (r *SessionRepository) DeactivateAllForAccount(ctx context.Context, accountID int64, kinds []models.TokenKind) (int64, error) {
	query := `
		UPDATE sessions SET active = FALSE
		WHERE account_id = $1 AND active AND kind = ANY($2::text[])
	`

	names := make([]string, len(kinds))
	for i, kind := range kinds {
		names[i] = string(kind)
	}

	tag, err := r.pool.Exec(ctx, query, accountID, pq.Array(names))
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteStale removes sessions that expired or were deactivated before cutoff
func (r *SessionRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE expires_at < $1 OR (NOT active AND issued_at < $1)
	`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
