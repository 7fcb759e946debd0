package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/controlinterno/casos-api/internal/database"
	"github.com/controlinterno/casos-api/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner is satisfied by pgx.Row, pgx.Rows and *sql.Row
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const accountColumns = `
	a.id, a.username, a.email, a.full_name, a.password_hash, a.role_id, a.active,
	a.failed_attempts, a.lockout_expiry, a.last_access, a.created_by, a.created_at, a.updated_at,
	r.id, r.name, r.description, r.permissions, r.created_at`

// scanAccountRow populates an Account and its Role from a joined row
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var role models.Role

	err := scanner.Scan(
		&account.ID, &account.Username, &account.Email, &account.FullName,
		&account.PasswordHash, &account.RoleID, &account.Active,
		&account.FailedAttempts, &account.LockoutExpiry, &account.LastAccess,
		&account.CreatedBy, &account.CreatedAt, &account.UpdatedAt,
		&role.ID, &role.Name, &role.Description, &role.RawPermissions, &role.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	account.Role = &role
	return &account, nil
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT` + accountColumns + `
		FROM accounts a JOIN roles r ON r.id = a.role_id
		WHERE a.username = $1`

	return scanAccountRow(r.pool.QueryRow(ctx, query, username))
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT` + accountColumns + `
		FROM accounts a JOIN roles r ON r.id = a.role_id
		WHERE a.id = $1`

	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

// RecordFailedLogin bumps the failure counter in a single statement. Only a
// successful login resets the count, so the first failure after an elapsed
// window locks again. An open window is never extended.
func (r *AccountRepository) RecordFailedLogin(ctx context.Context, username string, threshold int, lockFor time.Duration, now time.Time) (*models.LockoutState, error) {
	query := `
		WITH prev AS (
			SELECT id, failed_attempts, lockout_expiry,
			       (lockout_expiry IS NOT NULL AND lockout_expiry > $2) AS locked
			FROM accounts
			WHERE username = $1
			FOR UPDATE
		), next AS (
			SELECT id, locked, lockout_expiry,
			       failed_attempts + 1 AS attempts
			FROM prev
		)
		UPDATE accounts a SET
			failed_attempts = next.attempts,
			lockout_expiry = CASE
				WHEN next.locked THEN next.lockout_expiry
				WHEN next.attempts >= $3 THEN $4::timestamptz
				ELSE NULL
			END,
			updated_at = $2
		FROM next
		WHERE a.id = next.id
		RETURNING a.id, a.email, a.failed_attempts, a.lockout_expiry,
		          (NOT next.locked AND next.attempts >= $3) AS just_locked
	`

	var state models.LockoutState
	err := r.pool.QueryRow(ctx, query, username, now, threshold, now.Add(lockFor)).Scan(
		&state.AccountID, &state.Email, &state.FailedAttempts, &state.LockoutExpiry, &state.JustLocked,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &state, nil
}

func (r *AccountRepository) ResetFailedLogins(ctx context.Context, accountID int64) error {
	query := `
		UPDATE accounts
		SET failed_attempts = 0, lockout_expiry = NULL, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, accountID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) TouchLastAccess(ctx context.Context, accountID int64, at time.Time) error {
	query := `UPDATE accounts SET last_access = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, accountID, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Create inserts account and fills in its generated fields. A duplicate
// username or email yields models.ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (username, email, full_name, password_hash, role_id, active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		account.Username, account.Email, account.FullName, account.PasswordHash,
		account.RoleID, account.Active, account.CreatedBy,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", database.MapPostgresError(err))
	}

	return nil
}
