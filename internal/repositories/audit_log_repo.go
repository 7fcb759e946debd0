package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/controlinterno/casos-api/internal/database"
	"github.com/controlinterno/casos-api/internal/models"
	"github.com/google/uuid"
)

// AuditLogRepository handles audit log data access
type AuditLogRepository struct {
	db *sql.DB
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *sql.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// scanAuditLogRow handles nullable fields and populates an AuditLog model from a database row
func scanAuditLogRow(row rowScanner) (*models.AuditLog, error) {
	var log models.AuditLog
	var accountID sql.NullInt64
	var failureReason, requestOrigin, clientAgent sql.NullString

	err := row.Scan(
		&log.ID, &accountID, &log.EventType, &log.Success,
		&failureReason, &requestOrigin, &clientAgent, &log.Metadata,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if accountID.Valid {
		log.AccountID = &accountID.Int64
	}
	log.FailureReason = nullableString(failureReason)
	log.RequestOrigin = nullableString(requestOrigin)
	log.ClientAgent = nullableString(clientAgent)

	return &log, nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

// Create stores a new audit log entry, assigning its id and timestamp when unset
func (r *AuditLogRepository) Create(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, account_id, event_type, success, failure_reason,
			request_origin, client_agent, metadata, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query,
		log.ID, log.AccountID, log.EventType, log.Success, log.FailureReason,
		log.RequestOrigin, log.ClientAgent, log.Metadata, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", database.MapPostgresError(err))
	}

	return nil
}

// ListByAccount returns the most recent audit entries for an account
func (r *AuditLogRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, account_id, event_type, success, failure_reason,
		       request_origin, client_agent, metadata, created_at
		FROM audit_logs
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}
