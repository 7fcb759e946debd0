package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types for audit logging
const (
	AuditEventLogin       = "LOGIN"
	AuditEventLoginFailed = "LOGIN_FAILED"
	AuditEventLockout     = "LOCKOUT"
	AuditEventLogout      = "LOGOUT"
	AuditEventLogoutAll   = "LOGOUT_ALL"
	AuditEventRefresh     = "REFRESH"
)

type AuditLog struct {
	ID            uuid.UUID     `db:"id"`
	AccountID     *int64        `db:"account_id"`
	EventType     string        `db:"event_type"`
	Success       bool          `db:"success"`
	FailureReason *string       `db:"failure_reason"`
	RequestOrigin *string       `db:"request_origin"`
	ClientAgent   *string       `db:"client_agent"`
	Metadata      AuditMetadata `db:"metadata"`
	CreatedAt     time.Time     `db:"created_at"`
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(am))
}
