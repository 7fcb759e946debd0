package services

import (
	"context"
	"log/slog"

	"github.com/controlinterno/casos-api/internal/metrics"
	"github.com/controlinterno/casos-api/internal/models"
	pkglogger "github.com/controlinterno/casos-api/pkg/logger"
)

// AuditLogRepository persists audit rows
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuditEntry describes one security event
type AuditEntry struct {
	EventType     string
	AccountID     int64 // 0 when unknown
	Username      string
	Success       bool
	FailureReason string
	Meta          models.ClientMeta
	Metadata      models.AuditMetadata
}

// AuditService handles audit logging with dual-write pattern (slog + database).
// Writes are best-effort: failures are logged and counted, never returned.
type AuditService struct {
	repo        AuditLogRepository
	auditLogger *pkglogger.AuditLogger
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuditLogRepository, auditLogger *pkglogger.AuditLogger, m *metrics.Metrics, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:        repo,
		auditLogger: auditLogger,
		metrics:     m,
		logger:      logger,
	}
}

// Record writes entry to the structured log and then to the audit table
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	if s == nil {
		return
	}

	event := pkglogger.AuditEvent{
		EventType:     entry.EventType,
		AccountID:     entry.AccountID,
		Username:      entry.Username,
		RequestOrigin: entry.Meta.RequestOrigin,
		ClientAgent:   entry.Meta.ClientAgent,
		Success:       entry.Success,
		FailureReason: entry.FailureReason,
		Metadata:      stringMetadata(entry.Metadata),
	}
	switch entry.EventType {
	case models.AuditEventLogout, models.AuditEventLogoutAll:
		s.auditLogger.LogSessionEvent(ctx, event)
	default:
		s.auditLogger.LogAuthAttempt(ctx, event)
	}

	if s.repo == nil {
		return
	}

	row := &models.AuditLog{
		EventType:     entry.EventType,
		Success:       entry.Success,
		FailureReason: optionalString(entry.FailureReason),
		RequestOrigin: optionalString(entry.Meta.RequestOrigin),
		ClientAgent:   optionalString(entry.Meta.ClientAgent),
		Metadata:      entry.Metadata,
	}
	if entry.AccountID != 0 {
		id := entry.AccountID
		row.AccountID = &id
	}

	if err := s.repo.Create(ctx, row); err != nil {
		s.metrics.SideWriteFailed(metrics.SideWriteAudit)
		s.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("event_type", entry.EventType),
			slog.Any("error", err))
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringMetadata(md models.AuditMetadata) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
