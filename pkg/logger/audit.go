package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is the structured-log mirror of an audit row
type AuditEvent struct {
	EventType     string
	AccountID     int64 // 0 when the account is unknown
	Username      string
	RequestOrigin string
	ClientAgent   string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security events to the application log
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// LogAuthAttempt logs login, refresh and lockout outcomes. Failures are logged at warn.
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", al.attrs("auth", event)...)
}

// LogSessionEvent logs logout and session revocation events
func (al *AuditLogger) LogSessionEvent(ctx context.Context, event AuditEvent) {
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", al.attrs("session", event)...)
}

func (al *AuditLogger) attrs(auditType string, event AuditEvent) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != 0 {
		attrs = append(attrs, slog.Int64("account_id", event.AccountID))
	}
	if event.Username != "" {
		attrs = append(attrs, slog.String("username", MaskUsername(event.Username)))
	}
	if event.RequestOrigin != "" {
		attrs = append(attrs, slog.String("request_origin", event.RequestOrigin))
	}
	if event.ClientAgent != "" {
		attrs = append(attrs, slog.String("client_agent", event.ClientAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}
	return attrs
}
