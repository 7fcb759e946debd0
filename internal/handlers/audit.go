package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/controlinterno/casos-api/internal/models"
	pkghttp "github.com/controlinterno/casos-api/pkg/http"
	"github.com/go-chi/chi/v5"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 100
)

// AuditReader reads the security audit trail of an account
type AuditReader interface {
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.AuditLog, error)
}

// AuditHandler handles audit log HTTP requests
type AuditHandler struct {
	reader AuditReader
	logger *slog.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(reader AuditReader, logger *slog.Logger) *AuditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditHandler{reader: reader, logger: logger}
}

// AuditLogResponse represents an audit log entry in HTTP response
type AuditLogResponse struct {
	ID            string                 `json:"id"`
	EventType     string                 `json:"event_type"`
	AccountID     *int64                 `json:"account_id,omitempty"`
	Success       bool                   `json:"success"`
	FailureReason *string                `json:"failure_reason,omitempty"`
	RequestOrigin *string                `json:"request_origin,omitempty"`
	ClientAgent   *string                `json:"client_agent,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// GetAccountAuditTrail handles GET /auth/audit/{accountID}. Role checks are
// applied by the router.
func (h *AuditHandler) GetAccountAuditTrail(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil || accountID <= 0 {
		pkghttp.WriteBadRequest(w, "Identificador de usuario inválido")
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 && l <= maxAuditLimit {
			limit = l
		}
	}

	logs, err := h.reader.ListByAccount(r.Context(), accountID, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read audit trail", slog.Int64("account_id", accountID), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Error interno del servidor")
		return
	}

	resp := make([]AuditLogResponse, 0, len(logs))
	for _, log := range logs {
		resp = append(resp, AuditLogResponse{
			ID:            log.ID.String(),
			EventType:     log.EventType,
			AccountID:     log.AccountID,
			Success:       log.Success,
			FailureReason: log.FailureReason,
			RequestOrigin: log.RequestOrigin,
			ClientAgent:   log.ClientAgent,
			Metadata:      log.Metadata,
			CreatedAt:     log.CreatedAt,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
