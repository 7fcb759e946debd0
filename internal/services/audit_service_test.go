package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/controlinterno/casos-api/internal/metrics"
	"github.com/controlinterno/casos-api/internal/models"
	pkglogger "github.com/controlinterno/casos-api/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_RecordDualWrite(t *testing.T) {
	var buf bytes.Buffer
	repo := &memAudit{}
	svc := NewAuditService(repo, pkglogger.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil))), nil, discardLogger())

	svc.Record(context.Background(), AuditEntry{
		EventType:     models.AuditEventLoginFailed,
		AccountID:     5,
		Username:      "jperez",
		FailureReason: "invalid_password",
		Meta:          testMeta,
		Metadata:      models.AuditMetadata{"failed_attempts": "2"},
	})

	require.Len(t, repo.rows, 1)
	row := repo.rows[0]
	require.NotNil(t, row.AccountID)
	assert.Equal(t, int64(5), *row.AccountID)
	assert.False(t, row.Success)
	require.NotNil(t, row.FailureReason)
	assert.Equal(t, "invalid_password", *row.FailureReason)
	require.NotNil(t, row.RequestOrigin)
	assert.Equal(t, testMeta.RequestOrigin, *row.RequestOrigin)

	assert.Contains(t, buf.String(), `"username":"j*****"`)
	assert.Contains(t, buf.String(), `"failed_attempts":"2"`)
	assert.NotContains(t, buf.String(), "jperez")
}

func TestAuditService_UnknownAccountHasNullID(t *testing.T) {
	repo := &memAudit{}
	svc := NewAuditService(repo, pkglogger.NewAuditLogger(discardLogger()), nil, discardLogger())

	svc.Record(context.Background(), AuditEntry{EventType: models.AuditEventLoginFailed})

	require.Len(t, repo.rows, 1)
	assert.Nil(t, repo.rows[0].AccountID)
	assert.Nil(t, repo.rows[0].ClientAgent)
}

func TestAuditService_WriteFailureIsCounted(t *testing.T) {
	m := metrics.New()
	repo := &memAudit{createErr: errors.New("relation does not exist")}
	svc := NewAuditService(repo, pkglogger.NewAuditLogger(discardLogger()), m, discardLogger())

	svc.Record(context.Background(), AuditEntry{EventType: models.AuditEventLogout, Success: true})

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var got float64
	for _, family := range families {
		if family.GetName() == "auth_side_write_failures_total" {
			got = family.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, got)
}

func TestAuditService_NilIsNoop(t *testing.T) {
	var svc *AuditService
	svc.Record(context.Background(), AuditEntry{EventType: models.AuditEventLogin})
}
