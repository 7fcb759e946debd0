package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/controlinterno/casos-api/internal/auth"
	"github.com/controlinterno/casos-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockAuthenticator for testing
type MockAuthenticator struct {
	AuthenticateFunc func(ctx context.Context, bearerToken string) (*models.Identity, error)
	lastToken        string
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, bearerToken string) (*models.Identity, error) {
	m.lastToken = bearerToken
	return m.AuthenticateFunc(ctx, bearerToken)
}

func okHandler(_ *testing.T, seen **models.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = auth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	code, _ := body["error"].(string)
	return code
}

func TestAuthenticate_InjectsIdentity(t *testing.T) {
	want := &models.Identity{AccountID: 9, Username: "jdoe", Role: models.RoleAbogado}
	gate := &MockAuthenticator{AuthenticateFunc: func(ctx context.Context, token string) (*models.Identity, error) {
		return want, nil
	}}

	var seen *models.Identity
	handler := auth.Authenticate(gate, nil)(okHandler(t, &seen))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok-123", gate.lastToken)
	assert.Same(t, want, seen)
}

func TestAuthenticate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing token", models.ErrMissingToken, http.StatusUnauthorized, "missing_token"},
		{"expired", models.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
		{"invalid", models.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
		{"inactive", models.ErrAccountInactive, http.StatusUnauthorized, "unauthorized"},
		{"not found", models.ErrAccountNotFound, http.StatusUnauthorized, "unauthorized"},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := &MockAuthenticator{AuthenticateFunc: func(ctx context.Context, token string) (*models.Identity, error) {
				return nil, tt.err
			}}

			var seen *models.Identity
			handler := auth.Authenticate(gate, nil)(okHandler(t, &seen))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w))
			assert.Nil(t, seen)
			assert.NotContains(t, w.Body.String(), "connection refused")
		})
	}
}

func withIdentity(r *http.Request, identity *models.Identity) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), identity))
}

func TestRequirePermission(t *testing.T) {
	perms, err := models.ParsePermissions([]byte(`{"usuarios":["leer"],"casos":["leer","crear"]}`))
	require.NoError(t, err)
	identity := &models.Identity{AccountID: 1, Role: models.RoleAdmin, Permissions: perms}

	var seen *models.Identity

	w := httptest.NewRecorder()
	auth.RequirePermission(models.ResourceUsuarios, models.ActionLeer)(okHandler(t, &seen)).
		ServeHTTP(w, withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), identity))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	auth.RequirePermission(models.ResourceUsuarios, models.ActionEliminar)(okHandler(t, &seen)).
		ServeHTTP(w, withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), identity))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	auth.RequirePermission(models.ResourceUsuarios, models.ActionLeer)(okHandler(t, &seen)).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	var seen *models.Identity
	handler := auth.RequireRole(models.RoleSuperAdmin, models.RoleAdmin)(okHandler(t, &seen))

	tests := []struct {
		role string
		want int
	}{
		{models.RoleSuperAdmin, http.StatusOK},
		{models.RoleAdmin, http.StatusOK},
		{models.RoleAbogado, http.StatusForbidden},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), &models.Identity{Role: tt.role}))
		assert.Equal(t, tt.want, w.Code, tt.role)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
