package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/controlinterno/casos-api/internal/auth"
	"github.com/controlinterno/casos-api/internal/models"
	"github.com/controlinterno/casos-api/internal/services"
	pkghttp "github.com/controlinterno/casos-api/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithIdentity attaches a resolved identity to the request, as the
// authentication middleware would
func WithIdentity(req *http.Request, identity *models.Identity) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc     func(ctx context.Context, username, password string, meta models.ClientMeta) (*services.LoginResult, error)
	RefreshFunc   func(ctx context.Context, refreshToken string, meta models.ClientMeta) (*models.TokenPair, error)
	LogoutFunc    func(ctx context.Context, identity *models.Identity, token string) error
	LogoutAllFunc func(ctx context.Context, identity *models.Identity) error
}

func (m *MockAuthService) Login(ctx context.Context, username, password string, meta models.ClientMeta) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, username, password, meta)
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string, meta models.ClientMeta) (*models.TokenPair, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrInvalidToken
	}
	return m.RefreshFunc(ctx, refreshToken, meta)
}

func (m *MockAuthService) Logout(ctx context.Context, identity *models.Identity, token string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, identity, token)
}

func (m *MockAuthService) LogoutAll(ctx context.Context, identity *models.Identity) error {
	if m.LogoutAllFunc == nil {
		return nil
	}
	return m.LogoutAllFunc(ctx, identity)
}

// MockRoleService implements RoleServiceInterface for testing
type MockRoleService struct {
	ListFunc func(ctx context.Context) ([]services.RoleView, error)
}

func (m *MockRoleService) List(ctx context.Context) ([]services.RoleView, error) {
	if m.ListFunc == nil {
		return []services.RoleView{}, nil
	}
	return m.ListFunc(ctx)
}
