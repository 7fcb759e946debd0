//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/controlinterno/casos-api/internal/auth"
	"github.com/controlinterno/casos-api/internal/config"
	"github.com/controlinterno/casos-api/internal/database"
	"github.com/controlinterno/casos-api/internal/handlers"
	"github.com/controlinterno/casos-api/internal/metrics"
	middlewareCustom "github.com/controlinterno/casos-api/internal/middleware"
	"github.com/controlinterno/casos-api/internal/models"
	"github.com/controlinterno/casos-api/internal/repositories"
	"github.com/controlinterno/casos-api/internal/routes"
	"github.com/controlinterno/casos-api/internal/services"
	pkghttp "github.com/controlinterno/casos-api/pkg/http"
	pkglogger "github.com/controlinterno/casos-api/pkg/logger"
)

// MockNotifier captures lockout notices for test assertions
type MockNotifier struct {
	mu      sync.Mutex
	Notices []*models.LockoutState
}

// SendLockoutNotice records the notice
func (m *MockNotifier) SendLockoutNotice(ctx context.Context, state *models.LockoutState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notices = append(m.Notices, state)
	return nil
}

// Count returns the number of notices sent so far
func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Notices)
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Notifier *MockNotifier
	Metrics  *metrics.Metrics
	Config   *config.Config
}

// NewTestServer initializes a complete HTTP server with a real database and a
// captured lockout notifier
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			AccessTokenSecret:  "integration-access-secret-0123456789abcdef",
			RefreshTokenSecret: "integration-refresh-secret-0123456789abcdef",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
			LockoutThreshold:   5,
			LockoutDuration:    30 * time.Minute,
			LogoutScope:        string(models.LogoutScopeToken),
			LoginRateLimit:     100,
			LoginRateWindow:    time.Minute,
		},
		Server: config.ServerConfig{
			Port: "0",
			Env:  "test",
		},
	}

	accountRepo := repositories.NewAccountRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db.SQL)
	roleRepo := repositories.NewRoleRepository(db.SQL)

	appMetrics := metrics.New()
	notifier := &MockNotifier{}

	tokenManager := auth.NewTokenManager(
		cfg.Auth.AccessTokenSecret,
		cfg.Auth.RefreshTokenSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	auditService := services.NewAuditService(auditRepo, pkglogger.NewAuditLogger(logger), appMetrics, logger)
	lockoutPolicy := services.NewLockoutPolicy(accountRepo, services.LockoutConfig{
		Threshold: cfg.Auth.LockoutThreshold,
		Duration:  cfg.Auth.LockoutDuration,
	}, notifier, appMetrics, logger)
	tokenIssuer := services.NewTokenIssuer(tokenManager, sessionRepo, logger)
	authService := services.NewAuthService(
		accountRepo,
		sessionRepo,
		tokenManager,
		tokenIssuer,
		lockoutPolicy,
		auditService,
		nil,
		services.AuthConfig{LogoutScope: models.LogoutScope(cfg.Auth.LogoutScope)},
		appMetrics,
		logger,
	)

	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(authService, services.NewRoleService(roleRepo), ipConfig, logger)
	auditHandler := handlers.NewAuditHandler(auditRepo, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(appMetrics.Instrument)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	routes.RegisterRoutes(r, authHandler, auditHandler, authService, db, appMetrics.Handler(), routes.Config{
		LoginRateLimit:   middlewareCustom.RateLimitConfig{Requests: cfg.Auth.LoginRateLimit, Window: cfg.Auth.LoginRateWindow, IPConfig: ipConfig},
		SessionRateLimit: middlewareCustom.RateLimitConfig{Requests: 1000, Window: time.Minute, IPConfig: ipConfig},
	}, logger)

	return &TestServer{
		Server:   httptest.NewServer(r),
		DB:       db,
		Notifier: notifier,
		Metrics:  appMetrics,
		Config:   cfg,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
}

// Login posts credentials and returns the response
func (ts *TestServer) Login(username, password string) (*http.Response, error) {
	return ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
}

// ParseJSONResponse parses JSON response body into target and closes it
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractTokensFromResponse extracts access/refresh tokens from a login or
// refresh response
func ExtractTokensFromResponse(resp *http.Response) (accessToken, refreshToken string, err error) {
	var pair models.TokenPair
	if err := ParseJSONResponse(resp, &pair); err != nil {
		return "", "", err
	}
	return pair.AccessToken, pair.RefreshToken, nil
}

// GetErrorResponse decodes a standard error body
func GetErrorResponse(resp *http.Response) (pkghttp.ErrorResponse, error) {
	var errResp pkghttp.ErrorResponse
	err := ParseJSONResponse(resp, &errResp)
	return errResp, err
}
