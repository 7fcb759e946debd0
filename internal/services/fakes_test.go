package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/controlinterno/casos-api/internal/auth"
	"github.com/controlinterno/casos-api/internal/metrics"
	"github.com/controlinterno/casos-api/internal/models"
	pkgauth "github.com/controlinterno/casos-api/pkg/auth"
	pkglogger "github.com/controlinterno/casos-api/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAccessSecret  = "access-secret-for-service-tests-0123456789"
	testRefreshSecret = "refresh-secret-for-service-tests-0123456789"
	testPassword      = "Clave-Segura-2024"
)

// testClock is a settable time source shared by every component of a fixture
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memAccounts is an in-memory AccountRepository
type memAccounts struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account

	recordErr error
	resetErr  error
	touchErr  error
	getErr    error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[int64]*models.Account)}
}

func (m *memAccounts) add(a *models.Account) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	return a
}

func (m *memAccounts) snapshot(id int64) models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAccount(m.accounts[id])
}

func cloneAccount(a *models.Account) models.Account {
	c := *a
	if a.LockoutExpiry != nil {
		t := *a.LockoutExpiry
		c.LockoutExpiry = &t
	}
	if a.LastAccess != nil {
		t := *a.LastAccess
		c.LastAccess = &t
	}
	return c
}

func (m *memAccounts) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, a := range m.accounts {
		if a.Username == username {
			c := cloneAccount(a)
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memAccounts) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := cloneAccount(a)
	return &c, nil
}

func (m *memAccounts) RecordFailedLogin(ctx context.Context, username string, threshold int, lockFor time.Duration, now time.Time) (*models.LockoutState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	for _, a := range m.accounts {
		if a.Username != username {
			continue
		}
		if a.LockoutExpiry != nil && !now.Before(*a.LockoutExpiry) {
			a.LockoutExpiry = nil
		}
		a.FailedAttempts++
		justLocked := false
		if a.FailedAttempts >= threshold && a.LockoutExpiry == nil {
			until := now.Add(lockFor)
			a.LockoutExpiry = &until
			justLocked = true
		}
		state := &models.LockoutState{
			AccountID:      a.ID,
			Email:          a.Email,
			FailedAttempts: a.FailedAttempts,
			JustLocked:     justLocked,
		}
		if a.LockoutExpiry != nil {
			t := *a.LockoutExpiry
			state.LockoutExpiry = &t
		}
		return state, nil
	}
	return nil, models.ErrNotFound
}

func (m *memAccounts) ResetFailedLogins(ctx context.Context, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	if a, ok := m.accounts[accountID]; ok {
		a.FailedAttempts = 0
		a.LockoutExpiry = nil
	}
	return nil
}

func (m *memAccounts) TouchLastAccess(ctx context.Context, accountID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touchErr != nil {
		return m.touchErr
	}
	if a, ok := m.accounts[accountID]; ok {
		a.LastAccess = &at
	}
	return nil
}

// memSessions is an in-memory SessionRepository keyed by token hash
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*models.Session

	getErr    error
	createErr error
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*models.Session)}
}

func (m *memSessions) byToken(token string) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[auth.HashToken(token)]
	if !ok {
		return nil
	}
	c := *s
	return &c
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *memSessions) CreatePair(ctx context.Context, access, refresh *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	a, r := *access, *refresh
	m.sessions[a.TokenHash] = &a
	m.sessions[r.TokenHash] = &r
	return nil
}

func (m *memSessions) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *memSessions) RotateRefresh(ctx context.Context, oldHash string, accountID int64, now time.Time, access, refresh *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.sessions[oldHash]
	if !ok || old.Kind != models.TokenKindRefresh || old.AccountID != accountID || !old.UsableAt(now) {
		return models.ErrNotFound
	}
	old.Active = false
	a, r := *access, *refresh
	m.sessions[a.TokenHash] = &a
	m.sessions[r.TokenHash] = &r
	return nil
}

func (m *memSessions) Deactivate(ctx context.Context, tokenHash string, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[tokenHash]; ok && s.AccountID == accountID {
		s.Active = false
	}
	return nil
}

func (m *memSessions) DeactivatePair(ctx context.Context, pairID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.PairID == pairID {
			s.Active = false
		}
	}
	return nil
}

func (m *memSessions) DeactivateAllForAccount(ctx context.Context, accountID int64, kinds []models.TokenKind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.AccountID != accountID || !s.Active {
			continue
		}
		for _, k := range kinds {
			if s.Kind == k {
				s.Active = false
				n++
				break
			}
		}
	}
	return n, nil
}

// memAudit is an in-memory AuditLogRepository
type memAudit struct {
	mu        sync.Mutex
	rows      []*models.AuditLog
	createErr error
}

func (m *memAudit) Create(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.rows = append(m.rows, log)
	return nil
}

func (m *memAudit) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.EventType)
	}
	return out
}

// fakeNotifier records lockout notices
type fakeNotifier struct {
	sent chan *models.LockoutState
	err  error
}

func (f *fakeNotifier) SendLockoutNotice(ctx context.Context, state *models.LockoutState) error {
	f.sent <- state
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// authFixture wires an AuthService over in-memory stores with a shared clock
type authFixture struct {
	svc      *AuthService
	accounts *memAccounts
	sessions *memSessions
	audit    *memAudit
	clock    *testClock
	tokens   *auth.TokenManager
	issuer   *TokenIssuer
	lockout  *LockoutPolicy
	metrics  *metrics.Metrics
	notifier *fakeNotifier
}

func newAuthFixture(t *testing.T, scope models.LogoutScope) *authFixture {
	t.Helper()

	f := &authFixture{
		accounts: newMemAccounts(),
		sessions: newMemSessions(),
		audit:    &memAudit{},
		clock:    newTestClock(),
		metrics:  metrics.New(),
		notifier: &fakeNotifier{sent: make(chan *models.LockoutState, 4)},
	}
	logger := discardLogger()

	f.tokens = auth.NewTokenManager(testAccessSecret, testRefreshSecret, 15*time.Minute, 7*24*time.Hour, auth.WithClock(f.clock.Now))
	f.issuer = NewTokenIssuer(f.tokens, f.sessions, logger)
	f.issuer.now = f.clock.Now
	f.lockout = NewLockoutPolicy(f.accounts, LockoutConfig{Threshold: 5, Duration: 30 * time.Minute}, f.notifier, f.metrics, logger)
	f.lockout.now = f.clock.Now
	auditSvc := NewAuditService(f.audit, pkglogger.NewAuditLogger(logger), f.metrics, logger)

	f.svc = NewAuthService(f.accounts, f.sessions, f.tokens, f.issuer, f.lockout, auditSvc, nil,
		AuthConfig{LogoutScope: scope}, f.metrics, logger)
	f.svc.now = f.clock.Now

	return f
}

var (
	hashOnce   sync.Once
	cachedHash string
)

func testPasswordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := pkgauth.HashPassword(testPassword, bcrypt.MinCost)
		if err == nil {
			cachedHash = h
		}
	})
	require.NotEmpty(t, cachedHash)
	return cachedHash
}

func (f *authFixture) addAccount(t *testing.T, id int64, username string, active bool) *models.Account {
	t.Helper()
	return f.accounts.add(&models.Account{
		ID:           id,
		Username:     username,
		Email:        username + "@estudio.cl",
		FullName:     "Usuario " + username,
		PasswordHash: testPasswordHash(t),
		RoleID:       3,
		Role: &models.Role{
			ID:             3,
			Name:           models.RoleAbogado,
			RawPermissions: []byte(`{"casos":["leer","crear","actualizar"],"documentos":["leer"]}`),
		},
		Active: active,
	})
}

var testMeta = models.ClientMeta{RequestOrigin: "203.0.113.5", ClientAgent: "test-agent/1.0"}
