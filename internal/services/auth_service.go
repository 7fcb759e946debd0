package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/controlinterno/casos-api/internal/auth"
	"github.com/controlinterno/casos-api/internal/metrics"
	"github.com/controlinterno/casos-api/internal/models"
	pkgauth "github.com/controlinterno/casos-api/pkg/auth"
)

// AccountRepository reads accounts and performs the login bookkeeping writes
type AccountRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	// RecordFailedLogin increments failed_attempts atomically and opens a
	// lockout window of lockFor when threshold is reached. Returns
	// models.ErrNotFound for unknown usernames.
	RecordFailedLogin(ctx context.Context, username string, threshold int, lockFor time.Duration, now time.Time) (*models.LockoutState, error)
	ResetFailedLogins(ctx context.Context, accountID int64) error
	TouchLastAccess(ctx context.Context, accountID int64, at time.Time) error
}

// AuthConfig holds session behaviour switches
type AuthConfig struct {
	LogoutScope models.LogoutScope
}

// LoginResult is returned by a successful login
type LoginResult struct {
	Identity *models.Identity
	Tokens   *models.TokenPair
}

// AuthService handles authentication business logic
type AuthService struct {
	accounts    AccountRepository
	sessions    SessionRepository
	tokens      *auth.TokenManager
	issuer      *TokenIssuer
	lockout     *LockoutPolicy
	audit       *AuditService
	timing      *auth.TimingDelay
	logoutScope models.LogoutScope
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewAuthService creates a new AuthService. audit and timing may be nil.
func NewAuthService(
	accounts AccountRepository,
	sessions SessionRepository,
	tokens *auth.TokenManager,
	issuer *TokenIssuer,
	lockout *LockoutPolicy,
	audit *AuditService,
	timing *auth.TimingDelay,
	config AuthConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AuthService {
	scope := config.LogoutScope
	if scope != models.LogoutScopePair {
		scope = models.LogoutScopeToken
	}
	return &AuthService{
		accounts:    accounts,
		sessions:    sessions,
		tokens:      tokens,
		issuer:      issuer,
		lockout:     lockout,
		audit:       audit,
		timing:      timing,
		logoutScope: scope,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// Login verifies credentials under the lockout policy and issues a token pair.
// Unknown usernames and wrong passwords both yield models.ErrInvalidCredentials;
// an inactive account is only reported after the correct password.
func (s *AuthService) Login(ctx context.Context, username, password string, meta models.ClientMeta) (*LoginResult, error) {
	start := time.Now()
	username = strings.TrimSpace(username)

	if username == "" || password == "" {
		s.metrics.LoginAttempt(metrics.OutcomeInvalidCredentials)
		s.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.InfoContext(ctx, "login failed: invalid credentials")
			s.metrics.LoginAttempt(metrics.OutcomeInvalidCredentials)
			s.audit.Record(ctx, AuditEntry{
				EventType:     models.AuditEventLoginFailed,
				Username:      username,
				FailureReason: "unknown_username",
				Meta:          meta,
			})
			s.timing.WaitFrom(start, false)
			return nil, models.ErrInvalidCredentials
		}
		return nil, s.loginInternal(ctx, "failed to get account by username", err)
	}

	// checked before the password so a locked account never reveals whether the guess was right
	if s.lockout.IsLocked(account) {
		s.logger.InfoContext(ctx, "login blocked: account locked",
			slog.Int64("account_id", account.ID),
			slog.Time("locked_until", *account.LockoutExpiry))
		s.metrics.LoginAttempt(metrics.OutcomeLocked)
		s.audit.Record(ctx, AuditEntry{
			EventType:     models.AuditEventLoginFailed,
			AccountID:     account.ID,
			Username:      account.Username,
			FailureReason: "account_locked",
			Meta:          meta,
		})
		s.timing.WaitFrom(start, false)
		return nil, &models.AccountLockedError{Until: *account.LockoutExpiry}
	}

	ok, err := pkgauth.VerifyPassword(account.PasswordHash, password)
	if err != nil {
		return nil, s.loginInternal(ctx, "failed to verify password hash", err, slog.Int64("account_id", account.ID))
	}
	if !ok {
		s.recordFailedPassword(ctx, account, meta)
		s.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	if !account.Active {
		s.logger.InfoContext(ctx, "login blocked: account inactive", slog.Int64("account_id", account.ID))
		s.metrics.LoginAttempt(metrics.OutcomeInactive)
		s.audit.Record(ctx, AuditEntry{
			EventType:     models.AuditEventLoginFailed,
			AccountID:     account.ID,
			Username:      account.Username,
			FailureReason: "account_inactive",
			Meta:          meta,
		})
		return nil, models.ErrAccountInactive
	}

	identity, err := identityFor(account)
	if err != nil {
		return nil, s.loginInternal(ctx, "failed to decode role permissions", err, slog.Int64("account_id", account.ID))
	}

	if account.FailedAttempts > 0 || account.LockoutExpiry != nil {
		if err := s.lockout.RecordSuccess(ctx, account.ID); err != nil {
			s.metrics.SideWriteFailed(metrics.SideWriteReset)
			s.logger.ErrorContext(ctx, "failed to reset failed login counter",
				slog.Int64("account_id", account.ID), slog.Any("error", err))
		}
	}

	pair, err := s.issuer.Issue(ctx, account.ID, meta)
	if err != nil {
		return nil, s.loginInternal(ctx, "failed to issue tokens", err, slog.Int64("account_id", account.ID))
	}

	if err := s.accounts.TouchLastAccess(ctx, account.ID, s.now()); err != nil {
		s.metrics.SideWriteFailed(metrics.SideWriteLastAccess)
		s.logger.ErrorContext(ctx, "failed to update last access",
			slog.Int64("account_id", account.ID), slog.Any("error", err))
	}

	identity.Token = pair.AccessToken
	identity.ExpiresAt = pair.AccessExpiresAt

	s.logger.InfoContext(ctx, "user logged in", slog.Int64("account_id", account.ID))
	s.metrics.LoginAttempt(metrics.OutcomeSuccess)
	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventLogin,
		AccountID: account.ID,
		Username:  account.Username,
		Success:   true,
		Meta:      meta,
	})

	return &LoginResult{Identity: identity, Tokens: pair}, nil
}

// recordFailedPassword bumps the lockout counter. A failed bookkeeping write is
// logged and counted; the caller still answers from the state already read.
func (s *AuthService) recordFailedPassword(ctx context.Context, account *models.Account, meta models.ClientMeta) {
	s.logger.InfoContext(ctx, "login failed: invalid credentials", slog.Int64("account_id", account.ID))
	s.metrics.LoginAttempt(metrics.OutcomeInvalidCredentials)

	state, err := s.lockout.RecordFailure(ctx, account.Username)
	if err != nil {
		s.metrics.SideWriteFailed(metrics.SideWriteLockout)
		s.logger.ErrorContext(ctx, "failed to record failed login",
			slog.Int64("account_id", account.ID), slog.Any("error", err))
	}

	entry := AuditEntry{
		EventType:     models.AuditEventLoginFailed,
		AccountID:     account.ID,
		Username:      account.Username,
		FailureReason: "invalid_password",
		Meta:          meta,
	}
	if state != nil {
		entry.Metadata = models.AuditMetadata{"failed_attempts": fmt.Sprintf("%d", state.FailedAttempts)}
	}
	s.audit.Record(ctx, entry)

	if state != nil && state.JustLocked {
		s.audit.Record(ctx, AuditEntry{
			EventType: models.AuditEventLockout,
			AccountID: account.ID,
			Username:  account.Username,
			Success:   true,
			Meta:      meta,
			Metadata: models.AuditMetadata{
				"locked_until": state.LockoutExpiry.UTC().Format(time.RFC3339),
			},
		})
	}
}

func (s *AuthService) loginInternal(ctx context.Context, msg string, err error, attrs ...any) error {
	s.metrics.LoginAttempt(metrics.OutcomeError)
	s.logger.ErrorContext(ctx, msg, append(attrs, slog.Any("error", err))...)
	return models.ErrInternal
}

// Authenticate resolves a bearer access token to an Identity. It performs no
// writes and is safe to call on every protected request.
func (s *AuthService) Authenticate(ctx context.Context, bearerToken string) (*models.Identity, error) {
	identity, err := s.authenticate(ctx, bearerToken)
	s.metrics.GateCheck(gateOutcome(err))
	return identity, err
}

func (s *AuthService) authenticate(ctx context.Context, bearerToken string) (*models.Identity, error) {
	bearerToken = strings.TrimSpace(bearerToken)
	if bearerToken == "" {
		return nil, models.ErrMissingToken
	}

	claims, err := s.tokens.ParseAccessToken(bearerToken)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByTokenHash(ctx, auth.HashToken(bearerToken))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidToken
		}
		s.logger.ErrorContext(ctx, "failed to load session", slog.Int64("account_id", claims.AccountID), slog.Any("error", err))
		return nil, models.ErrInternal
	}
	if err := checkSession(session, models.TokenKindAccess, claims.AccountID, s.now()); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrAccountNotFound
		}
		s.logger.ErrorContext(ctx, "failed to load account", slog.Int64("account_id", claims.AccountID), slog.Any("error", err))
		return nil, models.ErrInternal
	}
	if !account.Active {
		return nil, models.ErrAccountInactive
	}

	identity, err := identityFor(account)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to decode role permissions", slog.Int64("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternal
	}
	identity.Token = bearerToken
	identity.ExpiresAt = claims.ExpiresAt.Time.UTC()

	return identity, nil
}

func gateOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, models.ErrMissingToken):
		return metrics.OutcomeMissingToken
	case errors.Is(err, models.ErrTokenExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, models.ErrInvalidToken):
		return metrics.OutcomeInvalidToken
	case errors.Is(err, models.ErrAccountInactive), errors.Is(err, models.ErrAccountNotFound):
		return metrics.OutcomeInactive
	default:
		return metrics.OutcomeError
	}
}

// Refresh rotates a refresh token into a new pair. The presented token is
// single-use: replaying it, even concurrently, yields models.ErrInvalidToken.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta models.ClientMeta) (*models.TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		s.metrics.Refresh(metrics.OutcomeMissingToken)
		return nil, models.ErrInvalidToken
	}

	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeInvalidToken)
		return nil, models.ErrInvalidToken
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.metrics.Refresh(metrics.OutcomeInvalidToken)
			return nil, models.ErrInvalidToken
		}
		s.metrics.Refresh(metrics.OutcomeError)
		s.logger.ErrorContext(ctx, "failed to load account for refresh", slog.Int64("account_id", claims.AccountID), slog.Any("error", err))
		return nil, models.ErrInternal
	}
	if !account.Active {
		s.logger.InfoContext(ctx, "token refresh blocked: account inactive", slog.Int64("account_id", account.ID))
		s.metrics.Refresh(metrics.OutcomeInactive)
		return nil, models.ErrAccountInactive
	}

	pair, err := s.issuer.Rotate(ctx, refreshToken, meta)
	if err != nil {
		if errors.Is(err, models.ErrInvalidToken) {
			s.logger.InfoContext(ctx, "refresh token rejected", slog.Int64("account_id", account.ID))
			s.metrics.Refresh(metrics.OutcomeInvalidToken)
			s.audit.Record(ctx, AuditEntry{
				EventType:     models.AuditEventRefresh,
				AccountID:     account.ID,
				Username:      account.Username,
				FailureReason: "invalid_refresh_token",
				Meta:          meta,
			})
			return nil, models.ErrInvalidToken
		}
		s.metrics.Refresh(metrics.OutcomeError)
		s.logger.ErrorContext(ctx, "failed to rotate refresh token", slog.Int64("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternal
	}

	s.logger.InfoContext(ctx, "token refreshed", slog.Int64("account_id", account.ID))
	s.metrics.Refresh(metrics.OutcomeSuccess)
	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventRefresh,
		AccountID: account.ID,
		Username:  account.Username,
		Success:   true,
		Meta:      meta,
	})

	return pair, nil
}

// Logout deactivates the presented token, or its whole pair when the service
// is configured with models.LogoutScopePair. Logging out an inactive or
// unknown token is not an error.
func (s *AuthService) Logout(ctx context.Context, identity *models.Identity, token string) error {
	if identity == nil {
		return models.ErrMissingToken
	}
	if token = strings.TrimSpace(token); token == "" {
		token = identity.Token
	}
	if token == "" {
		return models.ErrMissingToken
	}

	hash := auth.HashToken(token)

	switch s.logoutScope {
	case models.LogoutScopePair:
		session, err := s.sessions.GetByTokenHash(ctx, hash)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			s.logger.ErrorContext(ctx, "failed to load session for logout", slog.Int64("account_id", identity.AccountID), slog.Any("error", err))
			return models.ErrInternal
		}
		if session.AccountID != identity.AccountID {
			return nil
		}
		if err := s.sessions.DeactivatePair(ctx, session.PairID); err != nil {
			s.logger.ErrorContext(ctx, "failed to deactivate session pair", slog.Int64("account_id", identity.AccountID), slog.Any("error", err))
			return models.ErrInternal
		}
	default:
		if err := s.sessions.Deactivate(ctx, hash, identity.AccountID); err != nil {
			s.logger.ErrorContext(ctx, "failed to deactivate session", slog.Int64("account_id", identity.AccountID), slog.Any("error", err))
			return models.ErrInternal
		}
	}

	s.logger.InfoContext(ctx, "user logged out", slog.Int64("account_id", identity.AccountID))
	s.metrics.Logout(string(s.logoutScope))
	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventLogout,
		AccountID: identity.AccountID,
		Username:  identity.Username,
		Success:   true,
		Metadata:  models.AuditMetadata{"scope": string(s.logoutScope)},
	})

	return nil
}

// LogoutAll deactivates every active session of the caller's account
func (s *AuthService) LogoutAll(ctx context.Context, identity *models.Identity) error {
	if identity == nil {
		return models.ErrMissingToken
	}

	n, err := s.sessions.DeactivateAllForAccount(ctx, identity.AccountID,
		[]models.TokenKind{models.TokenKindAccess, models.TokenKindRefresh})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to deactivate all sessions", slog.Int64("account_id", identity.AccountID), slog.Any("error", err))
		return models.ErrInternal
	}

	s.logger.InfoContext(ctx, "user logged out from all devices",
		slog.Int64("account_id", identity.AccountID), slog.Int64("sessions", n))
	s.metrics.Logout("all")
	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventLogoutAll,
		AccountID: identity.AccountID,
		Username:  identity.Username,
		Success:   true,
		Metadata:  models.AuditMetadata{"sessions": fmt.Sprintf("%d", n)},
	})

	return nil
}

// identityFor builds the Identity of an active account from its role
func identityFor(account *models.Account) (*models.Identity, error) {
	if account.Role == nil {
		return nil, fmt.Errorf("account %d has no role loaded", account.ID)
	}
	perms, err := models.ParsePermissions(account.Role.RawPermissions)
	if err != nil {
		return nil, err
	}
	return &models.Identity{
		AccountID:   account.ID,
		Username:    account.Username,
		Email:       account.Email,
		FullName:    account.FullName,
		Role:        account.Role.Name,
		Permissions: perms,
	}, nil
}
