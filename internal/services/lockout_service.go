package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/controlinterno/casos-api/internal/metrics"
	"github.com/controlinterno/casos-api/internal/models"
	pkglogger "github.com/controlinterno/casos-api/pkg/logger"
)

// Lockout defaults
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
	lockoutNoticeTimeout    = 10 * time.Second
)

// LockoutConfig holds the failed-attempt policy
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// LockoutNotifier is told when an account has just been locked
type LockoutNotifier interface {
	SendLockoutNotice(ctx context.Context, state *models.LockoutState) error
}

// LockoutPolicy tracks failed logins per account and locks accounts that reach
// the threshold.
type LockoutPolicy struct {
	repo     AccountRepository
	config   LockoutConfig
	notifier LockoutNotifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewLockoutPolicy creates a new LockoutPolicy. notifier may be nil.
func NewLockoutPolicy(repo AccountRepository, config LockoutConfig, notifier LockoutNotifier, m *metrics.Metrics, logger *slog.Logger) *LockoutPolicy {
	if config.Threshold <= 0 {
		config.Threshold = DefaultLockoutThreshold
	}
	if config.Duration <= 0 {
		config.Duration = DefaultLockoutDuration
	}
	return &LockoutPolicy{
		repo:     repo,
		config:   config,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// IsLocked reports whether account is inside an active lockout window
func (p *LockoutPolicy) IsLocked(account *models.Account) bool {
	return account.IsLockedAt(p.now())
}

// RecordFailure increments the failed-attempt counter for username in a single
// statement and locks the account when the threshold is reached. Unknown
// usernames are a no-op and return (nil, nil).
func (p *LockoutPolicy) RecordFailure(ctx context.Context, username string) (*models.LockoutState, error) {
	state, err := p.repo.RecordFailedLogin(ctx, username, p.config.Threshold, p.config.Duration, p.now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("record failed login: %w", err)
	}

	if state.JustLocked {
		p.metrics.Lockout()
		p.logger.WarnContext(ctx, "account locked",
			slog.Int64("account_id", state.AccountID),
			slog.String("username", pkglogger.MaskUsername(username)),
			slog.Int("failed_attempts", state.FailedAttempts),
			slog.Time("locked_until", *state.LockoutExpiry))
		p.notify(ctx, state)
	}

	return state, nil
}

// RecordSuccess clears the counter and any lockout expiry
func (p *LockoutPolicy) RecordSuccess(ctx context.Context, accountID int64) error {
	if err := p.repo.ResetFailedLogins(ctx, accountID); err != nil {
		return fmt.Errorf("reset failed logins: %w", err)
	}
	return nil
}

// notify sends the lockout notice off the request path
func (p *LockoutPolicy) notify(ctx context.Context, state *models.LockoutState) {
	if p.notifier == nil || state.Email == "" {
		return
	}

	noticeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockoutNoticeTimeout)
	go func() {
		defer cancel()
		if err := p.notifier.SendLockoutNotice(noticeCtx, state); err != nil {
			p.metrics.SideWriteFailed(metrics.SideWriteLockoutMail)
			p.logger.Error("failed to send lockout notice",
				slog.Int64("account_id", state.AccountID),
				slog.Any("error", err))
		}
	}()
}
