package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/controlinterno/casos-api/internal/metrics"
)

// StaleSessionStore deletes session rows that can no longer authenticate
type StaleSessionStore interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically removes expired and deactivated sessions
type CleanupManager struct {
	sessions  StaleSessionStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewCleanupManager creates a new cleanup manager. Rows are kept for
// retention after they stop being usable so audit queries can still join them.
func NewCleanupManager(
	sessions StaleSessionStore,
	m *metrics.Metrics,
	logger *slog.Logger,
	interval time.Duration,
	retention time.Duration,
) *CleanupManager {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention < 0 {
		retention = 0
	}
	return &CleanupManager{
		sessions:  sessions,
		metrics:   m,
		logger:    logger,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic cleanup task and blocks until Stop is called or
// ctx is cancelled
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("session cleanup stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("session cleanup context cancelled")
			return
		}
	}
}

// runCleanup removes sessions that went stale before the retention cutoff
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := cm.now().Add(-cm.retention)
	deleted, err := cm.sessions.DeleteStale(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to delete stale sessions", slog.Any("error", err))
		return
	}

	cm.metrics.SessionsSwept(deleted)
	if deleted > 0 {
		cm.logger.Info("stale session cleanup completed",
			slog.Int64("rows_deleted", deleted),
			slog.Time("cutoff", cutoff),
		)
	}
}

// Stop signals the cleanup manager to stop. It is safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
