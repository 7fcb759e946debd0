package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/controlinterno/casos-api/internal/auth"
	"github.com/controlinterno/casos-api/internal/background"
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
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db.SQL)
	roleRepo := repositories.NewRoleRepository(db.SQL)

	appMetrics := metrics.New()

	// Initialize token manager
	tokenManager := auth.NewTokenManager(
		cfg.Auth.AccessTokenSecret,
		cfg.Auth.RefreshTokenSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	// Lockout notices are optional; without SES the lock is only audited
	var notifier services.LockoutNotifier
	if cfg.Notice.Enabled {
		sesNotifier, err := services.NewSESLockoutNotifier(context.Background(), cfg.Notice.AWSRegion, cfg.Notice.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize lockout notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Initialize services
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
		timingDelay,
		services.AuthConfig{LogoutScope: models.LogoutScope(cfg.Auth.LogoutScope)},
		appMetrics,
		logger,
	)
	roleService := services.NewRoleService(roleRepo)

	// Bootstrap first admin account if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := services.EnsureAdminAccount(ctx, accountRepo, roleRepo, services.AdminBootstrap{
		Username:   cfg.Admin.Username,
		Email:      cfg.Admin.Email,
		FullName:   cfg.Admin.FullName,
		Password:   cfg.Admin.Password,
		BcryptCost: cfg.Auth.BcryptCost,
	}, logger); err != nil {
		logger.Error("failed to ensure admin account", slog.Any("error", err))
	}
	cancel()

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, roleService, ipConfig, logger)
	auditHandler := handlers.NewAuditHandler(auditRepo, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(appMetrics.Instrument)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// Register routes
	routes.RegisterRoutes(router, authHandler, auditHandler, authService, db, appMetrics.Handler(), routes.Config{
		LoginRateLimit: middlewareCustom.RateLimitConfig{
			Requests: cfg.Auth.LoginRateLimit,
			Window:   cfg.Auth.LoginRateWindow,
			IPConfig: ipConfig,
		},
		SessionRateLimit: middlewareCustom.RateLimitConfig{
			Requests: 100,
			Window:   time.Minute,
			IPConfig: ipConfig,
		},
	}, logger)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(sessionRepo, appMetrics, logger, cfg.Auth.CleanupInterval, cfg.Auth.SessionRetention)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}
