package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/controlinterno/casos-api/internal/auth"
	"github.com/controlinterno/casos-api/internal/handlers"
	"github.com/controlinterno/casos-api/internal/middleware"
	"github.com/controlinterno/casos-api/internal/models"
	pkghttp "github.com/controlinterno/casos-api/pkg/http"
	"github.com/go-chi/chi/v5"
)

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config carries the route-level knobs taken from configuration
type Config struct {
	LoginRateLimit   middleware.RateLimitConfig
	SessionRateLimit middleware.RateLimitConfig
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	auditHandler *handlers.AuditHandler,
	gate auth.Authenticator,
	health HealthChecker,
	metricsHandler http.Handler,
	cfg Config,
	logger *slog.Logger,
) {
	router.Get("/health", healthHandler(health))
	if metricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	router.Route("/auth", func(r chi.Router) {
		// Public routes
		r.With(middleware.RateLimitByIP(cfg.LoginRateLimit)).Post("/login", authHandler.Login)
		r.With(middleware.RateLimitByIP(cfg.SessionRateLimit)).Post("/refresh", authHandler.Refresh)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(gate, logger))
			r.Use(middleware.RateLimitByAccount(cfg.SessionRateLimit))

			r.Get("/me", authHandler.Me)
			r.Post("/logout", authHandler.Logout)
			r.Post("/logout-all", authHandler.LogoutAll)

			r.With(auth.RequirePermission(models.ResourceUsuarios, models.ActionLeer)).Get("/roles", authHandler.Roles)
			r.With(auth.RequireRole(models.RoleSuperAdmin, models.RoleAdmin)).Get("/audit/{accountID}", auditHandler.GetAccountAuditTrail)
		})
	})
}

func healthHandler(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := health.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "up"})
	}
}
