package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/controlinterno/casos-api/internal/models"
	pkghttp "github.com/controlinterno/casos-api/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// IdentityContextKey is the key for storing the resolved caller in context
	IdentityContextKey contextKey = "identity"
)

// Authenticator resolves a bearer token to the calling identity
type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (*models.Identity, error)
}

// Authenticate validates the bearer token on every request and injects the
// resolved Identity into the request context.
func Authenticate(gate Authenticator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := gate.Authenticate(r.Context(), pkghttp.BearerToken(r))
			if err != nil {
				writeAuthError(w, r, logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrMissingToken):
		pkghttp.WriteError(w, http.StatusUnauthorized, "missing_token", "Token de acceso requerido")
	case errors.Is(err, models.ErrTokenExpired):
		pkghttp.WriteTokenExpired(w, "Token expirado")
	case errors.Is(err, models.ErrInvalidToken):
		pkghttp.WriteInvalidToken(w, "Token inválido")
	case errors.Is(err, models.ErrAccountNotFound), errors.Is(err, models.ErrAccountInactive):
		pkghttp.WriteUnauthorized(w, "Usuario no encontrado o inactivo")
	default:
		if logger != nil {
			logger.ErrorContext(r.Context(), "authentication failed", "error", err, "path", r.URL.Path)
		}
		pkghttp.WriteInternalError(w, "Error interno del servidor")
	}
}

// RequirePermission rejects callers whose role lacks action on resource.
// Must be mounted after Authenticate.
func RequirePermission(resource, action string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				pkghttp.WriteUnauthorized(w, "No autenticado")
				return
			}

			if err := models.RequirePermission(identity, resource, action); err != nil {
				pkghttp.WriteErrorWithDetails(w, http.StatusForbidden, "forbidden",
					"No tienes permisos para realizar esta acción", resource+":"+action)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole creates a middleware that enforces role-based access control
func RequireRole(roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				pkghttp.WriteUnauthorized(w, "No autenticado")
				return
			}

			if !identity.HasRole(roles...) {
				pkghttp.WriteForbidden(w, "Rol insuficiente para esta acción")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity returns a copy of ctx carrying identity
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// IdentityFromContext extracts the caller from a request context, or nil
func IdentityFromContext(ctx context.Context) *models.Identity {
	identity, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}
