package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/controlinterno/casos-api/internal/auth"
	"github.com/controlinterno/casos-api/internal/models"
	"github.com/controlinterno/casos-api/internal/services"
	pkghttp "github.com/controlinterno/casos-api/pkg/http"
)

// maxBodyBytes bounds the JSON bodies accepted by the auth endpoints
const maxBodyBytes = 1 << 16

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password string, meta models.ClientMeta) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string, meta models.ClientMeta) (*models.TokenPair, error)
	Logout(ctx context.Context, identity *models.Identity, token string) error
	LogoutAll(ctx context.Context, identity *models.Identity) error
}

// RoleServiceInterface lists the role catalogue
type RoleServiceInterface interface {
	List(ctx context.Context) ([]services.RoleView, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	roles    RoleServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, roles RoleServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		service:  service,
		roles:    roles,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=72"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// Response DTOs

// UserResponse is the public view of the signed-in account
type UserResponse struct {
	ID          int64              `json:"id"`
	Username    string             `json:"username"`
	Email       string             `json:"email"`
	FullName    string             `json:"fullName"`
	Role        string             `json:"role"`
	Permissions models.Permissions `json:"permissions"`
}

// LoginResponse is returned by a successful login
type LoginResponse struct {
	Message          string       `json:"message"`
	User             UserResponse `json:"user"`
	AccessToken      string       `json:"accessToken"`
	RefreshToken     string       `json:"refreshToken"`
	AccessExpiresAt  time.Time    `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time    `json:"refreshExpiresAt"`
}

// MeResponse describes the caller of an authenticated request
type MeResponse struct {
	UserResponse
	TokenExpiresAt time.Time `json:"tokenExpiresAt"`
}

// MessageResponse carries a plain confirmation
type MessageResponse struct {
	Message string `json:"message"`
}

func newUserResponse(identity *models.Identity) UserResponse {
	perms := identity.Permissions
	if perms == nil {
		perms = models.Permissions{}
	}
	return UserResponse{
		ID:          identity.AccountID,
		Username:    identity.Username,
		Email:       identity.Email,
		FullName:    identity.FullName,
		Role:        identity.Role,
		Permissions: perms,
	}
}

func (h *AuthHandler) clientMeta(r *http.Request) models.ClientMeta {
	return models.ClientMeta{
		RequestOrigin: pkghttp.ExtractClientIP(r, h.ipConfig),
		ClientAgent:   pkghttp.ClientAgent(r),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := decodeBody(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Cuerpo de la solicitud inválido")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "bad_request", "Username y password son requeridos", err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password, h.clientMeta(r))
	if err != nil {
		if until, ok := models.LockedUntil(err); ok {
			pkghttp.WriteLocked(w, "Cuenta bloqueada temporalmente", until)
			return
		}
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Credenciales inválidas")
		case errors.Is(err, models.ErrAccountInactive):
			pkghttp.WriteError(w, http.StatusUnauthorized, "account_inactive", "Cuenta desactivada")
		default:
			pkghttp.WriteInternalError(w, "Error interno del servidor")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Message:          "Login exitoso",
		User:             newUserResponse(result.Identity),
		AccessToken:      result.Tokens.AccessToken,
		RefreshToken:     result.Tokens.RefreshToken,
		AccessExpiresAt:  result.Tokens.AccessExpiresAt,
		RefreshExpiresAt: result.Tokens.RefreshExpiresAt,
	})
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest

	if err := decodeBody(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Cuerpo de la solicitud inválido")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "bad_request", "Refresh token requerido", err.Error())
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken, h.clientMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidToken), errors.Is(err, models.ErrTokenExpired):
			pkghttp.WriteInvalidToken(w, "Refresh token inválido o expirado")
		case errors.Is(err, models.ErrAccountInactive):
			pkghttp.WriteError(w, http.StatusUnauthorized, "account_inactive", "Cuenta desactivada")
		default:
			pkghttp.WriteInternalError(w, "Error interno del servidor")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, pair)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Token de acceso requerido")
		return
	}

	if err := h.service.Logout(r.Context(), identity, pkghttp.BearerToken(r)); err != nil {
		h.logger.ErrorContext(r.Context(), "logout failed", slog.Int64("account_id", identity.AccountID), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Error interno del servidor")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Logout exitoso"})
}

// LogoutAll handles POST /auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Token de acceso requerido")
		return
	}

	if err := h.service.LogoutAll(r.Context(), identity); err != nil {
		h.logger.ErrorContext(r.Context(), "logout-all failed", slog.Int64("account_id", identity.AccountID), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Error interno del servidor")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Todas las sesiones fueron cerradas"})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Token de acceso requerido")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MeResponse{
		UserResponse:   newUserResponse(identity),
		TokenExpiresAt: identity.ExpiresAt,
	})
}

// Roles handles GET /auth/roles
func (h *AuthHandler) Roles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list roles", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Error interno del servidor")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, roles)
}
