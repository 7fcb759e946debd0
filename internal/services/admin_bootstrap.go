package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/controlinterno/casos-api/internal/models"
	pkgauth "github.com/controlinterno/casos-api/pkg/auth"
)

// AccountCreator looks up and inserts accounts for the bootstrap path
type AccountCreator interface {
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
}

// RoleLookup resolves a role by its name
type RoleLookup interface {
	GetByName(ctx context.Context, name string) (*models.Role, error)
}

// AdminBootstrap describes the first administrator account
type AdminBootstrap struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	BcryptCost int
}

// EnsureAdminAccount creates the administrator account when it does not exist.
// It is a no-op when Password is empty or the username is already taken.
// Reports whether an account was created.
func EnsureAdminAccount(ctx context.Context, accounts AccountCreator, roles RoleLookup, admin AdminBootstrap, logger *slog.Logger) (bool, error) {
	if admin.Password == "" {
		logger.InfoContext(ctx, "ADMIN_PASSWORD not set, skipping admin bootstrap")
		return false, nil
	}

	_, err := accounts.GetByUsername(ctx, admin.Username)
	if err == nil {
		logger.InfoContext(ctx, "admin account already exists")
		return false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(admin.Password); err != nil {
		return false, fmt.Errorf("admin password rejected: %w", err)
	}

	role, err := roles.GetByName(ctx, models.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("failed to load %s role: %w", models.RoleAdmin, err)
	}

	hash, err := pkgauth.HashPassword(admin.Password, admin.BcryptCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash admin password: %w", err)
	}

	account := &models.Account{
		Username:     admin.Username,
		Email:        admin.Email,
		FullName:     admin.FullName,
		PasswordHash: hash,
		RoleID:       role.ID,
		Role:         role,
		Active:       true,
	}
	if err := accounts.Create(ctx, account); err != nil {
		if errors.Is(err, models.ErrConflict) {
			// another replica won the race
			return false, nil
		}
		return false, fmt.Errorf("failed to create admin account: %w", err)
	}

	logger.InfoContext(ctx, "admin account created", slog.Int64("account_id", account.ID))
	return true, nil
}
