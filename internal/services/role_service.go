package services

import (
	"context"
	"fmt"

	"github.com/controlinterno/casos-api/internal/models"
)

// RoleRepository lists the roles seeded for the firm
type RoleRepository interface {
	List(ctx context.Context) ([]*models.Role, error)
}

// RoleView is a role as shown to administrators
type RoleView struct {
	*models.Role
	Permissions models.Permissions `json:"permisos"`
}

// RoleService exposes the role catalogue
type RoleService struct {
	repo RoleRepository
}

func NewRoleService(repo RoleRepository) *RoleService {
	return &RoleService{repo: repo}
}

// List returns every role with its decoded permission set
func (s *RoleService) List(ctx context.Context) ([]RoleView, error) {
	roles, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	views := make([]RoleView, 0, len(roles))
	for _, role := range roles {
		perms, err := models.ParsePermissions(role.RawPermissions)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", role.Name, err)
		}
		views = append(views, RoleView{Role: role, Permissions: perms})
	}
	return views, nil
}
