package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/controlinterno/casos-api/internal/database"
	"github.com/controlinterno/casos-api/internal/models"
)

type RoleRepository struct {
	db *sql.DB
}

func NewRoleRepository(db *sql.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func scanRoleRow(row rowScanner) (*models.Role, error) {
	var role models.Role
	var permissions []byte

	if err := row.Scan(&role.ID, &role.Name, &role.Description, &permissions, &role.CreatedAt); err != nil {
		return nil, database.MapPostgresError(err)
	}

	role.RawPermissions = permissions
	return &role, nil
}

// List returns every role ordered by id
func (r *RoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	query := `SELECT id, name, description, permissions, created_at FROM roles ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]*models.Role, 0)
	for rows.Next() {
		role, err := scanRoleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}

	return roles, nil
}

func (r *RoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	query := `SELECT id, name, description, permissions, created_at FROM roles WHERE name = $1`

	return scanRoleRow(r.db.QueryRowContext(ctx, query, name))
}
