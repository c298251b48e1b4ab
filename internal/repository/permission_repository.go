package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/identity-api/internal/models"
)

// PermissionRepository stores named permissions.
type PermissionRepository struct {
	db *sqlx.DB
}

// NewPermissionRepository constructs a PermissionRepository.
func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// List returns all permissions ordered by name.
func (r *PermissionRepository) List(ctx context.Context) ([]models.Permission, error) {
	var perms []models.Permission
	if err := r.db.SelectContext(ctx, &perms, `SELECT name, description FROM permissions ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return perms, nil
}

// Create inserts a permission.
func (r *PermissionRepository) Create(ctx context.Context, perm *models.Permission) error {
	if _, err := r.db.NamedExecContext(ctx, `INSERT INTO permissions (name, description) VALUES (:name, :description)`, perm); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}

// Delete removes a permission; role grants cascade.
func (r *PermissionRepository) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM permissions WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	return requireAffected(res)
}

// Existing returns the subset of names that are stored permissions.
func (r *PermissionRepository) Existing(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var found []string
	if err := r.db.SelectContext(ctx, &found, `SELECT name FROM permissions WHERE name = ANY($1)`, pq.Array(names)); err != nil {
		return nil, fmt.Errorf("lookup permissions: %w", err)
	}
	return found, nil
}
