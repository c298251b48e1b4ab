package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/identity-api/internal/models"
)

const roleSelect = `SELECT r.name, r.description,
	COALESCE(array_agg(rp.permission_name ORDER BY rp.permission_name) FILTER (WHERE rp.permission_name IS NOT NULL), '{}') AS permissions
	FROM roles r
	LEFT JOIN role_permissions rp ON rp.role_name = r.name`

type roleRow struct {
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Permissions pq.StringArray `db:"permissions"`
}

// RoleRepository manages roles and their permission grants.
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository constructs a RoleRepository.
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// List returns every role with its permissions.
func (r *RoleRepository) List(ctx context.Context) ([]models.Role, error) {
	query := roleSelect + ` GROUP BY r.name, r.description ORDER BY r.name`
	var rows []roleRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	roles := make([]models.Role, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, toRole(row.Name, row.Description, row.Permissions))
	}
	return roles, nil
}

// FindByName returns a single role.
func (r *RoleRepository) FindByName(ctx context.Context, name string) (*models.Role, error) {
	query := roleSelect + ` WHERE r.name = $1 GROUP BY r.name, r.description`
	var row roleRow
	if err := r.db.GetContext(ctx, &row, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	role := toRole(row.Name, row.Description, row.Permissions)
	return &role, nil
}

// Create inserts a role and grants its permissions in one transaction.
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create role: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO roles (name, description) VALUES ($1, $2)`, role.Name, role.Description); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create role: %w", err)
	}
	if err := grantPermissions(ctx, tx, role); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create role: %w", err)
	}
	return nil
}

// Ensure creates the role when absent and adds any missing permission grants.
func (r *RoleRepository) Ensure(ctx context.Context, role *models.Role) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ensure role: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO roles (name, description) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`, role.Name, role.Description); err != nil {
		return fmt.Errorf("ensure role: %w", err)
	}
	if err := grantPermissions(ctx, tx, role); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ensure role: %w", err)
	}
	return nil
}

// Delete removes a role; grants and assignments cascade.
func (r *RoleRepository) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return requireAffected(res)
}

func grantPermissions(ctx context.Context, tx *sqlx.Tx, role *models.Role) error {
	if len(role.Permissions) == 0 {
		return nil
	}
	names := make([]string, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		names = append(names, p.Name)
	}
	const query = `INSERT INTO role_permissions (role_name, permission_name) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`
	if _, err := tx.ExecContext(ctx, query, role.Name, pq.Array(names)); err != nil {
		return fmt.Errorf("grant permissions: %w", err)
	}
	return nil
}
