package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/identity-api/internal/models"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, dob, active, created_at, updated_at`

// UserRepository provides database access for user management.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByUsername returns a user with roles and permissions loaded.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 LIMIT 1`
	return r.findOne(ctx, "find user by username", query, username)
}

// FindByID returns a user by identifier with roles and permissions loaded.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	return r.findOne(ctx, "find user by id", query, id)
}

func (r *UserRepository) findOne(ctx context.Context, op, query string, arg interface{}) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	users := []models.User{user}
	if err := r.attachRoles(ctx, users); err != nil {
		return nil, err
	}
	return &users[0], nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireAffected(res)
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var args []interface{}

	if filter.Username != "" {
		baseQuery += fmt.Sprintf(" AND LOWER(username) LIKE $%d", len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Username)+"%")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY username ASC LIMIT %d OFFSET %d", userColumns, baseQuery, pageSize, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	if err := r.attachRoles(ctx, users); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Create inserts a new user together with its role assignments.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertUser = `INSERT INTO users (id, username, email, password_hash, first_name, last_name, dob, active, created_at, updated_at) VALUES (:id, :username, :email, :password_hash, :first_name, :last_name, :dob, :active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertUser, user); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}

	if roles := user.RoleNames(); len(roles) > 0 {
		const insertRoles = `INSERT INTO user_roles (user_id, role_name) SELECT $1, unnest($2::text[])`
		if _, err := tx.ExecContext(ctx, insertRoles, user.ID, pq.Array(roles)); err != nil {
			return fmt.Errorf("assign user roles: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

// Delete removes a user; role assignments cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireAffected(res)
}

type userRoleRow struct {
	UserID      string         `db:"user_id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Permissions pq.StringArray `db:"permissions"`
}

func (r *UserRepository) attachRoles(ctx context.Context, users []models.User) error {
	if len(users) == 0 {
		return nil
	}
	ids := make([]string, len(users))
	index := make(map[string]int, len(users))
	for i := range users {
		ids[i] = users[i].ID
		index[users[i].ID] = i
		users[i].Roles = []models.Role{}
	}

	const query = `SELECT ur.user_id, r.name, r.description,
		COALESCE(array_agg(rp.permission_name ORDER BY rp.permission_name) FILTER (WHERE rp.permission_name IS NOT NULL), '{}') AS permissions
		FROM user_roles ur
		JOIN roles r ON r.name = ur.role_name
		LEFT JOIN role_permissions rp ON rp.role_name = r.name
		WHERE ur.user_id = ANY($1)
		GROUP BY ur.user_id, r.name, r.description
		ORDER BY r.name`

	var rows []userRoleRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load user roles: %w", err)
	}
	for _, row := range rows {
		i, ok := index[row.UserID]
		if !ok {
			continue
		}
		users[i].Roles = append(users[i].Roles, toRole(row.Name, row.Description, row.Permissions))
	}
	return nil
}

func toRole(name, description string, permissions []string) models.Role {
	role := models.Role{Name: name, Description: description, Permissions: make([]models.Permission, 0, len(permissions))}
	for _, p := range permissions {
		role.Permissions = append(role.Permissions, models.Permission{Name: p})
	}
	return role
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
