package models

import (
	"strings"
	"time"
)

// User represents an account stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	DOB          *time.Time `db:"dob" json:"dob,omitempty"`
	Active       bool       `db:"active" json:"active"`
	Roles        []Role     `db:"-" json:"roles"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Scope renders the space delimited scope claim: ROLE_<name> followed by the role's permissions, per role.
func (u *User) Scope() string {
	if u == nil {
		return ""
	}
	parts := make([]string, 0, len(u.Roles)*2)
	for _, role := range u.Roles {
		parts = append(parts, RolePrefix+role.Name)
		for _, perm := range role.Permissions {
			parts = append(parts, perm.Name)
		}
	}
	return strings.Join(parts, " ")
}

// RoleNames lists the names of the user's roles.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		names = append(names, role.Name)
	}
	return names
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Username string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
