package models

// RolePrefix marks role entries inside a scope claim.
const RolePrefix = "ROLE_"

// Built-in roles seeded at boot.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Role groups permissions granted to users.
type Role struct {
	Name        string       `db:"name" json:"name"`
	Description string       `db:"description" json:"description"`
	Permissions []Permission `db:"-" json:"permissions"`
}

// Permission is a named capability carried in the scope claim.
type Permission struct {
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
}
