package dto

import "time"

// CreateUserRequest registers a new account.
type CreateUserRequest struct {
	Username  string     `json:"username" validate:"required,min=3,max=64,lowercase,alphanum"`
	Password  string     `json:"password" validate:"required,min=6,max=72"`
	Email     string     `json:"email" validate:"required,email"`
	FirstName string     `json:"first_name" validate:"max=100"`
	LastName  string     `json:"last_name" validate:"max=100"`
	DOB       *time.Time `json:"dob"`
}

// ChangePasswordRequest updates the caller's own password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=72,nefield=OldPassword"`
}

// ListUsersQuery binds the user listing query string.
type ListUsersQuery struct {
	Username string `form:"username"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// CreateRoleRequest creates a role granting existing permissions.
type CreateRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=64,uppercase"`
	Description string   `json:"description" validate:"max=255"`
	Permissions []string `json:"permissions" validate:"dive,required,max=64"`
}

// CreatePermissionRequest creates a named permission.
type CreatePermissionRequest struct {
	Name        string `json:"name" validate:"required,max=64,uppercase"`
	Description string `json:"description" validate:"max=255"`
}
