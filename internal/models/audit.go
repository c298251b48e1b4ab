package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionTokenRefresh   = "TOKEN_REFRESH"
	AuditActionPasswordReset  = "PASSWORD_RESET"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionRoleCreate     = "ROLE_CREATE"
	AuditActionRoleDelete     = "ROLE_DELETE"
	AuditActionPermCreate     = "PERMISSION_CREATE"
	AuditActionPermDelete     = "PERMISSION_DELETE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Username  string    `db:"username" json:"username"`
	Action    string    `db:"action" json:"action"`
	Success   bool      `db:"success" json:"success"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RequestMeta identifies who performed an action and from where.
type RequestMeta struct {
	Actor     string
	IP        string
	UserAgent string
}
