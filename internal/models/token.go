package models

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PurposePasswordReset marks tokens that may only be used to reset a password.
const PurposePasswordReset = "PASSWORD_RESET"

// TokenClaims is the JWT payload shared by access and reset tokens.
type TokenClaims struct {
	Scope   string `json:"scope,omitempty"`
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed token with its validity window.
type IssuedToken struct {
	Token     string    `json:"token"`
	Subject   string    `json:"-"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiresIn reports the token lifetime in whole seconds.
func (t IssuedToken) ExpiresIn() int64 {
	return int64(t.ExpiresAt.Sub(t.IssuedAt) / time.Second)
}

// RevokedToken records an invalidated token id until it can no longer be used.
type RevokedToken struct {
	JTI       string    `db:"jti" json:"jti"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	RevokedAt time.Time `db:"revoked_at" json:"revoked_at"`
}

// Scopes splits the scope claim into its entries.
func (c *TokenClaims) Scopes() []string {
	if c == nil {
		return nil
	}
	return strings.Fields(c.Scope)
}

// HasRole reports whether the scope grants role.
func (c *TokenClaims) HasRole(role string) bool {
	return c.hasScope(RolePrefix + role)
}

// HasPermission reports whether any of the subject's roles grants perm.
func (c *TokenClaims) HasPermission(perm string) bool {
	return c.hasScope(perm)
}

func (c *TokenClaims) hasScope(entry string) bool {
	for _, s := range c.Scopes() {
		if s == entry {
			return true
		}
	}
	return false
}
