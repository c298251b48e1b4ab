package models

import "time"

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued access token.
type LoginResponse struct {
	Authenticated bool      `json:"authenticated"`
	Token         string    `json:"token"`
	ExpiresIn     int64     `json:"expires_in"`
	IssuedAt      time.Time `json:"issued_at"`
}

// TokenRequest carries a token for introspect, refresh and logout.
type TokenRequest struct {
	Token     string `json:"token" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// IntrospectResponse reports whether a token is currently acceptable.
type IntrospectResponse struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username,omitempty"`
}

// RefreshResponse returns the replacement access token.
type RefreshResponse struct {
	Authenticated bool      `json:"authenticated"`
	Token         string    `json:"token"`
	ExpiresIn     int64     `json:"expires_in"`
	IssuedAt      time.Time `json:"issued_at"`
}
