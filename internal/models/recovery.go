package models

import "time"

// OTPChallenge is the outstanding one-time code for a username.
type OTPChallenge struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

// Expired reports whether the challenge can no longer be redeemed at now.
func (c *OTPChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
