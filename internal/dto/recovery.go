package dto

// OTPRequest starts password recovery for a username.
type OTPRequest struct {
	Username string `json:"username" validate:"required,max=64"`
}

// OTPRequestResponse tells the client how long the emailed code stays valid.
type OTPRequestResponse struct {
	Message   string `json:"message"`
	ExpiresIn int64  `json:"expires_in"`
}

// VerifyOTPRequest redeems an emailed code.
type VerifyOTPRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	OTP      string `json:"otp" validate:"required,len=6,numeric"`
}

// VerifyOTPResponse carries the password reset credential.
type VerifyOTPResponse struct {
	ResetToken string `json:"reset_token"`
	ExpiresIn  int64  `json:"expires_in"`
}

// ResetPasswordRequest sets a new password using a reset token.
type ResetPasswordRequest struct {
	ResetToken  string `json:"reset_token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=72"`
}
