package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/identity-api/internal/dto"
	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/pkg/response"
)

type recoveryService interface {
	RequestOTP(ctx context.Context, req dto.OTPRequest) (time.Time, error)
	VerifyOTP(ctx context.Context, req dto.VerifyOTPRequest) (*models.IssuedToken, error)
	ResetPassword(ctx context.Context, req dto.ResetPasswordRequest) error
	OTPTTL() time.Duration
}

// RecoveryHandler serves the password recovery endpoints.
type RecoveryHandler struct {
	service recoveryService
}

// NewRecoveryHandler constructs a RecoveryHandler.
func NewRecoveryHandler(svc recoveryService) *RecoveryHandler {
	return &RecoveryHandler{service: svc}
}

// RequestOTP godoc
// @Summary Request password reset code
// @Description Email a six digit code to the account owner. Requests are rate limited per username.
// @Tags Password Recovery
// @Accept json
// @Produce json
// @Param payload body dto.OTPRequest true "Username"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/password-recovery/otp [post]
func (h *RecoveryHandler) RequestOTP(c *gin.Context) {
	var req dto.OTPRequest
	if !bindJSON(c, &req, "invalid otp request") {
		return
	}
	if _, err := h.service.RequestOTP(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.OTPRequestResponse{
		Message:   "a reset code has been sent to the registered email address",
		ExpiresIn: int64(h.service.OTPTTL() / time.Second),
	})
}

// VerifyOTP godoc
// @Summary Verify password reset code
// @Description Exchange a valid code for a single use reset token
// @Tags Password Recovery
// @Accept json
// @Produce json
// @Param payload body dto.VerifyOTPRequest true "Code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/password-recovery/otp/verify [post]
func (h *RecoveryHandler) VerifyOTP(c *gin.Context) {
	var req dto.VerifyOTPRequest
	if !bindJSON(c, &req, "invalid otp verification payload") {
		return
	}
	token, err := h.service.VerifyOTP(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.VerifyOTPResponse{ResetToken: token.Token, ExpiresIn: token.ExpiresIn()})
}

// ResetPassword godoc
// @Summary Reset password
// @Description Set a new password using a reset token
// @Tags Password Recovery
// @Accept json
// @Produce json
// @Param payload body dto.ResetPasswordRequest true "Reset"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/password-recovery/reset [post]
func (h *RecoveryHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if !bindJSON(c, &req, "invalid reset payload") {
		return
	}
	if err := h.service.ResetPassword(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
