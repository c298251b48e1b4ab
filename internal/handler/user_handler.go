package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/identity-api/internal/dto"
	"github.com/noah-isme/identity-api/internal/models"
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
	"github.com/noah-isme/identity-api/pkg/response"
)

type userService interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, req dto.CreateUserRequest, meta models.RequestMeta) (*models.User, error)
	ChangePassword(ctx context.Context, id string, req dto.ChangePasswordRequest, meta models.RequestMeta) error
	Delete(ctx context.Context, id string, meta models.RequestMeta) error
}

// UserHandler manages user endpoints.
type UserHandler struct {
	service userService
}

// NewUserHandler constructs a new handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// Create godoc
// @Summary Register user
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body dto.CreateUserRequest true "User payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req dto.CreateUserRequest
	if !bindJSON(c, &req, "invalid user payload") {
		return
	}
	user, err := h.service.Create(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Me godoc
// @Summary Current user
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	user, err := h.service.GetByUsername(c.Request.Context(), claims.Subject)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user)
}

// List godoc
// @Summary List users
// @Tags Users
// @Produce json
// @Param username query string false "Username contains"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	var query dto.ListUsersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	users, pagination, err := h.service.List(c.Request.Context(), models.UserFilter{
		Username: query.Username,
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// Get godoc
// @Summary Get user by ID
// @Description Administrators may read any account; other callers only their own.
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil || (!claims.HasRole(models.RoleAdmin) && claims.Subject != user.Username) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	response.OK(c, user)
}

// ChangePassword godoc
// @Summary Change own password
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body dto.ChangePasswordRequest true "Passwords"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id}/password [patch]
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req dto.ChangePasswordRequest
	if !bindJSON(c, &req, "invalid change password payload") {
		return
	}
	ctx := c.Request.Context()
	user, err := h.service.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil || claims.Subject != user.Username {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only the account owner can change its password"))
		return
	}
	if err := h.service.ChangePassword(ctx, user.ID, req, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete user
// @Tags Users
// @Param id path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
