package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/identity-api/internal/dto"
	"github.com/noah-isme/identity-api/internal/middleware"
	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/pkg/response"
)

type roleService interface {
	List(ctx context.Context) ([]models.Role, error)
	Create(ctx context.Context, req dto.CreateRoleRequest) (*models.Role, error)
	Delete(ctx context.Context, name string) error
}

type permissionService interface {
	List(ctx context.Context) ([]models.Permission, error)
	Create(ctx context.Context, req dto.CreatePermissionRequest) (*models.Permission, error)
	Delete(ctx context.Context, name string) error
}

// RoleHandler serves role and permission administration.
type RoleHandler struct {
	roles       roleService
	permissions permissionService
}

// NewRoleHandler constructs a RoleHandler.
func NewRoleHandler(roles roleService, permissions permissionService) *RoleHandler {
	return &RoleHandler{roles: roles, permissions: permissions}
}

// ListRoles godoc
// @Summary List roles
// @Tags Roles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roles.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, roles)
}

// CreateRole godoc
// @Summary Create role
// @Tags Roles
// @Accept json
// @Produce json
// @Param payload body dto.CreateRoleRequest true "Role"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req dto.CreateRoleRequest
	if !bindJSON(c, &req, "invalid role payload") {
		return
	}
	role, err := h.roles.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.AuditTargetKey, role.Name)
	response.Created(c, role)
}

// DeleteRole godoc
// @Summary Delete role
// @Tags Roles
// @Param name path string true "Role name"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /roles/{name} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	if err := h.roles.Delete(c.Request.Context(), c.Param("name")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListPermissions godoc
// @Summary List permissions
// @Tags Permissions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /permissions [get]
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	perms, err := h.permissions.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, perms)
}

// CreatePermission godoc
// @Summary Create permission
// @Tags Permissions
// @Accept json
// @Produce json
// @Param payload body dto.CreatePermissionRequest true "Permission"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /permissions [post]
func (h *RoleHandler) CreatePermission(c *gin.Context) {
	var req dto.CreatePermissionRequest
	if !bindJSON(c, &req, "invalid permission payload") {
		return
	}
	perm, err := h.permissions.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.AuditTargetKey, perm.Name)
	response.Created(c, perm)
}

// DeletePermission godoc
// @Summary Delete permission
// @Tags Permissions
// @Param name path string true "Permission name"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /permissions/{name} [delete]
func (h *RoleHandler) DeletePermission(c *gin.Context) {
	if err := h.permissions.Delete(c.Request.Context(), c.Param("name")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
