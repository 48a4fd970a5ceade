package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ovialab/admin-portal/internal/core/ports"
)

// RoleHandler serves the role definition listing consumed by clients, which
// filter by role id on their side.
type RoleHandler struct {
	roles ports.RoleRepository
}

func NewRoleHandler(roles ports.RoleRepository) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// List handles GET /v1/roles.
//
// @Summary      List role definitions
// @Tags         roles
// @Produce      json
// @Success      200  {array}  domain.RoleDefinition
// @Router       /v1/roles [get]
func (h *RoleHandler) List(c echo.Context) error {
	defs, err := h.roles.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, defs)
}
