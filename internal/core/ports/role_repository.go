package ports

import (
	"context"

	"github.com/ovialab/admin-portal/internal/core/domain"
)

// RoleRepository defines the interface for role definition lookups.
type RoleRepository interface {
	FindByRoleID(ctx context.Context, roleID string) (*domain.RoleDefinition, error)
	List(ctx context.Context) ([]domain.RoleDefinition, error)
}
