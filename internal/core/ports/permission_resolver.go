package ports

import (
	"context"

	"github.com/ovialab/admin-portal/internal/core/domain"
)

// PermissionResolver turns a role id into an effective permission matrix.
// It never fails; every tier of fallback degrades silently to the next.
type PermissionResolver interface {
	Resolve(ctx context.Context, roleID string, joined *domain.RoleDefinition) domain.PermissionSet
}
