package v1

import (
	"context"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/homeops/internal/server/middleware"
)

// requireRole rejects the call unless the authenticated role is one of roles.
func requireRole(ctx context.Context, roles ...string) error {
	role, ok := middleware.RoleFromContext(ctx)
	if !ok || !slices.Contains(roles, role) {
		return huma.Error403Forbidden("insufficient permissions")
	}
	return nil
}
