package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/feeledger/core/tenant"
)

// adminMiddleware must run after tenantMiddleware.
func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if tc := getTenantContext(ctx); tc.OrganizationID == "" || tc.Role != tenant.RoleAdmin {
				return tenant.ErrForbidden
			}
			return next(ctx)
		}
	}
}
