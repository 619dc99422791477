package server

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/tenant-records/multitenant"
)

// TenantMiddleware resolves the tenant of each request and stores it in the
// request context.
func TenantMiddleware(resolver multitenant.TenantResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if resolver == nil {
				return NewInternalServerError("tenant resolver not configured")
			}

			tenantID, err := resolver.ResolveTenant(c.Request().Context(), c.Request())
			if err != nil || tenantID == "" {
				if err != nil && !errors.Is(err, multitenant.ErrTenantResolutionFailed) {
					c.Logger().Errorf("tenant resolution: %v", err)
				}
				return NewBadRequestError("Invalid tenant")
			}

			ctx := multitenant.SetTenant(c.Request().Context(), tenantID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
