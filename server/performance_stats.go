package server

import (
	"github.com/labstack/echo/v4"

	"github.com/gaborage/tenant-records/logger"
)

// PerformanceStats attaches the database operation counters to each request
// context. Record services increment them and the request logger reports them.
func PerformanceStats() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(logger.WithDBCounter(c.Request().Context())))
			return next(c)
		}
	}
}
