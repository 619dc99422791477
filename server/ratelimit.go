package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/gaborage/tenant-records/multitenant"
)

const (
	// BurstMultiplier derives the burst from the rate when no burst is configured.
	BurstMultiplier  = 2
	RateLimitCleanup = 3 * time.Minute
)

// RateLimit limits requests per tenant, falling back to the client IP when
// no tenant is known yet. A non-positive requestsPerSecond disables limiting.
func RateLimit(requestsPerSecond, burst int) echo.MiddlewareFunc {
	if requestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}
	if burst <= 0 {
		burst = requestsPerSecond * BurstMultiplier
	}

	deny := func(c echo.Context, message string) error {
		return c.JSON(http.StatusTooManyRequests, APIResponse{
			Error: &APIErrorResponse{Code: "TOO_MANY_REQUESTS", Message: message},
			Meta:  responseMeta(c),
		})
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(requestsPerSecond),
			Burst:     burst,
			ExpiresIn: RateLimitCleanup,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if tenantID, ok := multitenant.GetTenant(c.Request().Context()); ok {
				return "tenant:" + tenantID, nil
			}
			return "ip:" + c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return deny(c, "Rate limit exceeded")
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return deny(c, "Too many requests")
		},
	})
}
