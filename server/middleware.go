package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/gaborage/tenant-records/config"
	"github.com/gaborage/tenant-records/logger"
)

// SetupMiddlewares registers the global middleware chain. Tenant resolution
// and rate limiting are attached to the module group instead, so probes
// never depend on a tenant.
func SetupMiddlewares(e *echo.Echo, log logger.Logger, cfg *config.Config) {
	probes := func(c echo.Context) bool {
		p := c.Path()
		return p == cfg.Server.Path.Health || p == cfg.Server.Path.Ready
	}

	e.Use(middleware.RequestID())
	e.Use(otelecho.Middleware(cfg.App.Name, otelecho.WithSkipper(probes)))
	e.Use(PerformanceStats())
	e.Use(Logger(log, LoggerConfig{
		HealthPath:           cfg.Server.Path.Health,
		ReadyPath:            cfg.Server.Path.Ready,
		SlowRequestThreshold: cfg.Server.Timeout.Middleware / 2,
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.WithContext(c.Request().Context()).Error().
				Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("stack", string(stack)).
				Msg("Panic recovered")
			return err
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            3600,
		ContentSecurityPolicy: "default-src 'self'",
	}))
	if cfg.Server.Body.Limit != "" {
		e.Use(middleware.BodyLimit(cfg.Server.Body.Limit))
	}
	e.Use(Timeout(cfg.Server.Timeout.Middleware))
	e.Use(Timing())
}
