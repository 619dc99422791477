package server

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gaborage/tenant-records/logger"
	"github.com/gaborage/tenant-records/multitenant"
)

// LoggerConfig configures the request logging middleware.
type LoggerConfig struct {
	// HealthPath and ReadyPath are probe routes that are never logged.
	HealthPath string
	ReadyPath  string

	// SlowRequestThreshold marks slower requests with result_code WARN. Zero disables it.
	SlowRequestThreshold time.Duration
}

// Logger emits one action log per request summarising method, route,
// status, latency, tenant and store usage. Requests that already produced an
// explicit WARN+ log entry are not summarised again.
func Logger(log logger.Logger, cfg LoggerConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqCtx := newRequestLogContext()
			c.Set(RequestLogContextKey, reqCtx)
			c.SetRequest(c.Request().WithContext(
				logger.WithSeverityHook(c.Request().Context(), reqCtx.escalateSeverity),
			))

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			if path == cfg.HealthPath || path == cfg.ReadyPath {
				return next(c)
			}

			err := next(c)
			if err != nil {
				// render now so the logged status is the one the client sees
				c.Error(err)
			}

			latency := reqCtx.elapsed()
			status := c.Response().Status
			switch {
			case status >= 500:
				reqCtx.escalateSeverityFromStatus(zerolog.ErrorLevel)
			case status >= 400:
				reqCtx.escalateSeverityFromStatus(zerolog.WarnLevel)
			}

			if !reqCtx.hadExplicitWarningOccurred() {
				logActionSummary(c, log, cfg, latency, status, err)
			}
			return nil
		}
	}
}

func logActionSummary(c echo.Context, log logger.Logger, cfg LoggerConfig, latency time.Duration, status int, err error) {
	ctx := c.Request().Context()
	level, resultCode := determineSeverity(status, latency, cfg.SlowRequestThreshold)

	contextLog := log.WithContext(ctx)
	var event logger.LogEvent
	switch level {
	case zerolog.ErrorLevel:
		event = contextLog.Error()
	case zerolog.WarnLevel:
		event = contextLog.Warn()
	default:
		event = contextLog.Info()
	}

	if err != nil {
		event = event.Err(err)
	}
	if tenantID, ok := multitenant.GetTenant(ctx); ok {
		event = event.Str("tenant", tenantID)
	}

	method := c.Request().Method
	path := c.Request().URL.Path
	event.
		Str("log.type", "action").
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Str("correlation_id", getTraceID(c)).
		Str("http.request.method", method).
		Int("http.response.status_code", status).
		Int64("http.server.request.duration", latency.Nanoseconds()).
		Str("url.path", path).
		Str("http.route", c.Path()).
		Str("client.address", c.RealIP()).
		Str("result_code", resultCode).
		Int64("db_operations", logger.GetDBCounter(ctx)).
		Int64("db_elapsed", logger.GetDBElapsed(ctx)).
		Msg(fmt.Sprintf("%s %s completed in %s with status %d", method, path, latency, status))
}

func determineSeverity(status int, latency, threshold time.Duration) (zerolog.Level, string) {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel, "ERROR"
	case status >= 400:
		return zerolog.WarnLevel, "WARN"
	case threshold > 0 && latency > threshold:
		return zerolog.InfoLevel, "WARN"
	default:
		return zerolog.InfoLevel, "INFO"
	}
}
