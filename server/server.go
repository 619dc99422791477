// Package server provides the echo HTTP server: middleware chain, typed
// handlers, the response envelope and probe endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/tenant-records/config"
	"github.com/gaborage/tenant-records/logger"
	"github.com/gaborage/tenant-records/multitenant"
)

// ReadinessCheck reports whether the service can take traffic. The returned
// map is rendered into the /ready response.
type ReadinessCheck func(ctx context.Context) (map[string]any, error)

// Server wraps an echo instance configured for the records service.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger logger.Logger

	mu    sync.RWMutex
	ready ReadinessCheck
}

// New creates a server with the middleware chain and probe routes installed.
func New(cfg *config.Config, log logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		customErrorHandler(err, c, cfg, log)
	}

	SetupMiddlewares(e, log, cfg)

	s := &Server{echo: e, cfg: cfg, logger: log}
	e.GET(cfg.Server.Path.Health, s.healthCheck)
	e.GET(cfg.Server.Path.Ready, s.readyCheck)

	log.Debug().
		Str("health_path", cfg.Server.Path.Health).
		Str("ready_path", cfg.Server.Path.Ready).
		Msg("Server paths configured")

	return s
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// ModuleGroup returns the registrar modules add their routes to. Every route
// in it runs with the tenant resolved and per-tenant rate limiting applied.
func (s *Server) ModuleGroup() RouteRegistrar {
	return s.ModuleGroupWithResolver(multitenant.NewFallbackResolver(
		s.cfg.Multitenant.Header,
		s.cfg.Multitenant.Tenant.Default,
	))
}

// ModuleGroupWithResolver is ModuleGroup with a custom tenant resolver.
func (s *Server) ModuleGroupWithResolver(resolver multitenant.TenantResolver) RouteRegistrar {
	g := s.echo.Group("",
		TenantMiddleware(resolver),
		RateLimit(s.cfg.App.Rate.Limit, s.cfg.App.Rate.Burst),
	)
	return newRouteGroup(g, "")
}

// SetReadinessCheck installs the check behind the ready endpoint.
func (s *Server) SetReadinessCheck(check ReadinessCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = check
}

// Start serves HTTP until Shutdown is called. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.logger.Info().
		Str("service", s.cfg.App.Name).
		Str("version", s.cfg.App.Version).
		Str("env", s.cfg.App.Env).
		Str("address", addr).
		Msg("Starting server")

	return s.echo.StartServer(&http.Server{
		Addr:         addr,
		ReadTimeout:  s.cfg.Server.Timeout.Read,
		WriteTimeout: s.cfg.Server.Timeout.Write,
		IdleTimeout:  s.cfg.Server.Timeout.Idle,
	})
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyCheck(c echo.Context) error {
	s.mu.RLock()
	check := s.ready
	s.mu.RUnlock()

	body := map[string]any{"status": "ready", "time": time.Now().Unix()}
	if check == nil {
		return c.JSON(http.StatusOK, body)
	}

	details, err := check(c.Request().Context())
	for k, v := range details {
		body[k] = v
	}
	if err != nil {
		body["status"] = "not ready"
		body["error"] = err.Error()
		return c.JSON(http.StatusServiceUnavailable, body)
	}
	return c.JSON(http.StatusOK, body)
}

func customErrorHandler(err error, c echo.Context, cfg *config.Config, log logger.Logger) {
	if c.Response().Committed {
		return
	}

	var apiErr IAPIError
	if errors.As(err, &apiErr) {
		_ = formatErrorResponse(c, apiErr, cfg)
		return
	}

	status := http.StatusInternalServerError
	msg := "An error occurred while processing your request"
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		status = he.Code
		if m, ok := he.Message.(string); ok && status < http.StatusInternalServerError {
			msg = m
		}
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		msg = "Request timed out"
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
		msg = "Request cancelled"
	}

	if status >= http.StatusInternalServerError {
		log.WithContext(c.Request().Context()).Error().Err(err).Msg("Unhandled error")
	}

	base := NewBaseAPIError(statusToErrorCode(status), msg, status)
	if isDevelopmentEnv(cfg) {
		_ = base.WithDetails("error", err.Error())
	}
	_ = formatErrorResponse(c, base, cfg)
}
