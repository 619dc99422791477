package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"
)

// prepareRuntime mounts module routes and starts background maintenance.
func (a *App) prepareRuntime() {
	a.registry.RegisterRoutes(a.server.ModuleGroup())

	if interval := a.cfg.Multitenant.Cleanup.Interval; interval > 0 {
		a.logger.Info().Dur("interval", interval).Msg("Starting tenant handle cleanup loop")
		a.manager.StartCleanup(interval)
	}
}

// serve starts the HTTP server in a goroutine and returns an error channel
func (a *App) serve() <-chan error {
	errCh := make(chan error, 1)

	go func() {
		err := a.server.Start()
		a.logger.Debug().Err(err).Msg("Server goroutine terminating")
		errCh <- err
		close(errCh)
	}()

	return errCh
}

// waitForShutdownOrServerError waits for either a shutdown signal or server error
func (a *App) waitForShutdownOrServerError(serverErrCh <-chan error) (bool, error) {
	quit := make(chan os.Signal, 1)
	a.signalHandler.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer a.signalHandler.Stop(quit)

	select {
	case sig := <-quit:
		a.logger.Info().Str("signal", sig.String()).Msg("Shutdown requested via signal")
		return true, nil
	case err, ok := <-serverErrCh:
		if !ok {
			return false, nil
		}
		return false, err
	}
}

// drainServerError waits for the server goroutine to report how it ended.
func (a *App) drainServerError(ch <-chan error) error {
	select {
	case err, ok := <-ch:
		if !ok {
			return nil
		}
		return err
	case <-time.After(drainTimeout):
		a.logger.Warn().Msg("Timeout waiting for server goroutine to complete")
		return fmt.Errorf("server goroutine failed to complete within %s", drainTimeout)
	}
}

// Run starts the application and blocks until a shutdown signal is received
// or the server stops on its own. It always shuts the application down before
// returning.
func (a *App) Run() error {
	a.prepareRuntime()

	serverErrCh := a.serve()
	shutdownRequested, serverErr := a.waitForShutdownOrServerError(serverErrCh)

	if serverErr != nil && !errors.Is(serverErr, http.ErrServerClosed) {
		a.logger.Error().Err(serverErr).Msg("Server stopped unexpectedly")
	}

	timeout := a.cfg.Server.Timeout.Shutdown
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := a.timeoutProvider.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.logger.Info().Msg("Shutting down application")
	shutdownErr := a.Shutdown(ctx)

	var errs []error
	if shutdownRequested {
		if err := a.drainServerError(serverErrCh); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf(serverErrorMsg, err))
		}
	} else if serverErr != nil && !errors.Is(serverErr, http.ErrServerClosed) {
		errs = append(errs, fmt.Errorf(serverErrorMsg, serverErr))
	}
	if shutdownErr != nil {
		errs = append(errs, shutdownErr)
	}
	return errors.Join(errs...)
}

// Shutdown stops the application: the HTTP server first so no new requests
// reach the tenant handles, then the modules, then every resource in reverse
// order of acquisition (tenant handles, MongoDB client, telemetry).
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	start := time.Now()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf(serverErrorMsg, err))
			a.logger.Error().Err(err).Msg("Failed to shutdown server")
		} else {
			a.logger.Info().Dur("duration", time.Since(start)).Msg("HTTP server shutdown completed")
		}
	}

	if a.registry != nil {
		if err := a.registry.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("modules: %w", err))
		}
	}

	errs = append(errs, a.closeResources(ctx)...)

	a.logger.Info().Dur("duration", time.Since(start)).Msg("Application shutdown complete")
	return errors.Join(errs...)
}
