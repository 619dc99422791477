package app

import (
	"errors"
	"fmt"

	"github.com/gaborage/tenant-records/config"
	"github.com/gaborage/tenant-records/database"
	"github.com/gaborage/tenant-records/logger"
	"github.com/gaborage/tenant-records/server"
)

// Module defines the interface that all application modules must implement.
// It provides hooks for initialization, route registration, and cleanup.
type Module interface {
	Name() string
	Init(deps *ModuleDeps) error
	RegisterRoutes(hr *server.HandlerRegistry, r server.RouteRegistrar)
	Shutdown() error
}

// ModuleDeps contains the dependencies that are injected into each module.
type ModuleDeps struct {
	Logger logger.Logger
	Config *config.Config

	// Tenants hands out leases on per-tenant storage handles. Modules must
	// not close the handles they receive.
	Tenants *database.Manager
}

// ModuleRegistry manages the registration and lifecycle of application modules.
type ModuleRegistry struct {
	modules []Module
	names   map[string]struct{}
	deps    *ModuleDeps
	logger  logger.Logger
}

// NewModuleRegistry creates an empty registry that initializes modules with deps.
func NewModuleRegistry(deps *ModuleDeps) *ModuleRegistry {
	return &ModuleRegistry{
		modules: make([]Module, 0),
		names:   make(map[string]struct{}),
		deps:    deps,
		logger:  deps.Logger,
	}
}

// Register initializes module and adds it to the registry. Module names must
// be unique.
func (r *ModuleRegistry) Register(module Module) error {
	name := module.Name()
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("module %q already registered", name)
	}

	r.logger.Info().
		Str("module", name).
		Msg("Registering module")

	if err := module.Init(r.deps); err != nil {
		return fmt.Errorf("module %s: init: %w", name, err)
	}

	r.modules = append(r.modules, module)
	r.names[name] = struct{}{}
	return nil
}

// RegisterRoutes calls RegisterRoutes on all registered modules.
func (r *ModuleRegistry) RegisterRoutes(registrar server.RouteRegistrar) {
	handlerRegistry := server.NewHandlerRegistry(r.deps.Config)

	for _, module := range r.modules {
		r.logger.Info().
			Str("module", module.Name()).
			Msg("Registering module routes")

		module.RegisterRoutes(handlerRegistry, registrar)
	}
}

// Shutdown shuts modules down in reverse registration order. Every module is
// given the chance to shut down; failures are joined.
func (r *ModuleRegistry) Shutdown() error {
	var errs []error
	for i := len(r.modules) - 1; i >= 0; i-- {
		module := r.modules[i]
		r.logger.Info().
			Str("module", module.Name()).
			Msg("Shutting down module")

		if err := module.Shutdown(); err != nil {
			r.logger.Error().
				Err(err).
				Str("module", module.Name()).
				Msg("Failed to shutdown module")
			errs = append(errs, fmt.Errorf("module %s: %w", module.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of registered modules.
func (r *ModuleRegistry) Count() int {
	return len(r.modules)
}
