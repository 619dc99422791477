// Package app wires the records service together: configuration, logging,
// telemetry, the MongoDB client, the tenant handle cache and the HTTP server.
// It owns their lifecycle from startup to graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gaborage/tenant-records/config"
	"github.com/gaborage/tenant-records/database"
	"github.com/gaborage/tenant-records/database/mongodb"
	"github.com/gaborage/tenant-records/logger"
	"github.com/gaborage/tenant-records/observability"
	"github.com/gaborage/tenant-records/server"
)

const (
	serverErrorMsg = "server: %w"
	// drainTimeout bounds the wait for the server goroutine after shutdown.
	drainTimeout = 3 * time.Second

	defaultShutdownTimeout = 10 * time.Second
)

// dialMongo is replaced in tests.
var dialMongo = mongodb.Connect

// namedCloser is a resource released during shutdown, in registration order.
type namedCloser struct {
	name  string
	close func(ctx context.Context) error
}

// App represents the main application instance.
type App struct {
	cfg             *config.Config
	logger          logger.Logger
	server          ServerRunner
	manager         *database.Manager
	registry        *ModuleRegistry
	telemetry       observability.Provider
	signalHandler   SignalHandler
	timeoutProvider TimeoutProvider
	closers         []namedCloser
	probes          []HealthProbe
	ping            func(ctx context.Context) error
}

// New loads the configuration from the environment and creates the application.
func New() (*App, error) {
	return NewWithOptions(nil)
}

// NewWithOptions is New with injectable dependencies.
func NewWithOptions(opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}
	load := opts.ConfigLoader
	if load == nil {
		load = config.Load
	}
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(cfg, opts)
}

// NewWithConfig creates the application from an already loaded configuration.
// Components are started in dependency order; if one fails, everything started
// before it is released again.
func NewWithConfig(cfg *config.Config, opts *Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if opts == nil {
		opts = &Options{}
	}

	log := opts.Logger
	if log == nil {
		log = logger.New(cfg.Log.Level, cfg.Log.Pretty)
	}
	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Env).
		Str("version", cfg.App.Version).
		Msg("Starting application")

	a := &App{
		cfg:             cfg,
		logger:          log,
		signalHandler:   opts.SignalHandler,
		timeoutProvider: opts.TimeoutProvider,
	}
	if a.signalHandler == nil {
		a.signalHandler = osSignalHandler{}
	}
	if a.timeoutProvider == nil {
		a.timeoutProvider = standardTimeoutProvider{}
	}

	if err := a.start(opts.Connector); err != nil {
		a.closeResources(context.Background())
		return nil, err
	}

	a.server = opts.Server
	if a.server == nil {
		a.server = server.New(cfg, log)
	}

	a.registry = NewModuleRegistry(&ModuleDeps{
		Logger:  log,
		Config:  cfg,
		Tenants: a.manager,
	})

	if a.ping == nil {
		a.ping = opts.Ping
	}
	if a.ping != nil {
		a.probes = append(a.probes, databaseProbe(a.ping))
	}
	a.probes = append(a.probes, tenantCacheProbe(a.manager))
	a.server.SetReadinessCheck(a.readyCheck)

	return a, nil
}

// start acquires telemetry, the MongoDB client and the tenant handle cache,
// in that order. A nil connector means tenants are served from MongoDB.
func (a *App) start(connector database.Connector) error {
	if err := a.initTelemetry(); err != nil {
		return err
	}
	if connector == nil {
		var err error
		if connector, err = a.connectMongo(); err != nil {
			return err
		}
	}
	return a.initManager(connector)
}

func (a *App) initTelemetry() error {
	var obsCfg observability.Config
	if a.cfg.Exists("observability") {
		if err := a.cfg.Unmarshal("observability", &obsCfg); err != nil {
			return fmt.Errorf("failed to read observability config: %w", err)
		}
	}
	if obsCfg.Service.Name == "" {
		obsCfg.Service.Name = a.cfg.App.Name
	}
	if obsCfg.Service.Version == "" {
		obsCfg.Service.Version = a.cfg.App.Version
	}
	if obsCfg.Environment == "" {
		obsCfg.Environment = a.cfg.App.Env
	}

	provider, err := observability.NewProvider(&obsCfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	a.telemetry = provider
	a.closers = append(a.closers, namedCloser{name: "observability", close: provider.Shutdown})
	return nil
}

func (a *App) connectMongo() (database.Connector, error) {
	ctx, cancel := a.timeoutProvider.WithTimeout(context.Background(), a.connectTimeout())
	defer cancel()

	client, err := dialMongo(ctx, &a.cfg.MongoDB, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, namedCloser{name: "mongodb client", close: client.Disconnect})
	a.ping = client.Ping
	return client.Connector(), nil
}

func (a *App) connectTimeout() time.Duration {
	if t := a.cfg.MongoDB.Connect.Timeout; t > 0 {
		return t
	}
	return database.DefaultConnectTimeout
}

func (a *App) initManager(connector database.Connector) error {
	manager, err := database.NewManager(a.logger, database.Options{
		IdleTTL:        a.cfg.Multitenant.Idle.TTL,
		MaxSize:        a.cfg.Multitenant.Max.Tenants,
		ConnectTimeout: a.cfg.MongoDB.Connect.Timeout,
		MeterProvider:  a.telemetry.MeterProvider(),
	}, connector)
	if err != nil {
		return fmt.Errorf("failed to create tenant handle cache: %w", err)
	}
	a.manager = manager
	a.closers = append(a.closers, namedCloser{name: "tenant handle cache", close: func(context.Context) error {
		return manager.Close()
	}})
	return nil
}

// RegisterModule initializes module and adds it to the application.
func (a *App) RegisterModule(module Module) error {
	return a.registry.Register(module)
}

// Manager returns the tenant handle cache.
func (a *App) Manager() *database.Manager {
	return a.manager
}

// closeResources releases resources in reverse order of acquisition and
// returns every failure.
func (a *App) closeResources(ctx context.Context) []error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			a.logger.Error().Err(err).Msgf("Failed to close %s", c.name)
			continue
		}
		a.logger.Info().Msgf("Closed %s", c.name)
	}
	a.closers = nil
	return errs
}
