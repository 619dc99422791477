package app

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/gaborage/tenant-records/config"
	"github.com/gaborage/tenant-records/database"
	"github.com/gaborage/tenant-records/logger"
	"github.com/gaborage/tenant-records/server"
)

// SignalHandler interface allows for injectable signal handling for testing
type SignalHandler interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// TimeoutProvider interface allows for injectable timeout creation for testing
type TimeoutProvider interface {
	WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc)
}

// ServerRunner abstracts the HTTP server to allow injecting test-friendly implementations
type ServerRunner interface {
	Start() error
	Shutdown(ctx context.Context) error
	ModuleGroup() server.RouteRegistrar
	SetReadinessCheck(check server.ReadinessCheck)
}

// Options contains optional dependencies for creating an App instance
type Options struct {
	SignalHandler   SignalHandler
	TimeoutProvider TimeoutProvider
	Server          ServerRunner
	ConfigLoader    func() (*config.Config, error)
	Logger          logger.Logger

	// Connector replaces the MongoDB client as the source of tenant handles.
	Connector database.Connector
	// Ping checks the backend behind Connector for readiness. Without it an
	// injected connector is not probed.
	Ping func(ctx context.Context) error
}

type osSignalHandler struct{}

func (osSignalHandler) Notify(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) }

func (osSignalHandler) Stop(c chan<- os.Signal) { signal.Stop(c) }

type standardTimeoutProvider struct{}

func (standardTimeoutProvider) WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}

var _ ServerRunner = (*server.Server)(nil)
