package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gaborage/tenant-records/database"
)

const (
	healthyStatus   = "healthy"
	unhealthyStatus = "unhealthy"
)

// HealthStatus captures the outcome of a readiness probe.
type HealthStatus struct {
	Name     string
	Status   string
	Details  map[string]any
	Err      error
	Critical bool
}

// HealthProbe exposes a uniform interface for readiness probes.
type HealthProbe interface {
	Run(ctx context.Context) HealthStatus
}

type healthProbeFunc struct {
	name     string
	critical bool
	fn       func(ctx context.Context) (string, map[string]any, error)
}

func (h healthProbeFunc) Run(ctx context.Context) HealthStatus {
	status, details, err := h.fn(ctx)
	if details == nil {
		details = map[string]any{}
	}
	return HealthStatus{
		Name:     h.name,
		Status:   status,
		Details:  details,
		Err:      err,
		Critical: h.critical,
	}
}

// databaseProbe pings the storage backend. It goes around the tenant handle
// cache so readiness polls neither create nor refresh cache entries.
func databaseProbe(ping func(ctx context.Context) error) HealthProbe {
	return healthProbeFunc{
		name:     "database",
		critical: true,
		fn: func(ctx context.Context) (string, map[string]any, error) {
			start := time.Now()
			err := ping(ctx)
			details := map[string]any{"latency_ms": time.Since(start).Milliseconds()}
			if err != nil {
				return unhealthyStatus, details, fmt.Errorf("ping: %w", err)
			}
			return healthyStatus, details, nil
		},
	}
}

// tenantCacheProbe reports the handle cache contents. It never fails.
func tenantCacheProbe(manager *database.Manager) HealthProbe {
	return healthProbeFunc{
		name: "tenants",
		fn: func(context.Context) (string, map[string]any, error) {
			return healthyStatus, manager.Stats(), nil
		},
	}
}

// readyCheck runs every probe. The first failing critical probe makes the
// service not ready.
func (a *App) readyCheck(ctx context.Context) (map[string]any, error) {
	body := map[string]any{
		"app": map[string]any{
			"name":        a.cfg.App.Name,
			"environment": a.cfg.App.Env,
			"version":     a.cfg.App.Version,
		},
	}

	var failed error
	for _, probe := range a.probes {
		result := probe.Run(ctx)
		body[result.Name] = result.Status
		body[result.Name+"_stats"] = result.Details
		if result.Err != nil && result.Critical && failed == nil {
			failed = result.Err
		}
	}
	return body, failed
}
