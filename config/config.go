// Package config loads the service configuration from defaults, optional YAML
// files and environment variables using koanf.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. config.yaml and config.<app.env>.yaml in the working directory
// 3. Default values (lowest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := loadOptionalFile(k, "config.yaml"); err != nil {
		return nil, err
	}

	// app.env may itself come from the environment, so peek at it first
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = k.String("app.env")
	}
	if env != "" {
		if err := loadOptionalFile(k, fmt.Sprintf("config.%s.yaml", env)); err != nil {
			return nil, err
		}
	}

	if err := k.Load(envprovider.Provider(".", envprovider.Opt{
		TransformFunc: transformEnvKey,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg, err := fromKoanf(k)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// fromKoanf unmarshals k into a Config and keeps k for ad-hoc lookups.
func fromKoanf(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k
	return &cfg, nil
}

// transformEnvKey converts UPPER_SNAKE names to lower.dotted koanf keys.
func transformEnvKey(key, value string) (string, any) {
	return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
}

func loadOptionalFile(k *koanf.Koanf, path string) error {
	err := k.Load(file.Provider(path), yaml.Parser())
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":       "tenant-records",
		"app.version":    "v1.0.0",
		"app.env":        EnvDevelopment,
		"app.rate.limit": 0,
		"app.rate.burst": 0,

		"server.host":               "0.0.0.0",
		"server.port":               8080,
		"server.timeout.read":       "15s",
		"server.timeout.write":      "30s",
		"server.timeout.idle":       "60s",
		"server.timeout.middleware": "5s",
		"server.timeout.shutdown":   "10s",
		"server.path.health":        "/health",
		"server.path.ready":         "/ready",
		"server.body.limit":         "1M",

		"mongodb.connect.timeout": "10s",
		"mongodb.ping.enabled":    true,
		"mongodb.pool.max":        100,
		"mongodb.pool.min":        0,
		"mongodb.pool.idle":       "5m",
		"mongodb.readpreference":  "primary",
		"mongodb.writeconcern":    "majority",

		"multitenant.header":           DefaultTenantHeader,
		"multitenant.tenant.default":   DefaultTenantID,
		"multitenant.idle.ttl":         "15m",
		"multitenant.cleanup.interval": "1m",
		"multitenant.max.tenants":      0,

		"log.level":  "info",
		"log.pretty": false,

		"observability.enabled":          false,
		"observability.service.name":     "tenant-records",
		"observability.trace.endpoint":   "stdout",
		"observability.metrics.endpoint": "stdout",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
