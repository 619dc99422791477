package config

import (
	"fmt"
	"slices"
	"strings"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

var (
	validEnvs            = []string{EnvDevelopment, EnvStaging, EnvProduction}
	validLogLevels       = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	validReadPreferences = []string{"primary", "primarypreferred", "secondary", "secondarypreferred", "nearest"}
)

// Validate checks every section and returns the first failure.
func Validate(cfg *Config) error {
	if err := validateApp(&cfg.App); err != nil {
		return fmt.Errorf("app config: %w", err)
	}
	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateMongo(&cfg.MongoDB); err != nil {
		return fmt.Errorf("mongodb config: %w", err)
	}
	if err := validateMultitenant(&cfg.Multitenant); err != nil {
		return fmt.Errorf("multitenant config: %w", err)
	}
	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	return nil
}

func validateApp(cfg *AppConfig) error {
	if cfg.Name == "" {
		return NewMissingFieldError("app.name", "APP_NAME", "app.name")
	}
	if !slices.Contains(validEnvs, cfg.Env) {
		return NewInvalidFieldError("app.env", fmt.Sprintf("unknown environment %q", cfg.Env), validEnvs)
	}
	if cfg.Rate.Limit < 0 {
		return NewInvalidFieldError("app.rate.limit", "must not be negative", nil)
	}
	if cfg.Rate.Burst < 0 {
		return NewInvalidFieldError("app.rate.burst", "must not be negative", nil)
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return NewInvalidFieldError("server.port", fmt.Sprintf("invalid port %d (must be 1-65535)", cfg.Port), nil)
	}
	if cfg.Timeout.Read <= 0 {
		return NewInvalidFieldError("server.timeout.read", "must be positive", nil)
	}
	if cfg.Timeout.Write <= 0 {
		return NewInvalidFieldError("server.timeout.write", "must be positive", nil)
	}
	return nil
}

func validateMongo(cfg *MongoConfig) error {
	if strings.TrimSpace(cfg.URI) == "" {
		return NewMissingFieldError("mongodb.uri", "MONGODB_URI", "mongodb.uri")
	}
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ConfigError{
			Category: "invalid",
			Field:    "mongodb.uri",
			Message:  "unsupported scheme",
			Action:   "use a mongodb:// or mongodb+srv:// connection string",
		}
	}
	if cfg.Connect.Timeout <= 0 {
		return NewInvalidFieldError("mongodb.connect.timeout", "must be positive", nil)
	}
	if cfg.Pool.Max > 0 && cfg.Pool.Min > cfg.Pool.Max {
		return NewInvalidFieldError("mongodb.pool.min", "must not exceed mongodb.pool.max", nil)
	}
	if cfg.ReadPreference != "" && !slices.Contains(validReadPreferences, strings.ToLower(cfg.ReadPreference)) {
		return NewInvalidFieldError("mongodb.readpreference",
			fmt.Sprintf("unknown read preference %q", cfg.ReadPreference), validReadPreferences)
	}
	return nil
}

func validateMultitenant(cfg *MultitenantConfig) error {
	if strings.TrimSpace(cfg.Header) == "" {
		return NewMissingFieldError("multitenant.header", "MULTITENANT_HEADER", "multitenant.header")
	}
	if cfg.Tenant.Default == "" {
		return NewMissingFieldError("multitenant.tenant.default", "MULTITENANT_TENANT_DEFAULT", "multitenant.tenant.default")
	}
	if cfg.Idle.TTL <= 0 {
		return NewInvalidFieldError("multitenant.idle.ttl", "must be positive", nil)
	}
	if cfg.Cleanup.Interval < 0 {
		return NewInvalidFieldError("multitenant.cleanup.interval", "must not be negative", nil)
	}
	if cfg.Max.Tenants < 0 {
		return NewInvalidFieldError("multitenant.max.tenants", "must not be negative", nil)
	}
	return nil
}

func validateLog(cfg *LogConfig) error {
	if !slices.Contains(validLogLevels, cfg.Level) {
		return NewInvalidFieldError("log.level", fmt.Sprintf("unknown level %q", cfg.Level), validLogLevels)
	}
	return nil
}
