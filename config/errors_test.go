package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *ConfigError
		expected string
	}{
		{
			name:     "missing_field",
			err:      NewMissingFieldError("mongodb.uri", "MONGODB_URI", "mongodb.uri"),
			expected: "config_missing: mongodb.uri required set MONGODB_URI env var or add mongodb.uri to config.yaml",
		},
		{
			name:     "invalid_with_options",
			err:      NewInvalidFieldError("log.level", "unknown level \"loud\"", []string{"info", "debug"}),
			expected: "config_invalid: log.level unknown level \"loud\" must be one of: info, debug",
		},
		{
			name:     "invalid_without_options",
			err:      NewInvalidFieldError("server.port", "must be positive", nil),
			expected: "config_invalid: server.port must be positive",
		},
		{
			name:     "details",
			err:      &ConfigError{Category: "invalid", Field: "mongodb.uri", Details: []string{"a", "b"}},
			expected: "config_invalid: mongodb.uri a; b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}
