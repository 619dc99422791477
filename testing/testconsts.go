package testing

import "time"

// Tenant identifiers shared across tests.
const (
	TestTenantAcme  = "acme"
	TestTenantOther = "other"
)

// Logger levels used when building test loggers.
const (
	TestLoggerLevelDebug    = "debug"
	TestLoggerLevelDisabled = "disabled"
)

// Timing used for require.Eventually assertions.
const (
	TestEventuallyTimeout = 2 * time.Second
	TestEventuallyTick    = 10 * time.Millisecond
)

// TestPortMongoDB is the container port MongoDB listens on.
const TestPortMongoDB = 27017
