// Package testing holds shared helpers for the records service tests.
//
// The mocks subpackage provides testify-based mocks for the tenant resolver
// and storage handle interfaces. The containers subpackage starts a MongoDB
// testcontainer for tests built with the integration tag.
//
// For an in-memory document store with fault injection see database/testing.
package testing
