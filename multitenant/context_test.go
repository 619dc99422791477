package multitenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTenantContextRoundTrip(t *testing.T) {
	ctx := SetTenant(context.Background(), "acme")

	tenantID, ok := GetTenant(ctx)
	assert.True(t, ok)
	assert.Equal(t, "acme", tenantID)
}

func TestSetTenantIgnoresEmpty(t *testing.T) {
	base := context.Background()
	assert.Equal(t, base, SetTenant(base, ""))

	_, ok := GetTenant(base)
	assert.False(t, ok)
}

func TestGetTenantNilContext(t *testing.T) {
	//nolint:staticcheck // nil context is handled explicitly
	_, ok := GetTenant(nil)
	assert.False(t, ok)
}
