package mocks

import (
	"context"
	"net/http"

	"github.com/stretchr/testify/mock"

	"github.com/gaborage/tenant-records/multitenant"
)

// MockTenantResolver is a testify mock of multitenant.TenantResolver.
type MockTenantResolver struct {
	mock.Mock
}

var _ multitenant.TenantResolver = (*MockTenantResolver)(nil)

// ResolveTenant implements multitenant.TenantResolver.
func (m *MockTenantResolver) ResolveTenant(ctx context.Context, req *http.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// ExpectTenant stubs any resolution to return tenantID.
func (m *MockTenantResolver) ExpectTenant(tenantID string) *mock.Call {
	return m.On("ResolveTenant", mock.Anything, mock.Anything).Return(tenantID, nil)
}

// ExpectError stubs any resolution to fail with err.
func (m *MockTenantResolver) ExpectError(err error) *mock.Call {
	return m.On("ResolveTenant", mock.Anything, mock.Anything).Return("", err)
}
