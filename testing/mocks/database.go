package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gaborage/tenant-records/database/types"
)

// MockHandle is a testify mock of types.Handle.
type MockHandle struct {
	mock.Mock
}

var _ types.Handle = (*MockHandle)(nil)

// Name implements types.Handle.
func (m *MockHandle) Name() string {
	return m.Called().String(0)
}

// Collection implements types.Handle.
func (m *MockHandle) Collection(name string) types.DocumentCollection {
	args := m.Called(name)
	if c := args.Get(0); c != nil {
		return c.(types.DocumentCollection)
	}
	return nil
}

// Ping implements types.Handle.
func (m *MockHandle) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Close implements types.Handle.
func (m *MockHandle) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockConnector records connector calls and returns the stubbed handle.
type MockConnector struct {
	mock.Mock
}

// Connect matches the database.Connector signature.
func (m *MockConnector) Connect(ctx context.Context, tenantID string) (types.Handle, error) {
	args := m.Called(ctx, tenantID)
	if h := args.Get(0); h != nil {
		return h.(types.Handle), args.Error(1)
	}
	return nil, args.Error(1)
}
