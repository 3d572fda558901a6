package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fieldtrack/agent/pkg/trace"
)

// MockRemoteClient is a mock implementation of the remote.Client interface
type MockRemoteClient struct {
	mock.Mock
}

func (m *MockRemoteClient) FetchLatest(ctx context.Context, deviceID string) (trace.RawPoint, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(trace.RawPoint), args.Error(1)
}

func (m *MockRemoteClient) FetchHistory(ctx context.Context, deviceID string) ([]trace.RawPoint, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]trace.RawPoint), args.Error(1)
}

func (m *MockRemoteClient) Close() error {
	args := m.Called()
	return args.Error(0)
}
