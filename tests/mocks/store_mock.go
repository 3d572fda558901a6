package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fieldtrack/agent/pkg/trace"
)

// MockStore is a mock implementation of the store.Store interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Load(deviceID string) ([]trace.Point, error) {
	args := m.Called(deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]trace.Point), args.Error(1)
}

func (m *MockStore) Save(deviceID string, points []trace.Point) error {
	args := m.Called(deviceID, points)
	return args.Error(0)
}

func (m *MockStore) Clear(deviceID string) error {
	args := m.Called(deviceID)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
