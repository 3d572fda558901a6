package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fieldtrack/agent/internal/models"
)

// MockTracker is a mock implementation of the api.Tracker interface
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) Devices() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockTracker) Tracked(deviceID string) bool {
	args := m.Called(deviceID)
	return args.Bool(0)
}

func (m *MockTracker) Snapshot(deviceID string) (models.TrackSnapshot, bool) {
	args := m.Called(deviceID)
	return args.Get(0).(models.TrackSnapshot), args.Bool(1)
}

func (m *MockTracker) Statuses() []models.DeviceStatus {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]models.DeviceStatus)
}

func (m *MockTracker) Refresh(deviceID string) (models.TrackSnapshot, error) {
	args := m.Called(deviceID)
	return args.Get(0).(models.TrackSnapshot), args.Error(1)
}

func (m *MockTracker) ClearCache(deviceID string) error {
	args := m.Called(deviceID)
	return args.Error(0)
}
