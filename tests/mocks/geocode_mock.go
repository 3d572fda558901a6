package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockGeocoder is a mock implementation of the geocode.Geocoder interface
type MockGeocoder struct {
	mock.Mock
}

func (m *MockGeocoder) Place(ctx context.Context, lat, lon float64) (string, error) {
	args := m.Called(ctx, lat, lon)
	return args.String(0), args.Error(1)
}
