package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fieldtrack/agent/pkg/identity"
)

// MockAgentInfo is a mock implementation of the AgentInfoInterface
type MockAgentInfo struct {
	mock.Mock
}

func (m *MockAgentInfo) LoadAgentInfo() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockAgentInfo) EnsureAgentID() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockAgentInfo) GetAgentID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockAgentInfo) GetAgentIdentity() *identity.Identity {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*identity.Identity)
}
