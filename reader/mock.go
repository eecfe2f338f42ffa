package reader

import (
	"github.com/stretchr/testify/mock"
)

// MockLink is a testify-based mock implementation of Link for tests.
type MockLink struct {
	mock.Mock
}

var _ Link = (*MockLink)(nil)

func NewMockLink() *MockLink {
	return &MockLink{}
}

func (m *MockLink) SetHandler(h Handler) {
	m.Called(h)
}

func (m *MockLink) Open() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockLink) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockLink) SendCommand(cmd string) error {
	args := m.Called(cmd)
	return args.Error(0)
}

func (m *MockLink) IsOpen() bool {
	args := m.Called()
	return args.Bool(0)
}
