package testutils

import (
	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendSecurityNotice(to, subject, body string) error {
	args := m.Called(to, subject, body)
	return args.Error(0)
}

func (m *MockNotifier) SendLoginCode(to, code string) error {
	args := m.Called(to, code)
	return args.Error(0)
}
