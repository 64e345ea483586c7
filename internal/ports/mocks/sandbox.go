package mocks

import (
	"context"
	"time"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockSandboxPort struct {
	mock.Mock
}

func (_m *MockSandboxPort) Run(ctx context.Context, code, tests string, timeout time.Duration) (domain.SandboxResult, error) {
	ret := _m.Called(ctx, code, tests, timeout)

	if fn, ok := ret.Get(0).(func(context.Context, string, string, time.Duration) (domain.SandboxResult, error)); ok {
		return fn(ctx, code, tests, timeout)
	}
	return ret.Get(0).(domain.SandboxResult), ret.Error(1)
}

func (_m *MockSandboxPort) Invoke(ctx context.Context, code string, params map[string]interface{}, timeout time.Duration) (interface{}, error) {
	ret := _m.Called(ctx, code, params, timeout)
	return ret.Get(0), ret.Error(1)
}

func NewMockSandboxPort(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSandboxPort {
	m := &MockSandboxPort{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
