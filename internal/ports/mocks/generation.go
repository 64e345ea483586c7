package mocks

import (
	"context"

	"github.com/eleven-am/specter/internal/ports"
	"github.com/stretchr/testify/mock"
)

type MockGenerationPort struct {
	mock.Mock
}

func (_m *MockGenerationPort) Generate(ctx context.Context, prompt string, opts ...ports.GenerateOption) (string, error) {
	ret := _m.Called(ctx, prompt)

	if fn, ok := ret.Get(0).(func(context.Context, string) (string, error)); ok {
		return fn(ctx, prompt)
	}
	return ret.String(0), ret.Error(1)
}

func NewMockGenerationPort(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockGenerationPort {
	m := &MockGenerationPort{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
