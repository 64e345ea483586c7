package mocks

import (
	"context"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockStreamCallback struct {
	mock.Mock
}

func (_m *MockStreamCallback) OnNodeStart(ctx context.Context, node domain.Node, progress domain.Progress) {
	_m.Called(ctx, node, progress)
}

func (_m *MockStreamCallback) OnNodeOutput(ctx context.Context, node domain.Node, output interface{}, progress domain.Progress) {
	_m.Called(ctx, node, output, progress)
}

func (_m *MockStreamCallback) OnNodeError(ctx context.Context, node domain.Node, err error, progress domain.Progress) {
	_m.Called(ctx, node, err, progress)
}

func (_m *MockStreamCallback) OnHealingFailed(ctx context.Context, node domain.Node, fix domain.FixResult, progress domain.Progress) {
	_m.Called(ctx, node, fix, progress)
}

func (_m *MockStreamCallback) OnComplete(ctx context.Context, result *domain.RunResult) {
	_m.Called(ctx, result)
}

func NewMockStreamCallback(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStreamCallback {
	m := &MockStreamCallback{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
