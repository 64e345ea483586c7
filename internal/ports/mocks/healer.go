package mocks

import (
	"context"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockHealerPort struct {
	mock.Mock
}

func (_m *MockHealerPort) AttemptFix(ctx context.Context, node domain.Node, err error) domain.FixResult {
	ret := _m.Called(ctx, node, err)
	return ret.Get(0).(domain.FixResult)
}

func NewMockHealerPort(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockHealerPort {
	m := &MockHealerPort{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
