package mocks

import (
	"context"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockSkillStorePort struct {
	mock.Mock
}

func (_m *MockSkillStorePort) SaveSkill(ctx context.Context, record domain.SkillRecord) error {
	ret := _m.Called(ctx, record)
	return ret.Error(0)
}

func (_m *MockSkillStorePort) LoadSkills(ctx context.Context) ([]domain.SkillRecord, error) {
	ret := _m.Called(ctx)

	var records []domain.SkillRecord
	if v := ret.Get(0); v != nil {
		records = v.([]domain.SkillRecord)
	}
	return records, ret.Error(1)
}

func NewMockSkillStorePort(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSkillStorePort {
	m := &MockSkillStorePort{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
