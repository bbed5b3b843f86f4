package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSnapshotStore 检测器快照存储的模拟实现
type MockSnapshotStore struct {
	mock.Mock
}

// SaveSnapshot 保存快照的模拟实现
func (m *MockSnapshotStore) SaveSnapshot(ctx context.Context, data []byte) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

// LoadSnapshot 读取快照的模拟实现
func (m *MockSnapshotStore) LoadSnapshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
