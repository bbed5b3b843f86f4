package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/life2you_mini/poolcore/internal/model"
)

// MockSink 遥测接收端的模拟实现
type MockSink struct {
	mock.Mock
}

// IncObservations 观测计数的模拟实现
func (m *MockSink) IncObservations() {
	m.Called()
}

// IncRejected 拒绝计数的模拟实现
func (m *MockSink) IncRejected() {
	m.Called()
}

// IncAnomaly 异常计数的模拟实现
func (m *MockSink) IncAnomaly(severity model.Severity) {
	m.Called(severity)
}

// ObservePhase 阶段耗时的模拟实现
func (m *MockSink) ObservePhase(phase model.Phase, d time.Duration) {
	m.Called(phase, d)
}

// ObserveFeatureBuild 特征合成耗时的模拟实现
func (m *MockSink) ObserveFeatureBuild(d time.Duration) {
	m.Called(d)
}
