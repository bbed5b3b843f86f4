package optimizer

import (
	"github.com/shopspring/decimal"
)

// TotalBudgetBps 分配总预算
const TotalBudgetBps int64 = 10000

// Config 优化器参数
type Config struct {
	// EntryMomentumThreshold 动量入场阈值，日收益超过此值触发
	EntryMomentumThreshold decimal.Decimal
	// ExitMomentumThreshold 动量离场阈值，日收益低于其相反数触发
	ExitMomentumThreshold decimal.Decimal
	// ValueStabilityFloor 价值入场要求的价格稳定性评分下限
	ValueStabilityFloor int
	RebalanceDriftBps   int64
	HighILRiskScore     int
	// MaxProjectedILFloor 预计最大无常损失不高于此值时发出风险警告
	MaxProjectedILFloor decimal.Decimal

	MaxStrategies int
	MinWeightBps  int64
	MaxWeightBps  int64

	RiskFreeRate   decimal.Decimal
	PeriodsPerYear int
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		EntryMomentumThreshold: decimal.RequireFromString("0.05"),
		ExitMomentumThreshold:  decimal.RequireFromString("0.05"),
		ValueStabilityFloor:    70,
		RebalanceDriftBps:      1000,
		HighILRiskScore:        80,
		MaxProjectedILFloor:    decimal.RequireFromString("-0.2"),
		MaxStrategies:          10,
		MinWeightBps:           1000,
		MaxWeightBps:           4000,
		RiskFreeRate:           decimal.RequireFromString("0.02"),
		PeriodsPerYear:         365,
	}
}
