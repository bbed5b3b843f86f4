package alert

import (
	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/errs"
)

// 内置指标名
const (
	MetricTVL = "tvl"
	MetricAPY = "apy"
	MetricGas = "gas"
)

// MetricConfig 单个指标的检测参数
type MetricConfig struct {
	Window    int
	Threshold decimal.Decimal
}

// Config 告警引擎参数
type Config struct {
	Metrics map[string]MetricConfig
	// HistorySize 每个 (池子, 指标) 保留的告警条数
	HistorySize int
	// VolatilityWindow 计算波动评分使用的最近样本数
	VolatilityWindow int

	WarningVolatilityBps decimal.Decimal
	CriticalChangeBps    decimal.Decimal
	EmergencyChangeBps   decimal.Decimal
}

// DefaultConfig 默认参数：tvl 24/3.0，apy 168/2.5，gas 100/4.0
func DefaultConfig() Config {
	return Config{
		Metrics: map[string]MetricConfig{
			MetricTVL: {Window: 24, Threshold: decimal.RequireFromString("3.0")},
			MetricAPY: {Window: 168, Threshold: decimal.RequireFromString("2.5")},
			MetricGas: {Window: 100, Threshold: decimal.RequireFromString("4.0")},
		},
		HistorySize:          24,
		VolatilityWindow:     12,
		WarningVolatilityBps: decimal.NewFromInt(500),
		CriticalChangeBps:    decimal.NewFromInt(1000),
		EmergencyChangeBps:   decimal.NewFromInt(2000),
	}
}

// Validate 检查阈值单调性与窗口大小
func (c Config) Validate() error {
	if len(c.Metrics) == 0 {
		return errs.New(errs.Misconfiguration, "alert.config", "未配置任何指标")
	}
	for name, m := range c.Metrics {
		if m.Window < 2 {
			return errs.New(errs.Misconfiguration, "alert.config", "指标 %s 窗口过小: %d", name, m.Window)
		}
		if !m.Threshold.IsPositive() {
			return errs.New(errs.Misconfiguration, "alert.config", "指标 %s 阈值必须为正: %s", name, m.Threshold)
		}
	}
	if c.HistorySize < 1 {
		return errs.New(errs.Misconfiguration, "alert.config", "告警历史容量必须为正: %d", c.HistorySize)
	}
	if c.VolatilityWindow < 2 {
		return errs.New(errs.Misconfiguration, "alert.config", "波动窗口过小: %d", c.VolatilityWindow)
	}
	if c.WarningVolatilityBps.IsNegative() || !c.CriticalChangeBps.IsPositive() {
		return errs.New(errs.Misconfiguration, "alert.config", "告警阈值必须为正")
	}
	if !c.CriticalChangeBps.LessThan(c.EmergencyChangeBps) {
		return errs.New(errs.Misconfiguration, "alert.config", "critical 阈值 %s 必须小于 emergency 阈值 %s",
			c.CriticalChangeBps, c.EmergencyChangeBps)
	}
	return nil
}
