package alert

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/life2you_mini/poolcore/internal/errs"
	"github.com/life2you_mini/poolcore/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestChangeBps(t *testing.T) {
	tests := []struct {
		name    string
		old     string
		new     string
		want    string
		bounded bool
	}{
		{name: "上涨 50%", old: "100", new: "150", want: "5000", bounded: true},
		{name: "下跌 10%", old: "100", new: "90", want: "1000", bounded: true},
		{name: "不变", old: "100", new: "100", want: "0", bounded: true},
		{name: "从 0 到非 0", old: "0", new: "5", want: "0", bounded: false},
		{name: "一直为 0", old: "0", new: "0", want: "0", bounded: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ChangeBps(d(tt.old), d(tt.new))
			assert.Equal(t, tt.bounded, ok)
			assert.True(t, got.Equal(d(tt.want)), "got %s", got)
		})
	}
}

func TestClassify(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name       string
		change     string
		bounded    bool
		volatility string
		want       model.Severity
	}{
		{name: "正常", change: "100", bounded: true, volatility: "100", want: model.SeverityNormal},
		{name: "波动偏高", change: "100", bounded: true, volatility: "501", want: model.SeverityWarning},
		{name: "波动恰好等于下限", change: "100", bounded: true, volatility: "500", want: model.SeverityNormal},
		{name: "变化 10%", change: "1000", bounded: true, volatility: "0", want: model.SeverityCritical},
		{name: "变化 20%", change: "2000", bounded: true, volatility: "0", want: model.SeverityEmergency},
		{name: "旧值为 0", change: "0", bounded: false, volatility: "0", want: model.SeverityEmergency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(d(tt.change), tt.bounded, d(tt.volatility), cfg))
		})
	}
}

func TestVolatilityScore(t *testing.T) {
	vals := []decimal.Decimal{d("1000"), d("1100"), d("900"), d("1200"), d("800")}
	score := VolatilityScore(vals, 12)
	assert.True(t, score.IsPositive())

	// 只看最近两个样本: 1200 -> 800 为 3333.33 bps
	last := VolatilityScore(vals, 2)
	assert.InDelta(t, 3333.33, last.InexactFloat64(), 0.01)

	assert.True(t, VolatilityScore(vals[:1], 12).IsZero())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "窗口过小", mutate: func(c *Config) { c.Metrics[MetricTVL] = MetricConfig{Window: 1, Threshold: d("3")} }},
		{name: "阈值为 0", mutate: func(c *Config) { c.Metrics[MetricAPY] = MetricConfig{Window: 10, Threshold: d("0")} }},
		{name: "critical 不小于 emergency", mutate: func(c *Config) { c.CriticalChangeBps = d("2000") }},
		{name: "历史容量为 0", mutate: func(c *Config) { c.HistorySize = 0 }},
		{name: "没有指标", mutate: func(c *Config) { c.Metrics = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.Error(t, err)
			assert.Equal(t, errs.Misconfiguration, errs.KindOf(err))
		})
	}
}
