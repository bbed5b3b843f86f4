package optimizer

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/numeric"
	"github.com/life2you_mini/poolcore/internal/series"
)

// 信号指标标签
const (
	IndicatorMomentum       = "momentum"
	IndicatorTrendFollowing = "trend-following"
	IndicatorTrendReversal  = "trend-reversal"
	IndicatorMeanReversion  = "mean-reversion"
	IndicatorValue          = "value"
	IndicatorPortfolioDrift = "portfolio-drift"
	IndicatorILRisk         = "impermanent-loss"
)

var (
	momentumConfidence  = decimal.RequireFromString("0.85")
	valueConfidence     = decimal.RequireFromString("0.75")
	rebalanceConfidence = decimal.RequireFromString("0.8")
	warningConfidence   = decimal.RequireFromString("0.9")
)

// EntrySignals 逐对遍历日收益序列生成入场信号
func EntrySignals(returns []series.Point, stabilityScore int, cfg Config) []model.Signal {
	var out []model.Signal
	for i := 1; i < len(returns); i++ {
		prev, curr := returns[i-1].Value, returns[i].Value
		ts := returns[i].Timestamp

		switch {
		case curr.GreaterThan(prev) && curr.GreaterThan(cfg.EntryMomentumThreshold):
			out = append(out, model.Signal{
				Timestamp:  ts,
				Kind:       model.SignalEntry,
				Strength:   numeric.Quo(curr, cfg.EntryMomentumThreshold),
				Confidence: momentumConfidence,
				Indicators: []string{IndicatorMomentum, IndicatorTrendFollowing},
			})
		case curr.IsNegative() && stabilityScore > cfg.ValueStabilityFloor:
			out = append(out, model.Signal{
				Timestamp:  ts,
				Kind:       model.SignalEntry,
				Strength:   decimal.Max(numeric.One.Sub(curr.Abs()), decimal.Zero),
				Confidence: valueConfidence,
				Indicators: []string{IndicatorMeanReversion, IndicatorValue},
			})
		}
	}
	return out
}

// ExitSignals 负动量离场信号：收益下降且低于 -阈值
func ExitSignals(returns []series.Point, cfg Config) []model.Signal {
	threshold := cfg.ExitMomentumThreshold
	var out []model.Signal
	for i := 1; i < len(returns); i++ {
		prev, curr := returns[i-1].Value, returns[i].Value
		if curr.LessThan(prev) && curr.LessThan(threshold.Neg()) {
			out = append(out, model.Signal{
				Timestamp:  returns[i].Timestamp,
				Kind:       model.SignalExit,
				Strength:   numeric.Quo(curr.Abs(), threshold),
				Confidence: momentumConfidence,
				Indicators: []string{IndicatorMomentum, IndicatorTrendReversal},
			})
		}
	}
	return out
}

// PortfolioDrift 当前权重与目标权重的偏离，单位 bps，等于 Σ|cur - tgt| / 2
func PortfolioDrift(current, target map[string]int64) int64 {
	var total int64
	for _, key := range unionKeys(current, target) {
		d := current[key] - target[key]
		if d < 0 {
			d = -d
		}
		total += d
	}
	return total / 2
}

// RebalanceSignal 偏离达到阈值时返回再平衡信号，否则返回 nil
func RebalanceSignal(ts int64, current, target map[string]int64, cfg Config) *model.Signal {
	if len(target) == 0 || cfg.RebalanceDriftBps <= 0 {
		return nil
	}
	drift := PortfolioDrift(current, target)
	if drift < cfg.RebalanceDriftBps {
		return nil
	}
	return &model.Signal{
		Timestamp:  ts,
		Kind:       model.SignalRebalance,
		Strength:   numeric.Quo(decimal.NewFromInt(drift), decimal.NewFromInt(cfg.RebalanceDriftBps)),
		Confidence: rebalanceConfidence,
		Indicators: []string{IndicatorPortfolioDrift},
	}
}

// RiskWarnings 无常损失风险过高时的警告
func RiskWarnings(pool *model.NormalizedPool, cfg Config) []model.Signal {
	var out []model.Signal
	if pool.ILRisk.Score >= cfg.HighILRiskScore {
		out = append(out, model.Signal{
			Timestamp:  pool.Timestamp,
			Kind:       model.SignalRiskWarning,
			Strength:   numeric.Quo(numeric.FromInt(pool.ILRisk.Score), numeric.Hundred),
			Confidence: warningConfidence,
			Indicators: []string{IndicatorILRisk},
			Reason:     "无常损失风险评分过高",
		})
	}
	if pool.ILRisk.MaxProjectedIL.LessThanOrEqual(cfg.MaxProjectedILFloor) {
		out = append(out, model.Signal{
			Timestamp:  pool.Timestamp,
			Kind:       model.SignalRiskWarning,
			Strength:   pool.ILRisk.MaxProjectedIL.Abs(),
			Confidence: warningConfidence,
			Indicators: []string{IndicatorILRisk},
			Reason:     "预计最大无常损失过高",
		})
	}
	return out
}

// Warning 编排层使用的风险警告，如观测无效或阶段超时
func Warning(ts int64, reason string, indicators ...string) model.Signal {
	return model.Signal{
		Timestamp:  ts,
		Kind:       model.SignalRiskWarning,
		Strength:   numeric.One,
		Confidence: numeric.One,
		Indicators: append([]string{}, indicators...),
		Reason:     reason,
	}
}

// Signals 汇总单个池子的全部信号，按时间排序
func Signals(pool *model.NormalizedPool, cfg Config) []model.Signal {
	returns := pool.PerformanceHistory.DailyReturns

	out := EntrySignals(returns, pool.Volatility.PriceStabilityScore, cfg)
	out = append(out, ExitSignals(returns, cfg)...)
	if s := RebalanceSignal(pool.Timestamp, pool.CurrentWeights, pool.TargetWeights, cfg); s != nil {
		out = append(out, *s)
	}
	out = append(out, RiskWarnings(pool, cfg)...)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

func unionKeys(a, b map[string]int64) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
