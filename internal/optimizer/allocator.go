package optimizer

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/numeric"
	"github.com/life2you_mini/poolcore/internal/series"
)

// PerformanceStats 策略的年化表现
type PerformanceStats struct {
	AnnualizedReturn decimal.Decimal
	Volatility       decimal.Decimal
	Sharpe           decimal.Decimal
}

// RankedStrategy 带夏普比率的策略
type RankedStrategy struct {
	Strategy model.Strategy
	Sharpe   decimal.Decimal
}

// StrategyMetrics 由余额历史计算年化收益、年化波动率与夏普比率
func StrategyMetrics(balances []series.Point, riskFree decimal.Decimal, periods int) PerformanceStats {
	returns := make([]decimal.Decimal, 0, len(balances))
	for i := 1; i < len(balances); i++ {
		prev := balances[i-1].Value
		if prev.IsZero() {
			continue
		}
		returns = append(returns, numeric.Quo(balances[i].Value.Sub(prev), prev))
	}
	if len(returns) == 0 {
		return PerformanceStats{}
	}

	n := numeric.FromInt(periods)
	annual := series.Mean(returns).Mul(n)
	vol := series.StdDev(returns).Mul(numeric.MustSqrt(n))
	return PerformanceStats{
		AnnualizedReturn: annual,
		Volatility:       vol,
		Sharpe:           numeric.Quo(annual.Sub(riskFree), vol),
	}
}

// Rank 过滤出激活策略，按夏普降序排列，夏普相同时按名称升序，最多保留 MaxStrategies 个
func Rank(strategies []model.Strategy, cfg Config) []RankedStrategy {
	ranked := make([]RankedStrategy, 0, len(strategies))
	for _, s := range strategies {
		if !s.IsActive {
			continue
		}
		stats := StrategyMetrics(s.BalanceHistory, cfg.RiskFreeRate, cfg.PeriodsPerYear)
		ranked = append(ranked, RankedStrategy{Strategy: s, Sharpe: stats.Sharpe})
	}
	sortRanked(ranked)
	if cfg.MaxStrategies > 0 && len(ranked) > cfg.MaxStrategies {
		ranked = ranked[:cfg.MaxStrategies]
	}
	return ranked
}

func sortRanked(ranked []RankedStrategy) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].Sharpe.Cmp(ranked[j].Sharpe); c != 0 {
			return c > 0
		}
		return ranked[i].Strategy.Name < ranked[j].Strategy.Name
	})
}

// Allocate 为激活策略分配 10000 bps 预算，不修改输入
func Allocate(strategies []model.Strategy, cfg Config) *model.AllocationPlan {
	return AllocateRanked(Rank(strategies, cfg), cfg)
}

// AllocateRanked 按给定排序贪心分配
// 每个策略的基准份额为 剩余预算/剩余策略数，按夏普相对中位数的比例倾斜，
// 再限制在 [min_weight, min(max_weight, max_allocation)] 且为后续策略保留可行空间，
// 最后一个策略获得剩余预算，但不超过其 max_allocation；上限合计不足时总和小于 10000
func AllocateRanked(ranked []RankedStrategy, cfg Config) *model.AllocationPlan {
	plan := &model.AllocationPlan{Allocations: make([]model.Allocation, 0, len(ranked))}
	if len(ranked) == 0 {
		return plan
	}

	mins := make([]int64, len(ranked))
	caps := make([]int64, len(ranked))
	for i, r := range ranked {
		mins[i], caps[i] = bounds(r.Strategy, cfg)
	}
	median := medianSharpe(ranked)

	remaining := TotalBudgetBps
	for i, r := range ranked {
		var weight int64
		if i == len(ranked)-1 {
			weight = minInt64(remaining, allocationCap(r.Strategy))
		} else {
			left := int64(len(ranked) - i)
			base := decimal.NewFromInt(remaining).Div(decimal.NewFromInt(left))
			tilt := numeric.One
			if median.IsPositive() {
				tilt = numeric.Quo(decimal.Max(r.Sharpe, decimal.Zero), median)
			}
			weight = base.Mul(tilt).Round(0).IntPart()

			var restMin, restCap int64
			for j := i + 1; j < len(ranked); j++ {
				restMin += mins[j]
				restCap += caps[j]
			}
			lo := maxInt64(mins[i], remaining-restCap)
			hi := minInt64(caps[i], remaining-restMin)
			if hi < 0 {
				hi = 0
			}
			if lo > hi {
				// 约束无法同时满足时优先保证预算
				lo = hi
			}
			weight = clampInt64(weight, lo, hi)
		}
		remaining -= weight
		plan.Allocations = append(plan.Allocations, model.Allocation{
			Strategy:  r.Strategy.Name,
			WeightBps: weight,
			Sharpe:    r.Sharpe,
		})
		plan.TotalBps += weight
	}
	return plan
}

// bounds 策略权重上下限，未设置时使用配置默认值
func bounds(s model.Strategy, cfg Config) (lo, hi int64) {
	lo, hi = s.MinWeightBps, s.MaxWeightBps
	if lo <= 0 {
		lo = cfg.MinWeightBps
	}
	if hi <= 0 {
		hi = cfg.MaxWeightBps
	}
	hi = minInt64(hi, allocationCap(s))
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// allocationCap 金库设定的分配上限，是硬约束，未设置时为全部预算
func allocationCap(s model.Strategy) int64 {
	if s.MaxAllocationBps == nil {
		return TotalBudgetBps
	}
	return clampInt64(*s.MaxAllocationBps, 0, TotalBudgetBps)
}

func medianSharpe(ranked []RankedStrategy) decimal.Decimal {
	vals := make([]decimal.Decimal, len(ranked))
	for i, r := range ranked {
		vals[i] = r.Sharpe
	}
	return series.Quantile(vals, decimal.RequireFromString("0.5"))
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func clampInt64(v, lo, hi int64) int64 {
	return minInt64(maxInt64(v, lo), hi)
}
