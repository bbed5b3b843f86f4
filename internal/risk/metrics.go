package risk

import (
	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/errs"
	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/numeric"
	"github.com/life2you_mini/poolcore/internal/series"
)

// MinVaRPoints VaR 至少需要的数据点
const MinVaRPoints = 20

// Params 风险指标参数，收益率均为年化
type Params struct {
	RiskFreeRate             decimal.Decimal
	MarketReturn             decimal.Decimal
	VaRConfidence            decimal.Decimal
	SyntheticBenchmarkReturn decimal.Decimal // 无基准序列时使用的每期常数收益
	PeriodsPerYear           int
}

// DefaultParams 默认参数：无风险 2%，市场 8%，置信度 95%
func DefaultParams() Params {
	return Params{
		RiskFreeRate:             decimal.RequireFromString("0.02"),
		MarketReturn:             decimal.RequireFromString("0.08"),
		VaRConfidence:            decimal.RequireFromString("0.95"),
		SyntheticBenchmarkReturn: decimal.RequireFromString("0.0001"),
		PeriodsPerYear:           365,
	}
}

func (p Params) periods() decimal.Decimal {
	if p.PeriodsPerYear <= 0 {
		return numeric.FromInt(365)
	}
	return numeric.FromInt(p.PeriodsPerYear)
}

// RiskFreePerPeriod 每期无风险收益
func (p Params) RiskFreePerPeriod() decimal.Decimal {
	return numeric.Quo(p.RiskFreeRate, p.periods())
}

// MarketPerPeriod 每期市场收益
func (p Params) MarketPerPeriod() decimal.Decimal {
	return numeric.Quo(p.MarketReturn, p.periods())
}

// Compute 从规整后的历史表现计算全部高级指标
func Compute(pool *model.NormalizedPool, p Params) (model.AdvancedMetrics, error) {
	returns := series.Values(pool.PerformanceHistory.DailyReturns)
	tvl := series.Values(pool.PerformanceHistory.TVL)
	market := MarketSeries(pool, p)

	rf := p.RiskFreePerPeriod()
	mdd := MaxDrawdown(tvl)
	annual := series.Mean(returns).Mul(p.periods())

	m := model.AdvancedMetrics{
		Alpha:            Alpha(returns, p),
		Beta:             Beta(returns, market),
		Sharpe:           Sharpe(returns, rf),
		Sortino:          Sortino(returns, rf),
		MaxDrawdown:      mdd,
		VaR:              VaR(returns, p.VaRConfidence),
		Calmar:           Calmar(annual, mdd),
		Omega:            Omega(returns, rf),
		AnnualizedReturn: annual,
	}
	m.InsufficientHistory = len(returns) < MinVaRPoints || len(tvl) < 2

	for _, v := range []decimal.Decimal{m.Alpha, m.Beta, m.Sharpe, m.Sortino, m.VaR, m.Calmar, m.Omega, m.AnnualizedReturn} {
		if _, err := numeric.Add(v, decimal.Zero); err != nil {
			return model.AdvancedMetrics{}, errs.Wrap(errs.NumericOverflow, "risk.compute", err)
		}
	}
	return m, nil
}

// MarketSeries 返回与池子收益等长的市场收益序列：优先使用基准序列尾部，否则使用合成常数序列
func MarketSeries(pool *model.NormalizedPool, p Params) []decimal.Decimal {
	n := len(pool.PerformanceHistory.DailyReturns)
	if pool.Market != nil && len(pool.Market.BenchmarkReturns) >= n && n > 0 {
		return series.Values(series.LastPoints(pool.Market.BenchmarkReturns, n))
	}
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = p.SyntheticBenchmarkReturn
	}
	return out
}

// Alpha 平均日收益减去 (无风险 + 市场) 每期收益
func Alpha(returns []decimal.Decimal, p Params) decimal.Decimal {
	if len(returns) == 0 {
		return decimal.Zero
	}
	return series.Mean(returns).Sub(p.RiskFreePerPeriod().Add(p.MarketPerPeriod()))
}

// Beta cov(pool, market)/var(market)，市场方差为 0 时返回 1
func Beta(returns, market []decimal.Decimal) decimal.Decimal {
	n := len(returns)
	if len(market) < n {
		n = len(market)
	}
	x, y := series.Last(returns, n), series.Last(market, n)
	v := series.Variance(y)
	if v.IsZero() {
		return numeric.One
	}
	return numeric.Quo(series.Covariance(x, y), v)
}

// Sharpe (均值 - 无风险)/标准差，标准差为 0 时返回 0
func Sharpe(returns []decimal.Decimal, rf decimal.Decimal) decimal.Decimal {
	std := series.StdDev(returns)
	if std.IsZero() {
		return decimal.Zero
	}
	return numeric.Quo(series.Mean(returns).Sub(rf), std)
}

// Sortino 分母为 min(r - target, 0) 的标准差
func Sortino(returns []decimal.Decimal, target decimal.Decimal) decimal.Decimal {
	if len(returns) == 0 {
		return decimal.Zero
	}
	downside := make([]decimal.Decimal, len(returns))
	for i, r := range returns {
		downside[i] = decimal.Min(r.Sub(target), decimal.Zero)
	}
	dd := series.StdDev(downside)
	if dd.IsZero() {
		return decimal.Zero
	}
	return numeric.Quo(series.Mean(returns).Sub(target), dd)
}

// MaxDrawdown TVL 历史的最大回撤，结果 <= 0
func MaxDrawdown(tvl []decimal.Decimal) decimal.Decimal {
	return series.MaxDrawdown(tvl)
}

// VaR 收益在 1-c 处的分位数，少于 20 个点时返回 0
func VaR(returns []decimal.Decimal, confidence decimal.Decimal) decimal.Decimal {
	if len(returns) < MinVaRPoints {
		return decimal.Zero
	}
	return series.Quantile(returns, numeric.One.Sub(confidence))
}

// ExpectedShortfall 不高于 VaR 的收益均值，少于 20 个点时返回 0
func ExpectedShortfall(returns []decimal.Decimal, confidence decimal.Decimal) decimal.Decimal {
	if len(returns) < MinVaRPoints {
		return decimal.Zero
	}
	v := VaR(returns, confidence)
	var tail []decimal.Decimal
	for _, r := range returns {
		if r.LessThanOrEqual(v) {
			tail = append(tail, r)
		}
	}
	return series.Mean(tail)
}

// Calmar 年化收益/|最大回撤|，回撤为 0 时返回 0
func Calmar(annualReturn, maxDrawdown decimal.Decimal) decimal.Decimal {
	if maxDrawdown.IsZero() {
		return decimal.Zero
	}
	return numeric.Quo(annualReturn, maxDrawdown.Abs())
}

// Omega 阈值以上超额之和 / |阈值以下不足之和|，分母为 0 时返回 0
func Omega(returns []decimal.Decimal, threshold decimal.Decimal) decimal.Decimal {
	gains, losses := decimal.Zero, decimal.Zero
	for _, r := range returns {
		d := r.Sub(threshold)
		if d.IsPositive() {
			gains = gains.Add(d)
		} else if d.IsNegative() {
			losses = losses.Add(d.Abs())
		}
	}
	if losses.IsZero() {
		return decimal.Zero
	}
	return numeric.Quo(gains, losses)
}
