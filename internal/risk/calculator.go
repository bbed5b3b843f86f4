package risk

import (
	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/numeric"
	"github.com/life2you_mini/poolcore/internal/series"
)

// 风险等级常量
const (
	RiskLevelLow    = "LOW"
	RiskLevelMedium = "MEDIUM"
	RiskLevelHigh   = "HIGH"
)

// LevelThresholds 风险等级阈值 (0..100 评分)
type LevelThresholds struct {
	Medium int // 评分达到此值为中风险
	High   int // 评分达到此值为高风险
}

// DefaultLevelThresholds 默认阈值 30 / 60
var DefaultLevelThresholds = LevelThresholds{Medium: 30, High: 60}

// RiskAdjustedAPY 风险调整后的年化收益
// 公式: total_apy * (1 - il_score/100) * (1 - daily_volatility)，结果不小于 0
func RiskAdjustedAPY(pool *model.NormalizedPool) decimal.Decimal {
	ilFactor := numeric.One.Sub(numeric.Quo(numeric.FromInt(pool.ILRisk.Score), numeric.Hundred))
	volFactor := numeric.One.Sub(pool.Volatility.Daily)
	v := pool.APY.Total.Mul(ilFactor).Mul(volFactor)
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// EstimateImpermanentLoss 根据价格比值估算无常损失
// 公式: IL = 2*sqrt(r)/(1+r) - 1，r <= 0 时返回 0
func EstimateImpermanentLoss(priceRatio decimal.Decimal) decimal.Decimal {
	if !priceRatio.IsPositive() {
		return decimal.Zero
	}
	root, err := numeric.Sqrt(priceRatio)
	if err != nil {
		return decimal.Zero
	}
	il := numeric.Quo(numeric.Two.Mul(root), numeric.One.Add(priceRatio)).Sub(numeric.One)
	// 舍入误差可能产生极小的正数
	return decimal.Min(il, decimal.Zero)
}

// VolatilityImpact 将日波动率按平方根规则扩展到 days 天
func VolatilityImpact(dailyVolatility decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return dailyVolatility.Mul(numeric.MustSqrt(numeric.FromInt(days)))
}

// Correlation 两个收益序列尾部对齐后的 Pearson 相关系数
func Correlation(x, y []decimal.Decimal) decimal.Decimal {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	return series.Correlation(series.Last(x, n), series.Last(y, n))
}

// ClassifyRiskLevel 评估风险等级
// 分别按无常损失评分与合约风险评分定级，取两者中的较高级别
func ClassifyRiskLevel(ilScore, contractRisk int, th LevelThresholds) string {
	levelOf := func(score int) string {
		if score >= th.High {
			return RiskLevelHigh
		} else if score >= th.Medium {
			return RiskLevelMedium
		}
		return RiskLevelLow
	}

	ilLevel := levelOf(ilScore)
	contractLevel := levelOf(contractRisk)

	if ilLevel == RiskLevelHigh || contractLevel == RiskLevelHigh {
		return RiskLevelHigh
	} else if ilLevel == RiskLevelMedium || contractLevel == RiskLevelMedium {
		return RiskLevelMedium
	}
	return RiskLevelLow
}

// PerformanceSummary 用于特征向量的表现目标
type PerformanceSummary struct {
	RealizedAPY       decimal.Decimal
	Sharpe            decimal.Decimal
	Sortino           decimal.Decimal
	MaxDrawdown       decimal.Decimal
	RecoveryFactor    decimal.Decimal
	WinLossRatio      decimal.Decimal
	ProfitFactor      decimal.Decimal
	Calmar            decimal.Decimal
	Omega             decimal.Decimal
	VaR95             decimal.Decimal
	ExpectedShortfall decimal.Decimal
}

// Summarize 由高级指标与收益序列汇总表现目标
func Summarize(pool *model.NormalizedPool, m model.AdvancedMetrics) PerformanceSummary {
	returns := series.Values(pool.PerformanceHistory.DailyReturns)

	wins, losses := 0, 0
	gain, loss := decimal.Zero, decimal.Zero
	for _, r := range returns {
		switch {
		case r.IsPositive():
			wins++
			gain = gain.Add(r)
		case r.IsNegative():
			losses++
			loss = loss.Add(r.Abs())
		}
	}

	winLoss := decimal.Zero
	if losses > 0 {
		winLoss = numeric.Quo(numeric.FromInt(wins), numeric.FromInt(losses))
	} else if wins > 0 {
		winLoss = numeric.FromInt(wins)
	}

	recovery := decimal.Zero
	if !m.MaxDrawdown.IsZero() {
		recovery = numeric.Quo(series.Sum(returns), m.MaxDrawdown.Abs())
	}

	confidence := decimal.RequireFromString("0.95")
	return PerformanceSummary{
		RealizedAPY:       m.AnnualizedReturn,
		Sharpe:            m.Sharpe,
		Sortino:           m.Sortino,
		MaxDrawdown:       m.MaxDrawdown,
		RecoveryFactor:    recovery,
		WinLossRatio:      winLoss,
		ProfitFactor:      numeric.Quo(gain, loss),
		Calmar:            m.Calmar,
		Omega:             m.Omega,
		VaR95:             VaR(returns, confidence),
		ExpectedShortfall: ExpectedShortfall(returns, confidence),
	}
}
