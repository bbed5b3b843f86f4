package indicators

import (
	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/numeric"
	"github.com/life2you_mini/poolcore/internal/series"
)

// MomentumScore 最近 7 期平均收益除以最近 30 期收益标准差
func MomentumScore(returns []decimal.Decimal) decimal.Decimal {
	std := series.StdDev(series.Last(returns, 30))
	if std.IsZero() {
		return decimal.Zero
	}
	return numeric.Quo(series.Mean(series.Last(returns, 7)), std)
}

// TrendStrength 最近 30 期中正收益的占比
func TrendStrength(returns []decimal.Decimal) decimal.Decimal {
	window := series.Last(returns, 30)
	if len(window) == 0 {
		return decimal.Zero
	}
	positive := 0
	for _, r := range window {
		if r.IsPositive() {
			positive++
		}
	}
	return numeric.Quo(numeric.FromInt(positive), numeric.FromInt(len(window)))
}

// SupportResistance 最近 n 个严格局部极小值 (支撑) 与极大值 (阻力)，最近的在前
func SupportResistance(prices []decimal.Decimal, n int) (support, resistance []decimal.Decimal) {
	for i := len(prices) - 2; i >= 1; i-- {
		prev, cur, next := prices[i-1], prices[i], prices[i+1]
		if len(support) < n && cur.LessThan(prev) && cur.LessThan(next) {
			support = append(support, cur)
		}
		if len(resistance) < n && cur.GreaterThan(prev) && cur.GreaterThan(next) {
			resistance = append(resistance, cur)
		}
		if len(support) >= n && len(resistance) >= n {
			break
		}
	}
	return support, resistance
}
