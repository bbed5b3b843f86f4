package optimizer

import (
	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/numeric"
)

// PositionSize 按凯利公式的一半计算建议仓位
// 风险评分 r 取无常损失评分：胜率 w = 1 - r/100，败率 l = r/100，kelly = w/l - 1
// 仓位 = min(TVL * max(kelly, 0) / 2, TVL) * (1 - 日波动率)，最终限制在 [0, TVL]
func PositionSize(pool *model.NormalizedPool) decimal.Decimal {
	return KellySize(pool.TVL, pool.ILRisk.Score, pool.Volatility.Daily)
}

// KellySize 给定 TVL、风险评分与日波动率计算仓位
func KellySize(tvl decimal.Decimal, riskScore int, dailyVol decimal.Decimal) decimal.Decimal {
	if !tvl.IsPositive() {
		return decimal.Zero
	}
	score := riskScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	loss := numeric.Quo(numeric.FromInt(score), numeric.Hundred)
	if loss.GreaterThanOrEqual(numeric.One) {
		return decimal.Zero
	}
	volFactor := numeric.One.Sub(dailyVol)

	var raw decimal.Decimal
	if loss.IsZero() {
		// 没有亏损概率时凯利值无界，直接以 TVL 为上限
		raw = tvl
	} else {
		win := numeric.One.Sub(loss)
		kelly := numeric.Quo(win, loss).Sub(numeric.One)
		raw = decimal.Min(tvl.Mul(decimal.Max(kelly, decimal.Zero)).Div(numeric.Two), tvl)
	}
	return numeric.Clamp(raw.Mul(volFactor), decimal.Zero, tvl)
}
