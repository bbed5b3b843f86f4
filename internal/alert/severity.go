package alert

import (
	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/numeric"
	"github.com/life2you_mini/poolcore/internal/series"
)

// ChangeBps 相对旧值的变化幅度，单位 bps
// 旧值为 0 而新值非 0 时返回 ok=false，表示变化无界
func ChangeBps(prev, next decimal.Decimal) (bps decimal.Decimal, ok bool) {
	diff := next.Sub(prev).Abs()
	if prev.IsZero() {
		return decimal.Zero, diff.IsZero()
	}
	return numeric.Quo(diff.Mul(numeric.BpsScale), prev.Abs()), true
}

// VolatilityScore 最近 window 个样本相邻变化幅度的平均值，单位 bps
func VolatilityScore(values []decimal.Decimal, window int) decimal.Decimal {
	recent := series.Last(values, window)
	if len(recent) < 2 {
		return decimal.Zero
	}
	total := decimal.Zero
	for i := 1; i < len(recent); i++ {
		bps, ok := ChangeBps(recent[i-1], recent[i])
		if ok {
			total = total.Add(bps)
		}
	}
	return numeric.Quo(total, numeric.FromInt(len(recent)-1))
}

// Classify 严重程度阶梯：emergency > critical > warning > normal
func Classify(changeBps decimal.Decimal, bounded bool, volatility decimal.Decimal, cfg Config) model.Severity {
	switch {
	case !bounded || changeBps.GreaterThanOrEqual(cfg.EmergencyChangeBps):
		return model.SeverityEmergency
	case changeBps.GreaterThanOrEqual(cfg.CriticalChangeBps):
		return model.SeverityCritical
	case volatility.GreaterThan(cfg.WarningVolatilityBps):
		return model.SeverityWarning
	default:
		return model.SeverityNormal
	}
}
