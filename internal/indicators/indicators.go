package indicators

import (
	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/errs"
	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/numeric"
	"github.com/life2you_mini/poolcore/internal/series"
)

// RegimeCutoffs 日波动率分档阈值
type RegimeCutoffs struct {
	Low    decimal.Decimal
	Medium decimal.Decimal
	High   decimal.Decimal
}

// Config 技术指标参数
type Config struct {
	RSIPeriod       int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	BollingerPeriod int
	BollingerK      decimal.Decimal
	ATRPeriod       int
	Regime          RegimeCutoffs
}

// DefaultConfig 默认参数：RSI-14，MACD 12/26/9，布林带 20/2σ，ATR-14，分档 1%/3%/6%
func DefaultConfig() Config {
	return Config{
		RSIPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		BollingerPeriod: 20,
		BollingerK:      decimal.NewFromInt(2),
		ATRPeriod:       14,
		Regime: RegimeCutoffs{
			Low:    decimal.RequireFromString("0.01"),
			Medium: decimal.RequireFromString("0.03"),
			High:   decimal.RequireFromString("0.06"),
		},
	}
}

// Compute 计算最新一期技术指标，价格以累计收益指数代替
// 收益指数溢出时返回中性指标与 NumericOverflow 错误
func Compute(pool *model.NormalizedPool, cfg Config) (model.TechnicalIndicators, error) {
	prices, err := PriceIndex(series.Values(pool.PerformanceHistory.DailyReturns))
	if err != nil {
		return model.TechnicalIndicators{
			RSI:    decimal.NewFromInt(50),
			Regime: ClassifyRegime(pool.Volatility.Daily, cfg.Regime),
		}, err
	}

	macd, signal, hist := MACD(prices, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	upper, middle, lower := Bollinger(prices, cfg.BollingerPeriod, cfg.BollingerK)

	return model.TechnicalIndicators{
		RSI:             RSI(prices, cfg.RSIPeriod),
		MACD:            macd,
		MACDSignal:      signal,
		MACDHistogram:   hist,
		BollingerUpper:  upper,
		BollingerMiddle: middle,
		BollingerLower:  lower,
		ATR:             ATR(prices, pool.Volatility.Daily, cfg.ATRPeriod),
		Regime:          ClassifyRegime(pool.Volatility.Daily, cfg.Regime),
	}, nil
}

// PriceIndex 由日收益构造累计收益指数，起点为 1，超出数值范围时返回 NumericOverflow
func PriceIndex(returns []decimal.Decimal) ([]decimal.Decimal, error) {
	if len(returns) == 0 {
		return nil, nil
	}
	out := make([]decimal.Decimal, len(returns)+1)
	out[0] = numeric.One
	for i, r := range returns {
		next, err := numeric.Mul(out[i], numeric.One.Add(r))
		if err != nil {
			return nil, errs.Wrap(errs.NumericOverflow, "indicators.price_index", err)
		}
		out[i+1] = next.Round(numeric.Precision)
	}
	return out, nil
}

// RSI Wilder 平滑的相对强弱指数，数据不足时返回 50
func RSI(prices []decimal.Decimal, period int) decimal.Decimal {
	neutral := decimal.NewFromInt(50)
	if period <= 0 || len(prices) < period+1 {
		return neutral
	}

	p := numeric.FromInt(period)
	prev := numeric.FromInt(period - 1)
	avgGain, avgLoss := decimal.Zero, decimal.Zero
	for i := 1; i <= period; i++ {
		gain, loss := split(prices[i].Sub(prices[i-1]))
		avgGain = avgGain.Add(gain)
		avgLoss = avgLoss.Add(loss)
	}
	avgGain = numeric.Quo(avgGain, p)
	avgLoss = numeric.Quo(avgLoss, p)

	for i := period + 1; i < len(prices); i++ {
		gain, loss := split(prices[i].Sub(prices[i-1]))
		avgGain = numeric.Quo(avgGain.Mul(prev).Add(gain), p)
		avgLoss = numeric.Quo(avgLoss.Mul(prev).Add(loss), p)
	}

	if avgLoss.IsZero() {
		if avgGain.IsZero() {
			return neutral
		}
		return numeric.Hundred
	}
	rs := numeric.Quo(avgGain, avgLoss)
	return numeric.Hundred.Sub(numeric.Quo(numeric.Hundred, numeric.One.Add(rs)))
}

func split(change decimal.Decimal) (gain, loss decimal.Decimal) {
	if change.IsPositive() {
		return change, decimal.Zero
	}
	return decimal.Zero, change.Abs()
}

// MACD 返回最新的 MACD、信号线与柱状值
func MACD(prices []decimal.Decimal, fast, slow, signal int) (macd, sig, hist decimal.Decimal) {
	if len(prices) == 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}
	fastEMA := series.EMA(prices, fast)
	slowEMA := series.EMA(prices, slow)
	line := make([]decimal.Decimal, len(prices))
	for i := range prices {
		line[i] = fastEMA[i].Sub(slowEMA[i])
	}
	signalLine := series.EMA(line, signal)

	macd = line[len(line)-1]
	sig = signalLine[len(signalLine)-1]
	return macd, sig, macd.Sub(sig)
}

// Bollinger 布林带：中轨为 period 期均值，上下轨为中轨 ± k 倍标准差
func Bollinger(prices []decimal.Decimal, period int, k decimal.Decimal) (upper, middle, lower decimal.Decimal) {
	window := series.Last(prices, period)
	middle = series.Mean(window)
	band := series.StdDev(window).Mul(k)
	return middle.Add(band), middle, middle.Sub(band)
}

// ATR Wilder 平滑的平均真实波幅，高低价以 close*(1 ± dailyVol/2) 近似
func ATR(prices []decimal.Decimal, dailyVol decimal.Decimal, period int) decimal.Decimal {
	if len(prices) < 2 || period <= 0 {
		return decimal.Zero
	}
	half := numeric.Quo(dailyVol, numeric.Two)

	ranges := make([]decimal.Decimal, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		closePrice := prices[i]
		high := closePrice.Mul(numeric.One.Add(half))
		low := closePrice.Mul(numeric.One.Sub(half))
		prevClose := prices[i-1]
		tr := decimal.Max(high.Sub(low), high.Sub(prevClose).Abs(), low.Sub(prevClose).Abs())
		ranges = append(ranges, tr)
	}

	if len(ranges) <= period {
		return series.Mean(ranges)
	}
	p := numeric.FromInt(period)
	prev := numeric.FromInt(period - 1)
	atr := series.Mean(ranges[:period])
	for _, tr := range ranges[period:] {
		atr = numeric.Quo(atr.Mul(prev).Add(tr), p)
	}
	return atr
}

// ClassifyRegime 按日波动率分档
func ClassifyRegime(dailyVol decimal.Decimal, c RegimeCutoffs) model.VolatilityRegime {
	switch {
	case dailyVol.LessThan(c.Low):
		return model.RegimeLow
	case dailyVol.LessThan(c.Medium):
		return model.RegimeMedium
	case dailyVol.LessThan(c.High):
		return model.RegimeHigh
	default:
		return model.RegimeExtreme
	}
}
