package indicators

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life2you_mini/poolcore/internal/errs"
	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/series"
)

func decs(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestPriceIndex(t *testing.T) {
	prices, err := PriceIndex(decs(0.1, -0.5))
	require.NoError(t, err)
	require.Len(t, prices, 3)
	assert.InDelta(t, 1.0, prices[0].InexactFloat64(), 1e-12)
	assert.InDelta(t, 1.1, prices[1].InexactFloat64(), 1e-12)
	assert.InDelta(t, 0.55, prices[2].InexactFloat64(), 1e-12)

	prices, err = PriceIndex(nil)
	require.NoError(t, err)
	assert.Nil(t, prices)
}

func explosiveReturns(n int) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = decimal.NewFromInt(50)
	}
	return out
}

func TestPriceIndex_Overflow(t *testing.T) {
	// 51^200 远超数值上限
	prices, err := PriceIndex(explosiveReturns(200))
	require.Error(t, err)
	assert.Equal(t, errs.NumericOverflow, errs.KindOf(err))
	assert.Nil(t, prices)

	// 51^20 仍在范围内
	prices, err = PriceIndex(explosiveReturns(20))
	require.NoError(t, err)
	assert.Len(t, prices, 21)
}

func TestRSI(t *testing.T) {
	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = float64(i + 1)
	}

	tests := []struct {
		name   string
		prices []decimal.Decimal
		want   float64
	}{
		{name: "数据不足", prices: decs(1, 2, 3), want: 50},
		{name: "只涨不跌", prices: decs(rising...), want: 100},
		{name: "价格不变", prices: decs(1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1), want: 50},
		// 14 次变化: 7 次 +1，7 次 -1，平均涨跌相等
		{name: "涨跌相当", prices: decs(1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1), want: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RSI(tt.prices, 14).InexactFloat64(), 1e-9)
		})
	}
}

func TestRSI_Range(t *testing.T) {
	prices := decs(10, 11, 10.5, 12, 11, 13, 12.5, 12, 14, 13, 15, 14.5, 16, 15, 17, 16, 15)
	rsi := RSI(prices, 14).InexactFloat64()
	assert.GreaterOrEqual(t, rsi, 0.0)
	assert.LessOrEqual(t, rsi, 100.0)
}

func TestMACD(t *testing.T) {
	flat := decs(1, 1, 1, 1, 1)
	m, s, h := MACD(flat, 12, 26, 9)
	assert.True(t, m.IsZero())
	assert.True(t, s.IsZero())
	assert.True(t, h.IsZero())

	rising := make([]float64, 40)
	for i := range rising {
		rising[i] = float64(i + 1)
	}
	m, s, h = MACD(decs(rising...), 12, 26, 9)
	assert.True(t, m.IsPositive(), "上涨趋势中快线高于慢线")
	assert.True(t, h.Equal(m.Sub(s)))
}

func TestBollinger(t *testing.T) {
	upper, middle, lower := Bollinger(decs(1, 2, 3, 4, 5), 20, decimal.NewFromInt(2))
	assert.InDelta(t, 3.0, middle.InexactFloat64(), 1e-12)
	std := 1.5811388300841898
	assert.InDelta(t, 3+2*std, upper.InexactFloat64(), 1e-9)
	assert.InDelta(t, 3-2*std, lower.InexactFloat64(), 1e-9)
}

func TestATR(t *testing.T) {
	// 价格不变时真实波幅 = close * dailyVol
	prices := decs(1, 1, 1, 1)
	got := ATR(prices, decimal.RequireFromString("0.02"), 14)
	assert.InDelta(t, 0.02, got.InexactFloat64(), 1e-12)
	assert.True(t, ATR(decs(1), decimal.RequireFromString("0.02"), 14).IsZero())
}

func TestClassifyRegime(t *testing.T) {
	cfg := DefaultConfig().Regime
	tests := []struct {
		vol  string
		want model.VolatilityRegime
	}{
		{"0.005", model.RegimeLow},
		{"0.01", model.RegimeMedium},
		{"0.05", model.RegimeHigh},
		{"0.06", model.RegimeExtreme},
		{"0.2", model.RegimeExtreme},
	}
	for _, tt := range tests {
		t.Run(tt.vol, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyRegime(decimal.RequireFromString(tt.vol), cfg))
		})
	}
}

func TestCompute(t *testing.T) {
	pool := &model.NormalizedPool{Observation: model.Observation{
		Volatility: model.VolatilityInputs{Daily: decimal.RequireFromString("0.01")},
		PerformanceHistory: model.PerformanceHistory{
			DailyReturns: []series.Point{
				{Timestamp: 1, Value: decimal.Zero},
				{Timestamp: 2, Value: decimal.Zero},
				{Timestamp: 3, Value: decimal.Zero},
			},
		},
	}}
	ti, err := Compute(pool, DefaultConfig())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, ti.RSI.InexactFloat64(), 1e-12)
	assert.True(t, ti.MACD.IsZero())
	assert.InDelta(t, 1.0, ti.BollingerMiddle.InexactFloat64(), 1e-12)
	assert.Equal(t, model.RegimeMedium, ti.Regime)

	t.Run("收益指数溢出", func(t *testing.T) {
		overflow := &model.NormalizedPool{Observation: pool.Observation}
		points := make([]series.Point, 200)
		for i := range points {
			points[i] = series.Point{Timestamp: int64(i + 1), Value: decimal.NewFromInt(50)}
		}
		overflow.PerformanceHistory.DailyReturns = points

		ti, err := Compute(overflow, DefaultConfig())
		require.Error(t, err)
		assert.Equal(t, errs.NumericOverflow, errs.KindOf(err))
		assert.InDelta(t, 50.0, ti.RSI.InexactFloat64(), 1e-12)
		assert.True(t, ti.MACD.IsZero())
		assert.Equal(t, model.RegimeMedium, ti.Regime)
	})
}

func TestTrendHelpers(t *testing.T) {
	returns := decs(0.01, -0.02, 0.03, 0.0)
	assert.InDelta(t, 0.5, TrendStrength(returns).InexactFloat64(), 1e-12)
	assert.True(t, TrendStrength(nil).IsZero())
	assert.True(t, MomentumScore(decs(0.01, 0.01)).IsZero())
	assert.True(t, MomentumScore(decs(0.01, 0.03)).IsPositive())

	support, resistance := SupportResistance(decs(1, 3, 2, 4, 1, 5, 6), 3)
	assert.Equal(t, []float64{1, 2}, floats(support))
	assert.Equal(t, []float64{4, 3}, floats(resistance))
}

func floats(ds []decimal.Decimal) []float64 {
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i] = d.InexactFloat64()
	}
	return out
}
