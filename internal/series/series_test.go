package series

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decs(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestStatistics_Empty(t *testing.T) {
	assert.True(t, Mean(nil).IsZero())
	assert.True(t, Variance(nil).IsZero())
	assert.True(t, StdDev(nil).IsZero())
	assert.True(t, Covariance(nil, nil).IsZero())
	assert.True(t, Slope(nil).IsZero())
	assert.True(t, Quantile(nil, decimal.NewFromFloat(0.05)).IsZero())
	assert.True(t, MaxDrawdown(nil).IsZero())
	assert.True(t, EMAHalfLife(nil, 100, 10).IsZero())
	assert.True(t, ZScore(decimal.NewFromInt(5), nil).IsZero())
}

func TestMeanVariance(t *testing.T) {
	vals := decs(2, 4, 4, 4, 5, 5, 7, 9)
	assert.InDelta(t, 5.0, Mean(vals).InexactFloat64(), 1e-12)
	// 无偏方差 = 32/7
	assert.InDelta(t, 32.0/7.0, Variance(vals).InexactFloat64(), 1e-12)
	assert.InDelta(t, 2.138089935299395, StdDev(vals).InexactFloat64(), 1e-12)
}

func TestCovarianceAndCorrelation(t *testing.T) {
	x := decs(1, 2, 3, 4)
	y := decs(2, 4, 6, 8)
	assert.InDelta(t, 10.0/3.0, Covariance(x, y).InexactFloat64(), 1e-12)
	assert.InDelta(t, 1.0, Correlation(x, y).InexactFloat64(), 1e-12)
	assert.True(t, Covariance(x, decs(1, 2)).IsZero(), "长度不同时返回0")
	assert.True(t, Correlation(x, decs(1, 1, 1, 1)).IsZero())
}

func TestSlope(t *testing.T) {
	assert.InDelta(t, 2.0, Slope(decs(1, 3, 5, 7)).InexactFloat64(), 1e-12)
	assert.InDelta(t, -0.5, Slope(decs(10, 9.5, 9)).InexactFloat64(), 1e-12)
	assert.True(t, Slope(decs(3)).IsZero())
}

func TestEMA(t *testing.T) {
	out := EMA(decs(1, 2, 3), 3)
	require.Len(t, out, 3)
	// alpha = 0.5
	assert.InDelta(t, 1.0, out[0].InexactFloat64(), 1e-12)
	assert.InDelta(t, 1.5, out[1].InexactFloat64(), 1e-12)
	assert.InDelta(t, 2.25, out[2].InexactFloat64(), 1e-12)
}

func TestEMAHalfLife(t *testing.T) {
	points := []Point{
		{Timestamp: 0, Value: decimal.NewFromInt(10)},
		{Timestamp: 100, Value: decimal.NewFromInt(20)},
	}
	// 第一个点权重 0.5，第二个点权重 1
	got := EMAHalfLife(points, 100, 100)
	assert.InDelta(t, (10*0.5+20)/1.5, got.InexactFloat64(), 1e-9)
}

func TestZScore(t *testing.T) {
	window := decs(1, 2, 3, 4, 5)
	z := ZScore(decimal.NewFromInt(3), window)
	assert.True(t, z.IsZero())
	assert.True(t, ZScore(decimal.NewFromInt(10), decs(5, 5, 5)).IsZero(), "标准差为0时z值为0")
}

func TestQuantile(t *testing.T) {
	vals := decs(5, 1, 4, 2, 3)
	assert.InDelta(t, 1.0, Quantile(vals, decimal.Zero).InexactFloat64(), 1e-12)
	assert.InDelta(t, 3.0, Quantile(vals, decimal.NewFromFloat(0.5)).InexactFloat64(), 1e-12)
	assert.InDelta(t, 1.2, Quantile(vals, decimal.NewFromFloat(0.05)).InexactFloat64(), 1e-12)
	assert.InDelta(t, 5.0, Quantile(vals, decimal.NewFromInt(1)).InexactFloat64(), 1e-12)
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name string
		vals []decimal.Decimal
		want float64
	}{
		{name: "单调不减", vals: decs(1, 1, 2, 3, 3), want: 0},
		{name: "严格递减", vals: decs(100, 80, 50, 25), want: -0.75},
		{name: "先涨后跌再反弹", vals: decs(100, 150, 75, 120), want: -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MaxDrawdown(tt.vals).InexactFloat64(), 1e-12)
		})
	}
}

func TestNormalize(t *testing.T) {
	points := []Point{
		{Timestamp: 3, Value: decimal.NewFromInt(30)},
		{Timestamp: 1, Value: decimal.NewFromInt(10)},
		{Timestamp: 2, Value: decimal.NewFromInt(20)},
		{Timestamp: 2, Value: decimal.NewFromInt(21)},
		{Timestamp: 4, Value: decimal.NewFromInt(40)},
	}

	out := Normalize(points, 3)
	require.Len(t, out, 3)
	assert.Equal(t, int64(2), out[0].Timestamp)
	assert.True(t, out[0].Value.Equal(decimal.NewFromInt(21)), "重复时间戳保留最后的值")
	assert.Equal(t, int64(4), out[2].Timestamp)
	assert.True(t, StrictlyIncreasing(out))

	again := Normalize(out, 3)
	assert.Equal(t, out, again)
}

func TestWindow(t *testing.T) {
	w := NewWindow(3)
	for i := 1; i <= 5; i++ {
		w.Push(decimal.NewFromInt(int64(i)))
		assert.LessOrEqual(t, w.Len(), 3)
	}
	assert.InDelta(t, 4.0, w.Mean().InexactFloat64(), 1e-12)
	assert.InDelta(t, 1.0, w.StdDev().InexactFloat64(), 1e-12)
	assert.InDelta(t, 2.0, w.ZScore(decimal.NewFromInt(6)).InexactFloat64(), 1e-12)

	evicted, ok := w.Push(decimal.NewFromInt(6))
	assert.True(t, ok)
	assert.True(t, evicted.Equal(decimal.NewFromInt(3)))
}
