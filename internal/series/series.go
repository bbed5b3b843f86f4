package series

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/numeric"
)

// Point 时间序列上的一个点，时间戳单位为秒
type Point struct {
	Timestamp int64           `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
}

// Values 提取数值
func Values(points []Point) []decimal.Decimal {
	out := make([]decimal.Decimal, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// Last 取最后 n 个值，不足 n 个时返回全部
func Last(values []decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

// LastPoints 取最后 n 个点
func LastPoints(points []Point, n int) []Point {
	if n <= 0 {
		return nil
	}
	if len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}

// Sum 求和
func Sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Mean 算术平均
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return numeric.Quo(Sum(values), numeric.FromInt(len(values)))
}

// Variance 无偏方差 (n-1)，少于两个点时为 0
func Variance(values []decimal.Decimal) decimal.Decimal {
	n := len(values)
	if n < 2 {
		return decimal.Zero
	}
	mean := Mean(values)
	acc := decimal.Zero
	for _, v := range values {
		d := v.Sub(mean)
		acc = acc.Add(d.Mul(d))
	}
	return numeric.Quo(acc, numeric.FromInt(n-1))
}

// StdDev 标准差
func StdDev(values []decimal.Decimal) decimal.Decimal {
	return numeric.MustSqrt(Variance(values))
}

// Covariance 无偏协方差，长度不等或少于两个点时为 0
func Covariance(x, y []decimal.Decimal) decimal.Decimal {
	n := len(x)
	if n != len(y) || n < 2 {
		return decimal.Zero
	}
	mx, my := Mean(x), Mean(y)
	acc := decimal.Zero
	for i := range x {
		acc = acc.Add(x[i].Sub(mx).Mul(y[i].Sub(my)))
	}
	return numeric.Quo(acc, numeric.FromInt(n-1))
}

// Correlation Pearson 相关系数，任一序列标准差为 0 时返回 0
func Correlation(x, y []decimal.Decimal) decimal.Decimal {
	sx, sy := StdDev(x), StdDev(y)
	if sx.IsZero() || sy.IsZero() {
		return decimal.Zero
	}
	c := numeric.Quo(Covariance(x, y), sx.Mul(sy))
	return numeric.Clamp(c, numeric.One.Neg(), numeric.One)
}

// SMA 最后 period 个值的简单均值
func SMA(values []decimal.Decimal, period int) decimal.Decimal {
	return Mean(Last(values, period))
}

// EMA 周期型指数均线，alpha = 2/(period+1)，以首值为种子，返回完整序列
func EMA(values []decimal.Decimal, period int) []decimal.Decimal {
	if len(values) == 0 || period <= 0 {
		return nil
	}
	alpha := numeric.Quo(numeric.Two, numeric.FromInt(period+1))
	out := make([]decimal.Decimal, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i].Sub(out[i-1]).Mul(alpha).Add(out[i-1]).Round(numeric.Precision)
	}
	return out
}

// EMAHalfLife 半衰期加权均值，权重 w = exp(-ln2*(now-t)/halfLife)
func EMAHalfLife(points []Point, now int64, halfLife int64) decimal.Decimal {
	if len(points) == 0 || halfLife <= 0 {
		return decimal.Zero
	}
	h := decimal.NewFromInt(halfLife)
	num, den := decimal.Zero, decimal.Zero
	for _, p := range points {
		age := now - p.Timestamp
		if age < 0 {
			age = 0
		}
		exponent := numeric.Ln2.Mul(decimal.NewFromInt(age)).DivRound(h, numeric.Precision).Neg()
		w, err := numeric.Exp(exponent)
		if err != nil {
			continue
		}
		num = num.Add(w.Mul(p.Value))
		den = den.Add(w)
	}
	return numeric.Quo(num, den)
}

// Slope 以下标为自变量的最小二乘斜率
func Slope(values []decimal.Decimal) decimal.Decimal {
	n := len(values)
	if n < 2 {
		return decimal.Zero
	}
	sumX, sumY, sumXY, sumXX := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for i, v := range values {
		x := numeric.FromInt(i)
		sumX = sumX.Add(x)
		sumY = sumY.Add(v)
		sumXY = sumXY.Add(x.Mul(v))
		sumXX = sumXX.Add(x.Mul(x))
	}
	nd := numeric.FromInt(n)
	num := nd.Mul(sumXY).Sub(sumX.Mul(sumY))
	den := nd.Mul(sumXX).Sub(sumX.Mul(sumX))
	return numeric.Quo(num, den)
}

// ZScore (value-mean)/std，std 为 0 时返回 0
func ZScore(value decimal.Decimal, window []decimal.Decimal) decimal.Decimal {
	std := StdDev(window)
	if std.IsZero() {
		return decimal.Zero
	}
	return numeric.Quo(value.Sub(Mean(window)), std)
}

// Quantile 线性插值分位数，q 取 [0,1]
func Quantile(values []decimal.Decimal, q decimal.Decimal) decimal.Decimal {
	n := len(values)
	if n == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, n)
	copy(sorted, values)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	if n == 1 {
		return sorted[0]
	}
	q = numeric.Clamp(q, decimal.Zero, numeric.One)
	pos := q.Mul(numeric.FromInt(n - 1))
	lo := int(pos.IntPart())
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos.Sub(numeric.FromInt(lo))
	return sorted[lo].Add(sorted[lo+1].Sub(sorted[lo]).Mul(frac))
}

// MaxDrawdown 最大回撤，结果为负数或零
func MaxDrawdown(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	peak := values[0]
	worst := decimal.Zero
	for _, v := range values {
		if v.GreaterThan(peak) {
			peak = v
		}
		if !peak.IsPositive() {
			continue
		}
		dd := numeric.Quo(peak.Sub(v), peak)
		if dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst.Neg()
}

// Normalize 按时间升序排序，同一时间戳保留最后出现的值，并只保留最后 max 个点
func Normalize(points []Point, max int) []Point {
	if len(points) == 0 {
		return []Point{}
	}
	latest := make(map[int64]int, len(points))
	for i, p := range points {
		latest[p.Timestamp] = i
	}
	out := make([]Point, 0, len(latest))
	for i, p := range points {
		if latest[p.Timestamp] == i {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

// StrictlyIncreasing 时间戳是否严格递增
func StrictlyIncreasing(points []Point) bool {
	for i := 1; i < len(points); i++ {
		if points[i].Timestamp <= points[i-1].Timestamp {
			return false
		}
	}
	return true
}
