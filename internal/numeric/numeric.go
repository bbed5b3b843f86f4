package numeric

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/errs"
)

// Precision 除法与开方保留的小数位数
const Precision int32 = 28

var (
	Zero    = decimal.Zero
	One     = decimal.NewFromInt(1)
	Two     = decimal.NewFromInt(2)
	Hundred = decimal.NewFromInt(100)
	// BpsScale 基点总量
	BpsScale = decimal.NewFromInt(10000)
	// Ln2 自然对数 ln(2)
	Ln2 = decimal.RequireFromString("0.6931471805599453094172321215")

	// maxMagnitude 超过此量级视为溢出
	maxMagnitude = decimal.New(1, 40)
	sqrtEpsilon  = decimal.New(1, -18)
	expFloor     = decimal.NewFromInt(-60)
	expCeil      = decimal.NewFromInt(90)
)

// ErrDivisionByZero 除数为零
var ErrDivisionByZero = errs.New(errs.NumericOverflow, "numeric.div", "除数为零")

func checked(op string, d decimal.Decimal) (decimal.Decimal, error) {
	if d.Abs().GreaterThan(maxMagnitude) {
		return decimal.Zero, errs.New(errs.NumericOverflow, op, "结果超出范围: %s", d.String())
	}
	return d, nil
}

// Add 带溢出检查的加法
func Add(a, b decimal.Decimal) (decimal.Decimal, error) {
	return checked("numeric.add", a.Add(b))
}

// Sub 带溢出检查的减法
func Sub(a, b decimal.Decimal) (decimal.Decimal, error) {
	return checked("numeric.sub", a.Sub(b))
}

// Mul 带溢出检查的乘法
func Mul(a, b decimal.Decimal) (decimal.Decimal, error) {
	return checked("numeric.mul", a.Mul(b))
}

// Div 带溢出检查的除法，除数为零时返回 ErrDivisionByZero
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return checked("numeric.div", a.DivRound(b, Precision))
}

// Quo 不会失败的除法，除数为零时返回 0
func Quo(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.DivRound(b, Precision)
}

// Sqrt 牛顿迭代求平方根，残差不超过 1e-18
func Sqrt(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Zero, errs.New(errs.NumericOverflow, "numeric.sqrt", "负数无法开方: %s", d.String())
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}
	if d.GreaterThan(maxMagnitude) {
		return decimal.Zero, errs.New(errs.NumericOverflow, "numeric.sqrt", "结果超出范围: %s", d.String())
	}

	// 用 float 结果作为初值，通常两三轮即可收敛
	x := FromFloat(math.Sqrt(d.InexactFloat64()))
	if !x.IsPositive() {
		x = One
	}
	for i := 0; i < 100; i++ {
		next := x.Add(d.DivRound(x, Precision)).DivRound(Two, Precision)
		if next.Equal(x) {
			break
		}
		x = next
		if x.Mul(x).Sub(d).Abs().LessThanOrEqual(sqrtEpsilon) {
			break
		}
	}
	return x, nil
}

// MustSqrt 负数或溢出时返回 0
func MustSqrt(d decimal.Decimal) decimal.Decimal {
	r, err := Sqrt(d)
	if err != nil {
		return decimal.Zero
	}
	return r
}

// Exp 计算 e^d，过小时下溢为 0
func Exp(d decimal.Decimal) (decimal.Decimal, error) {
	if d.LessThan(expFloor) {
		return decimal.Zero, nil
	}
	if d.GreaterThan(expCeil) {
		return decimal.Zero, errs.New(errs.NumericOverflow, "numeric.exp", "指数超出范围: %s", d.String())
	}
	r, err := d.ExpTaylor(Precision)
	if err != nil {
		// 级数失败时退回 float 计算
		return FromFloat(math.Exp(d.InexactFloat64())), nil
	}
	return r, nil
}

// ToFloat 转为 float64，NaN 与 ±Inf 映射为 0
func ToFloat(d decimal.Decimal) float64 {
	return Finite(d.InexactFloat64())
}

// Finite 把 NaN 与 ±Inf 映射为 0
func Finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// FromFloat 从 float64 构造，NaN 与 ±Inf 映射为 0
func FromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// Clamp 限制在 [lo, hi] 区间
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// ClampFloat 限制在 [lo, hi] 区间，非有限值返回 0
func ClampFloat(f, lo, hi float64) float64 {
	f = Finite(f)
	return math.Max(lo, math.Min(hi, f))
}

// FromInt 整数转 Decimal
func FromInt(i int) decimal.Decimal {
	return decimal.NewFromInt(int64(i))
}
