package series

import (
	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/numeric"
)

// Window 固定容量的滚动窗口，每次写入后重新计算均值与标准差
type Window struct {
	size   int
	values []decimal.Decimal
	mean   decimal.Decimal
	std    decimal.Decimal
}

// NewWindow 创建容量为 size 的窗口
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{size: size, values: make([]decimal.Decimal, 0, size)}
}

// Push 写入新值，超过容量时淘汰最旧的值，返回被淘汰的值
func (w *Window) Push(v decimal.Decimal) (evicted decimal.Decimal, ok bool) {
	w.values = append(w.values, v)
	if len(w.values) > w.size {
		evicted, ok = w.values[0], true
		w.values = append(w.values[:0:0], w.values[1:]...)
	}
	w.recompute()
	return evicted, ok
}

func (w *Window) recompute() {
	w.mean = Mean(w.values)
	w.std = StdDev(w.values)
}

// Values 窗口内的值副本
func (w *Window) Values() []decimal.Decimal {
	out := make([]decimal.Decimal, len(w.values))
	copy(out, w.values)
	return out
}

// Reset 用给定值替换窗口内容
func (w *Window) Reset(values []decimal.Decimal) {
	w.values = append(make([]decimal.Decimal, 0, w.size), Last(values, w.size)...)
	w.recompute()
}

func (w *Window) Len() int { return len(w.values) }

func (w *Window) Size() int { return w.size }

func (w *Window) Mean() decimal.Decimal { return w.mean }

func (w *Window) StdDev() decimal.Decimal { return w.std }

// ZScore 相对当前窗口统计量的 z 值
func (w *Window) ZScore(v decimal.Decimal) decimal.Decimal {
	if w.std.IsZero() {
		return decimal.Zero
	}
	return v.Sub(w.mean).DivRound(w.std, numeric.Precision)
}
