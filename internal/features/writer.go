package features

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/numeric"
)

// vectorWriter 按顺序同时记录特征名与特征值
type vectorWriter struct {
	names  []string
	values []float64
}

func newVectorWriter(capacity int) *vectorWriter {
	return &vectorWriter{
		names:  make([]string, 0, capacity),
		values: make([]float64, 0, capacity),
	}
}

func (w *vectorWriter) add(name string, v float64) {
	w.names = append(w.names, name)
	w.values = append(w.values, numeric.Finite(v))
}

func (w *vectorWriter) addDec(name string, d decimal.Decimal) {
	w.add(name, numeric.ToFloat(d))
}

func (w *vectorWriter) addBool(name string, b bool) {
	if b {
		w.add(name, 1)
		return
	}
	w.add(name, 0)
}

// oneHot 按词表编码，未知值置位 unknown 槽位
func (w *vectorWriter) oneHot(prefix string, vocab []string, value string) {
	matched := false
	for _, item := range vocab {
		hit := item == value
		matched = matched || hit
		w.addBool(prefix+"."+item, hit)
	}
	w.addBool(prefix+".unknown", !matched)
}

// padded 写入固定长度的向量，不足补 0，超出截断
func (w *vectorWriter) padded(prefix string, vals []float64, size int) {
	for i := 0; i < size; i++ {
		v := 0.0
		if i < len(vals) {
			v = vals[i]
		}
		w.add(prefix+"."+strconv.Itoa(i), v)
	}
}
