package optimizer

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/numeric"
)

// OptimalGasWindow 返回历史平均 gas 成本最低的 UTC 小时，排除高峰时段
// 没有可用数据时返回 -1，成本相同取较早的小时
func OptimalGasWindow(gas model.GasMetrics) int {
	peak := make(map[int]bool, len(gas.PeakHours))
	for _, h := range gas.PeakHours {
		peak[h] = true
	}

	var sums [24]decimal.Decimal
	var counts [24]int
	for _, p := range gas.History {
		hour := time.Unix(p.Timestamp, 0).UTC().Hour()
		sums[hour] = sums[hour].Add(p.Value)
		counts[hour]++
	}

	best := -1
	var bestAvg decimal.Decimal
	for hour := 0; hour < 24; hour++ {
		if counts[hour] == 0 || peak[hour] {
			continue
		}
		avg := numeric.Quo(sums[hour], numeric.FromInt(counts[hour]))
		if best == -1 || avg.LessThan(bestAvg) {
			best, bestAvg = hour, avg
		}
	}
	return best
}

// OptimalGasHours 按链计算最佳 gas 时段，无数据的链不出现在结果中
func OptimalGasHours(gas map[string]model.GasMetrics) map[string]int {
	out := make(map[string]int, len(gas))
	for chain, g := range gas {
		if hour := OptimalGasWindow(g); hour >= 0 {
			out[chain] = hour
		}
	}
	return out
}
