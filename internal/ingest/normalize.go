package ingest

import (
	"sort"

	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/series"
)

// Normalize 规整观测：各序列按时间升序、同时间戳保留最新值、截断到最大长度。
// 对已经规整过的观测再次调用结果不变。
func Normalize(obs model.Observation, opts Options) *model.NormalizedPool {
	max := opts.MaxHistoryLength
	if max <= 0 {
		max = DefaultMaxHistoryLength
	}

	out := obs
	out.Tokens = append([]model.TokenShare(nil), obs.Tokens...)
	if out.Tokens == nil {
		out.Tokens = []model.TokenShare{}
	}

	out.PerformanceHistory = model.PerformanceHistory{
		DailyReturns: series.Normalize(obs.PerformanceHistory.DailyReturns, max),
		Volume:       series.Normalize(obs.PerformanceHistory.Volume, max),
		TVL:          series.Normalize(obs.PerformanceHistory.TVL, max),
		IL:           series.Normalize(obs.PerformanceHistory.IL, max),
	}
	out.APY.History = series.Normalize(obs.APY.History, max)
	out.ILRisk.History = series.Normalize(obs.ILRisk.History, max)

	events := append([]model.SecurityEvent(nil), obs.Security.Events...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })
	if events == nil {
		events = []model.SecurityEvent{}
	}
	out.Security.Events = events

	if obs.Gas != nil {
		out.Gas = make(map[string]model.GasMetrics, len(obs.Gas))
		for chain, gas := range obs.Gas {
			gas.History = series.Normalize(gas.History, max)
			gas.PeakHours = normalizeHours(gas.PeakHours)
			out.Gas[chain] = gas
		}
	}

	if obs.Market != nil {
		market := *obs.Market
		market.BenchmarkReturns = series.Normalize(obs.Market.BenchmarkReturns, max)
		out.Market = &market
	}

	out.CurrentWeights = copyWeights(obs.CurrentWeights)
	out.TargetWeights = copyWeights(obs.TargetWeights)

	return &model.NormalizedPool{Observation: out}
}

func normalizeHours(hours []int) []int {
	seen := make(map[int]bool, len(hours))
	out := make([]int, 0, len(hours))
	for _, h := range hours {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	sort.Ints(out)
	return out
}

func copyWeights(w map[string]int64) map[string]int64 {
	if w == nil {
		return nil
	}
	out := make(map[string]int64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
