package orchestrator

import (
	"context"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/life2you_mini/poolcore/internal/ingest"
	"github.com/life2you_mini/poolcore/internal/model"
)

// AnalyzeBatch 并发分析一批观测，结果与输入一一对应
// 同一池子的观测按时间戳串行处理，不同池子之间并行；
// 批内重复的 (池子, 时间戳) 视为无效观测
func (o *Orchestrator) AnalyzeBatch(ctx context.Context, observations []model.Observation, strategies []model.Strategy) ([]*model.Result, error) {
	results := make([]*model.Result, len(observations))

	dups := ingest.DuplicateTicks(observations)
	groups := make(map[string][]int)
	var order []string
	for i, obs := range observations {
		if err, ok := dups[i]; ok {
			res := o.newResult(obs)
			o.sink.IncObservations()
			o.reject(res, err)
			results[i] = res
			continue
		}
		if _, ok := groups[obs.PoolID]; !ok {
			order = append(order, obs.PoolID)
		}
		groups[obs.PoolID] = append(groups[obs.PoolID], i)
	}

	workers := o.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, poolID := range order {
		idx := groups[poolID]
		sort.SliceStable(idx, func(a, b int) bool {
			return observations[idx[a]].Timestamp < observations[idx[b]].Timestamp
		})
		g.Go(func() error {
			for _, i := range idx {
				res, err := o.Analyze(gctx, observations[i], strategies)
				if err != nil {
					return err
				}
				results[i] = res
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Warn("批量分析被取消", zap.Int("observations", len(observations)), zap.Error(err))
		return nil, err
	}
	o.logger.Info("批量分析完成",
		zap.Int("observations", len(observations)),
		zap.Int("pools", len(order)),
		zap.Int("duplicates", len(dups)))
	return results, nil
}
