package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life2you_mini/poolcore/internal/alert"
	"github.com/life2you_mini/poolcore/internal/model"
)

func observationAt(poolID string, ts int64, tvl int64) model.Observation {
	obs := stablePool()
	obs.ObservationID = fmt.Sprintf("%s@%d", poolID, ts)
	obs.PoolID = poolID
	obs.Timestamp = ts
	obs.TVL = decimal.NewFromInt(tvl)
	return obs
}

func TestAnalyzeBatch_OrderAndDuplicates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 2
	o, engine := newTestOrchestrator(t, cfg)

	batch := []model.Observation{
		observationAt("pool-a", 300, 3000),
		observationAt("pool-b", 100, 10),
		observationAt("pool-a", 100, 1000),
		observationAt("pool-a", 200, 2000),
		observationAt("pool-a", 100, 9999),
		observationAt("pool-b", 200, 20),
	}

	results, err := o.AnalyzeBatch(context.Background(), batch, nil)
	require.NoError(t, err)
	require.Len(t, results, len(batch))

	for i, res := range results {
		require.NotNil(t, res, "下标 %d", i)
		assert.Equal(t, batch[i].PoolID, res.PoolID)
		assert.Equal(t, batch[i].Timestamp, res.Timestamp)
	}

	assert.True(t, results[4].HasFlag(model.FlagInvalidObservation), "批内重复的时间戳")
	assert.False(t, results[2].HasFlag(model.FlagInvalidObservation), "第一次出现的保留")

	// 同一池子按时间戳顺序写入检测器
	window := engine.WindowValues("pool-a", alert.MetricTVL)
	require.Len(t, window, 3)
	assert.Equal(t, []string{"1000", "2000", "3000"}, []string{window[0].String(), window[1].String(), window[2].String()})
	assert.Len(t, engine.WindowValues("pool-b", alert.MetricTVL), 2)
}

func TestAnalyzeBatch_Cancelled(t *testing.T) {
	o, engine := newTestOrchestrator(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := o.AnalyzeBatch(ctx, []model.Observation{
		observationAt("pool-a", 100, 1000),
		observationAt("pool-b", 100, 1000),
	}, nil)
	assert.Nil(t, results)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, engine.Keys())
}

func TestAnalyzeBatch_Deterministic(t *testing.T) {
	run := func() []*model.Result {
		o, _ := newTestOrchestrator(t, DefaultConfig())
		batch := make([]model.Observation, 0, 12)
		for i := int64(0); i < 4; i++ {
			for _, pool := range []string{"p1", "p2", "p3"} {
				batch = append(batch, observationAt(pool, 100+i, 1000+i))
			}
		}
		results, err := o.AnalyzeBatch(context.Background(), batch, nil)
		require.NoError(t, err)
		return results
	}

	first, second := run(), run()
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].FeatureVector.Values, second[i].FeatureVector.Values)
		assert.True(t, first[i].PositionSize.Equal(second[i].PositionSize))
	}
}
