package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/poolcore/internal/alert"
	"github.com/life2you_mini/poolcore/internal/errs"
	"github.com/life2you_mini/poolcore/internal/features"
	"github.com/life2you_mini/poolcore/internal/mocks"
	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/optimizer"
	"github.com/life2you_mini/poolcore/internal/series"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pt(ts int64, v string) series.Point {
	return series.Point{Timestamp: ts, Value: d(v)}
}

func newTestOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *alert.Engine) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry, err := features.NewRegistry(nil, false)
	require.NoError(t, err)
	engine, err := alert.NewEngine(alert.DefaultConfig(), logger, nil)
	require.NoError(t, err)
	return NewOrchestrator(cfg, features.NewBuilder(registry, features.DefaultOptions()), engine, nil, logger), engine
}

// stablePool 平稳的稳定币池，收益与 TVL 历史均为常数
func stablePool() model.Observation {
	return model.Observation{
		ObservationID: "obs-1",
		PoolID:        "ref-usdc-usdt",
		PoolName:      "USDC/USDT",
		Platform:      "ref-finance",
		Chain:         "near",
		PoolKind:      model.PoolKindStable,
		Timestamp:     1_700_000_000,
		CreatedAt:     1_690_000_000,
		TVL:           decimal.NewFromInt(1_000_000),
		Volume24h:     decimal.NewFromInt(50_000),
		Liquidity:     decimal.NewFromInt(900_000),
		Tokens: []model.TokenShare{
			{Symbol: "USDC", Weight: d("0.5"), Amount: decimal.NewFromInt(500_000), ValueUSD: decimal.NewFromInt(500_000)},
			{Symbol: "USDT", Weight: d("0.5"), Amount: decimal.NewFromInt(500_000), ValueUSD: decimal.NewFromInt(500_000)},
		},
		APY:        model.APYBreakdown{Total: d("0.05"), Base: d("0.05")},
		ILRisk:     model.ILRisk{Score: 10, PriceCorrelation: d("0.99"), MaxProjectedIL: d("-0.01")},
		Volatility: model.VolatilityInputs{Daily: d("0.01")},
		PerformanceHistory: model.PerformanceHistory{
			DailyReturns: []series.Point{pt(1, "0"), pt(2, "0"), pt(3, "0")},
			TVL:          []series.Point{pt(1, "1000000"), pt(2, "1000000"), pt(3, "1000000")},
		},
	}
}

func TestAnalyze_StablePoolFlatHistory(t *testing.T) {
	o, engine := newTestOrchestrator(t, DefaultConfig())

	res, err := o.Analyze(context.Background(), stablePool(), nil)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "obs-1", res.ObservationID)
	require.NotNil(t, res.AdvancedMetrics)
	assert.True(t, res.AdvancedMetrics.Sharpe.IsZero())
	assert.True(t, res.AdvancedMetrics.Sortino.IsZero())
	assert.True(t, res.AdvancedMetrics.MaxDrawdown.IsZero())
	assert.True(t, res.PositionSize.Equal(decimal.NewFromInt(990_000)), "position %s", res.PositionSize)

	assert.Empty(t, res.SignalsOf(model.SignalEntry))
	assert.Empty(t, res.SignalsOf(model.SignalExit))
	assert.Empty(t, res.Alerts)
	assert.Nil(t, res.AllocationPlan)

	require.NotNil(t, res.FeatureVector)
	assert.Equal(t, "pool-features/v2+vocab.2024.1", res.SchemaVersion)
	assert.Equal(t, o.builder.Cardinality(), len(res.FeatureVector.Values))
	assert.Equal(t, "LOW", res.RiskLevel)

	// TVL 与 APY 各写入一个样本
	assert.Len(t, engine.Keys(), 2)
}

func TestAnalyze_MomentumTrigger(t *testing.T) {
	o, _ := newTestOrchestrator(t, DefaultConfig())
	obs := stablePool()
	obs.PerformanceHistory.DailyReturns = []series.Point{pt(10, "0.02"), pt(11, "0.08")}

	res, err := o.Analyze(context.Background(), obs, nil)
	require.NoError(t, err)

	entries := res.SignalsOf(model.SignalEntry)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(11), entries[0].Timestamp)
	assert.True(t, entries[0].Confidence.Equal(d("0.85")))
	assert.True(t, entries[0].Strength.Equal(d("1.6")), "strength %s", entries[0].Strength)
	assert.Equal(t, []string{optimizer.IndicatorMomentum, optimizer.IndicatorTrendFollowing}, entries[0].Indicators)
}

func TestAnalyze_DrawdownDetection(t *testing.T) {
	o, _ := newTestOrchestrator(t, DefaultConfig())
	obs := stablePool()
	obs.PerformanceHistory.TVL = []series.Point{pt(1, "100"), pt(2, "150"), pt(3, "75"), pt(4, "120")}

	res, err := o.Analyze(context.Background(), obs, nil)
	require.NoError(t, err)
	require.NotNil(t, res.AdvancedMetrics)
	assert.True(t, res.AdvancedMetrics.MaxDrawdown.Equal(d("-0.5")), "mdd %s", res.AdvancedMetrics.MaxDrawdown)
}

func TestAnalyze_PriceIndexOverflow(t *testing.T) {
	o, _ := newTestOrchestrator(t, DefaultConfig())
	obs := stablePool()
	// 累计收益指数 51^n 很快超过数值上限
	returns := make([]series.Point, 200)
	for i := range returns {
		returns[i] = pt(int64(i+1), "50")
	}
	obs.PerformanceHistory.DailyReturns = returns

	res, err := o.Analyze(context.Background(), obs, nil)
	require.NoError(t, err)
	assert.True(t, res.HasFlag(model.FlagNumericOverflow))
	require.NotNil(t, res.TechnicalIndicators)
	assert.True(t, res.TechnicalIndicators.RSI.Equal(decimal.NewFromInt(50)), "rsi %s", res.TechnicalIndicators.RSI)

	require.NotNil(t, res.FeatureVector)
	overflow := -1
	for i, name := range res.FeatureVector.Names {
		if name == "flag.numeric_overflow" {
			overflow = i
		}
	}
	require.GreaterOrEqual(t, overflow, 0)
	assert.Equal(t, 1.0, res.FeatureVector.Values[overflow])
}

func TestAnalyze_TVLEmergency(t *testing.T) {
	o, engine := newTestOrchestrator(t, DefaultConfig())
	base := stablePool()

	for i := 0; i < 23; i++ {
		obs := base
		obs.ObservationID = ""
		obs.Timestamp = base.Timestamp + int64(i)*3600
		obs.TVL = decimal.NewFromInt(100)
		res, err := o.Analyze(context.Background(), obs, nil)
		require.NoError(t, err)
		assert.Empty(t, res.Alerts)
		assert.NotEmpty(t, res.ObservationID)
	}

	obs := base
	obs.Timestamp = base.Timestamp + 23*3600
	obs.TVL = decimal.NewFromInt(250)
	res, err := o.Analyze(context.Background(), obs, nil)
	require.NoError(t, err)

	require.Len(t, res.Alerts, 1)
	assert.Equal(t, model.SeverityEmergency, res.Alerts[0].Severity)
	assert.Equal(t, alert.MetricTVL, res.Alerts[0].Metric)
	assert.Len(t, engine.History(base.PoolID, alert.MetricTVL), 1)
}

func TestAnalyze_InvalidObservation(t *testing.T) {
	sink := new(mocks.MockSink)
	sink.On("IncObservations").Once()
	sink.On("IncRejected").Once()
	sink.On("ObservePhase", model.PhaseIngest, mock.Anything).Once()

	logger := zaptest.NewLogger(t)
	registry, err := features.NewRegistry(nil, false)
	require.NoError(t, err)
	engine, err := alert.NewEngine(alert.DefaultConfig(), logger, sink)
	require.NoError(t, err)
	o := NewOrchestrator(DefaultConfig(), features.NewBuilder(registry, features.DefaultOptions()), engine, sink, logger)

	obs := stablePool()
	obs.Tokens[1].Weight = d("0.4")

	res, err := o.Analyze(context.Background(), obs, nil)
	require.NoError(t, err)

	assert.True(t, res.HasFlag(model.FlagInvalidObservation))
	warnings := res.SignalsOf(model.SignalRiskWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Reason, "观测无效")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, string(errs.InvalidObservation), res.Errors[0].Kind)
	assert.Nil(t, res.AdvancedMetrics)
	assert.Nil(t, res.FeatureVector)
	assert.Empty(t, engine.Keys(), "无效观测不能触碰检测器")
	sink.AssertExpectations(t)
}

func TestAnalyze_PhaseTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FeaturesTimeout = 10 * time.Millisecond
	o, engine := newTestOrchestrator(t, cfg)

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	o.beforePhase = func(p model.Phase) {
		if p == model.PhaseFeatures {
			<-release
		}
	}

	res, err := o.Analyze(context.Background(), stablePool(), nil)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.NotNil(t, res.AdvancedMetrics, "超时前的阶段结果保留")
	assert.Nil(t, res.FeatureVector)
	assert.True(t, res.HasFlag(model.FlagPhaseTimeout))
	for _, p := range []model.Phase{model.PhaseFeatures, model.PhaseOptimizer, model.PhaseAlerts} {
		assert.True(t, res.HasFlag(model.MissingPhaseFlag(p)), "缺少阶段 %s", p)
	}
	assert.False(t, res.HasFlag(model.MissingPhaseFlag(model.PhaseStats)))

	warnings := res.SignalsOf(model.SignalRiskWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{string(errs.PhaseTimeout)}, warnings[0].Indicators)
	assert.Empty(t, engine.Keys(), "超时后不再写入检测器")
}

func TestAnalyze_PhasePanic(t *testing.T) {
	o, engine := newTestOrchestrator(t, DefaultConfig())
	o.beforePhase = func(p model.Phase) {
		if p == model.PhaseOptimizer {
			panic("boom")
		}
	}

	res, err := o.Analyze(context.Background(), stablePool(), nil)
	require.NoError(t, err)

	assert.NotNil(t, res.FeatureVector)
	assert.True(t, res.HasFlag(model.MissingPhaseFlag(model.PhaseOptimizer)))
	assert.True(t, res.HasFlag(model.MissingPhaseFlag(model.PhaseAlerts)))
	assert.False(t, res.HasFlag(model.FlagPhaseTimeout))
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "panic", res.Errors[0].Kind)
	assert.Equal(t, model.PhaseOptimizer, res.Errors[0].Phase)
	assert.Empty(t, engine.Keys())
}

func TestAnalyze_Cancellation(t *testing.T) {
	t.Run("分析前已取消", func(t *testing.T) {
		o, engine := newTestOrchestrator(t, DefaultConfig())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := o.Analyze(ctx, stablePool(), nil)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Empty(t, engine.Keys())
	})

	t.Run("优化阶段中取消", func(t *testing.T) {
		o, engine := newTestOrchestrator(t, DefaultConfig())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		o.beforePhase = func(p model.Phase) {
			if p == model.PhaseOptimizer {
				cancel()
			}
		}

		res, err := o.Analyze(ctx, stablePool(), nil)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Empty(t, engine.Keys(), "取消的分析不能修改检测器状态")
	})
}

func TestAnalyze_Allocation(t *testing.T) {
	o, _ := newTestOrchestrator(t, DefaultConfig())
	strategies := []model.Strategy{
		{Name: "A", IsActive: true, BalanceHistory: []series.Point{pt(1, "100"), pt(2, "102"), pt(3, "104"), pt(4, "105")}},
		{Name: "B", IsActive: true, BalanceHistory: []series.Point{pt(1, "100"), pt(2, "101"), pt(3, "100"), pt(4, "102")}},
		{Name: "C", IsActive: false},
	}

	res, err := o.Analyze(context.Background(), stablePool(), strategies)
	require.NoError(t, err)
	require.NotNil(t, res.AllocationPlan)
	assert.Equal(t, int64(10000), res.AllocationPlan.TotalBps)
	assert.Len(t, res.AllocationPlan.Allocations, 2)
}

func TestAnalyze_RebalanceAndGas(t *testing.T) {
	o, engine := newTestOrchestrator(t, DefaultConfig())
	obs := stablePool()
	obs.CurrentWeights = map[string]int64{"a": 7000, "b": 3000}
	obs.TargetWeights = map[string]int64{"a": 5000, "b": 5000}
	// 1_700_006_400 为 UTC 零点
	obs.Gas = map[string]model.GasMetrics{
		"near": {
			CostUSD:   d("0.01"),
			PeakHours: []int{1},
			History:   []series.Point{pt(1_700_006_400, "5"), pt(1_700_006_400+3600, "1"), pt(1_700_006_400+7200, "2")},
		},
	}

	res, err := o.Analyze(context.Background(), obs, nil)
	require.NoError(t, err)

	assert.Len(t, res.SignalsOf(model.SignalRebalance), 1)
	require.Len(t, res.RebalanceMoves, 1)
	assert.Equal(t, model.RebalanceMove{From: "a", To: "b", AmountBps: 2000}, res.RebalanceMoves[0])
	assert.Equal(t, map[string]int{"near": 2}, res.OptimalGasHour)
	assert.Len(t, engine.Keys(), 3, "所在链的 gas 成本也写入检测器")
}
