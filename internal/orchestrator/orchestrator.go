package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/poolcore/internal/alert"
	"github.com/life2you_mini/poolcore/internal/errs"
	"github.com/life2you_mini/poolcore/internal/features"
	"github.com/life2you_mini/poolcore/internal/indicators"
	"github.com/life2you_mini/poolcore/internal/ingest"
	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/optimizer"
	"github.com/life2you_mini/poolcore/internal/risk"
	"github.com/life2you_mini/poolcore/internal/telemetry"
)

// 默认阶段时限
const (
	DefaultStatsTimeout     = time.Second
	DefaultFeaturesTimeout  = time.Second
	DefaultOptimizerTimeout = 500 * time.Millisecond
)

// Config 编排参数
type Config struct {
	Ingest     ingest.Options
	Risk       risk.Params
	RiskLevels risk.LevelThresholds
	Indicators indicators.Config
	Optimizer  optimizer.Config

	StatsTimeout     time.Duration
	FeaturesTimeout  time.Duration
	OptimizerTimeout time.Duration

	// Workers 批量分析的并发数，<= 0 时取 CPU 核数
	Workers int
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		Ingest:           ingest.DefaultOptions(),
		Risk:             risk.DefaultParams(),
		RiskLevels:       risk.DefaultLevelThresholds,
		Indicators:       indicators.DefaultConfig(),
		Optimizer:        optimizer.DefaultConfig(),
		StatsTimeout:     DefaultStatsTimeout,
		FeaturesTimeout:  DefaultFeaturesTimeout,
		OptimizerTimeout: DefaultOptimizerTimeout,
	}
}

// Orchestrator 串联校验、统计、特征、优化与告警各阶段
// 除告警引擎的检测器状态外不持有可变状态，可被多个 goroutine 同时使用
type Orchestrator struct {
	cfg     Config
	builder *features.Builder
	alerts  *alert.Engine
	sink    telemetry.Sink
	logger  *zap.Logger

	// beforePhase 在阶段函数内部最先调用，测试用于注入阻塞、panic 或取消
	beforePhase func(model.Phase)
}

// NewOrchestrator 创建编排器
func NewOrchestrator(cfg Config, builder *features.Builder, alerts *alert.Engine, sink telemetry.Sink, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:     cfg,
		builder: builder,
		alerts:  alerts,
		sink:    telemetry.OrNop(sink),
		logger:  logger.With(zap.String("component", "orchestrator")),
	}
}

type statsOutput struct {
	metrics   model.AdvancedMetrics
	technical model.TechnicalIndicators
	summary   risk.PerformanceSummary
	overflow  bool
}

type optimizerOutput struct {
	positionSize decimal.Decimal
	signals      []model.Signal
	plan         *model.AllocationPlan
	moves        []model.RebalanceMove
	gasHours     map[string]int
}

// Analyze 分析单个观测
// 只有上下文被取消时返回错误，此时部分结果被丢弃且检测器状态不变；
// 其余失败均体现在 Result 的 flags、errors 与风险警告信号中
func (o *Orchestrator) Analyze(ctx context.Context, obs model.Observation, strategies []model.Strategy) (*model.Result, error) {
	started := time.Now()
	res := o.newResult(obs)
	o.sink.IncObservations()

	// 校验与规整
	pool, err := ingest.Ingest(obs, o.cfg.Ingest)
	o.sink.ObservePhase(model.PhaseIngest, time.Since(started))
	if err != nil {
		o.reject(res, err)
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 风险与技术指标
	stats, err := timed(ctx, o, model.PhaseStats, o.cfg.StatsTimeout, func() (statsOutput, error) {
		return o.computeStats(pool), nil
	})
	if stop, err := o.handlePhaseError(ctx, res, model.PhaseStats, err); stop {
		return o.finish(res, started, err)
	}
	res.AdvancedMetrics = &stats.metrics
	res.TechnicalIndicators = &stats.technical
	res.RiskAdjustedAPY = risk.RiskAdjustedAPY(pool)
	res.RiskLevel = risk.ClassifyRiskLevel(pool.ILRisk.Score, pool.Security.ContractRisk, o.cfg.RiskLevels)
	if stats.metrics.InsufficientHistory {
		res.AddFlag(model.FlagInsufficientHistory)
	}
	if stats.overflow {
		res.AddFlag(model.FlagNumericOverflow)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 特征合成
	vector, err := timed(ctx, o, model.PhaseFeatures, o.cfg.FeaturesTimeout, func() (*model.FeatureVector, error) {
		buildStart := time.Now()
		v := o.builder.Build(features.Inputs{
			Pool:            pool,
			Metrics:         stats.metrics,
			Technical:       stats.technical,
			Summary:         stats.summary,
			NumericOverflow: stats.overflow,
		})
		o.sink.ObserveFeatureBuild(time.Since(buildStart))
		return v, nil
	})
	if stop, err := o.handlePhaseError(ctx, res, model.PhaseFeatures, err); stop {
		return o.finish(res, started, err)
	}
	res.FeatureVector = vector
	if vector != nil {
		res.SchemaVersion = vector.SchemaID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 仓位、信号与分配
	opt, err := timed(ctx, o, model.PhaseOptimizer, o.cfg.OptimizerTimeout, func() (optimizerOutput, error) {
		return o.optimize(pool, strategies), nil
	})
	if stop, err := o.handlePhaseError(ctx, res, model.PhaseOptimizer, err); stop {
		return o.finish(res, started, err)
	}
	res.PositionSize = opt.positionSize
	res.Signals = append(res.Signals, opt.signals...)
	res.AllocationPlan = opt.plan
	res.RebalanceMoves = opt.moves
	res.OptimalGasHour = opt.gasHours
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 异常检测
	alertStart := time.Now()
	alerts, err := o.alerts.ObserveAll(ctx, pool.PoolID, pool.Timestamp, o.samples(pool))
	o.sink.ObservePhase(model.PhaseAlerts, time.Since(alertStart))
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, errs.ErrDetectorPoisoned):
		res.AddFlag(model.FlagDetectorPoisoned)
		res.AddFlag(model.MissingPhaseFlag(model.PhaseAlerts))
		res.Errors = append(res.Errors, phaseError(model.PhaseAlerts, err))
	default:
		// 订阅者失败不影响告警结果
		o.logger.Warn("告警订阅者返回错误", zap.String("pool_id", pool.PoolID), zap.Error(err))
	}
	res.Alerts = append(res.Alerts, alerts...)

	return o.finish(res, started, nil)
}

func (o *Orchestrator) newResult(obs model.Observation) *model.Result {
	id := obs.ObservationID
	if id == "" {
		id = uuid.NewString()
	}
	return &model.Result{
		ObservationID: id,
		PoolID:        obs.PoolID,
		Timestamp:     obs.Timestamp,
		SchemaVersion: o.builder.SchemaID(),
		PositionSize:  decimal.Zero,
		Signals:       []model.Signal{},
		Alerts:        []model.Alert{},
		Flags:         []model.Flag{},
	}
}

// reject 无效观测：记录标记与风险警告，不触碰检测器
func (o *Orchestrator) reject(res *model.Result, err error) {
	o.sink.IncRejected()
	res.AddFlag(model.FlagInvalidObservation)
	res.Errors = append(res.Errors, phaseError(model.PhaseIngest, err))
	res.Signals = append(res.Signals, optimizer.Warning(res.Timestamp, "观测无效: "+err.Error(), string(model.FlagInvalidObservation)))
	o.logger.Warn("观测校验失败",
		zap.String("pool_id", res.PoolID),
		zap.Int64("timestamp", res.Timestamp),
		zap.Error(err))
}

// timed 执行阶段并记录耗时
func timed[T any](ctx context.Context, o *Orchestrator, phase model.Phase, timeout time.Duration, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := runPhase(ctx, phase, timeout, func() (T, error) {
		if o.beforePhase != nil {
			o.beforePhase(phase)
		}
		return fn()
	})
	o.sink.ObservePhase(phase, time.Since(start))
	return v, err
}

// handlePhaseError 处理阶段错误，返回是否终止后续阶段
// 超时与 panic 都终止后续阶段，剩余阶段记为缺失并发出风险警告
func (o *Orchestrator) handlePhaseError(ctx context.Context, res *model.Result, phase model.Phase, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return true, ctxErr
	}

	if errs.KindOf(err) == errs.PhaseTimeout {
		res.AddFlag(model.FlagPhaseTimeout)
	}
	for _, p := range remainingPhases(phase) {
		res.AddFlag(model.MissingPhaseFlag(p))
	}
	pe := phaseError(phase, err)
	res.Errors = append(res.Errors, pe)
	res.Signals = append(res.Signals, optimizer.Warning(res.Timestamp, "阶段 "+string(phase)+" 未完成: "+err.Error(), pe.Kind))
	o.logger.Warn("分析阶段未完成，跳过后续阶段",
		zap.String("pool_id", res.PoolID),
		zap.String("phase", string(phase)),
		zap.Error(err))
	return true, nil
}

// finish 收尾；err 非空表示上下文已取消，丢弃部分结果
func (o *Orchestrator) finish(res *model.Result, started time.Time, err error) (*model.Result, error) {
	if err != nil {
		return nil, err
	}
	o.logger.Debug("观测分析完成",
		zap.String("pool_id", res.PoolID),
		zap.String("observation_id", res.ObservationID),
		zap.Int("signals", len(res.Signals)),
		zap.Int("alerts", len(res.Alerts)),
		zap.Duration("elapsed", time.Since(started)))
	return res, nil
}

func (o *Orchestrator) computeStats(pool *model.NormalizedPool) statsOutput {
	var out statsOutput
	metrics, err := risk.Compute(pool, o.cfg.Risk)
	if err != nil {
		// 溢出时指标取中性值
		out.overflow = errs.KindOf(err) == errs.NumericOverflow
		metrics = model.AdvancedMetrics{InsufficientHistory: metrics.InsufficientHistory}
	}
	out.metrics = metrics
	technical, err := indicators.Compute(pool, o.cfg.Indicators)
	if err != nil && errs.KindOf(err) == errs.NumericOverflow {
		out.overflow = true
	}
	out.technical = technical
	out.summary = risk.Summarize(pool, metrics)
	return out
}

func (o *Orchestrator) optimize(pool *model.NormalizedPool, strategies []model.Strategy) optimizerOutput {
	out := optimizerOutput{
		positionSize: optimizer.PositionSize(pool),
		signals:      optimizer.Signals(pool, o.cfg.Optimizer),
		moves:        optimizer.RebalanceMoves(pool.CurrentWeights, pool.TargetWeights, o.cfg.Optimizer.RebalanceDriftBps),
	}
	if len(strategies) > 0 {
		out.plan = optimizer.Allocate(strategies, o.cfg.Optimizer)
	}
	if hours := optimizer.OptimalGasHours(pool.Gas); len(hours) > 0 {
		out.gasHours = hours
	}
	return out
}

// samples 需要检测的指标：TVL、总 APY，以及所在链的 gas 成本
func (o *Orchestrator) samples(pool *model.NormalizedPool) []alert.Sample {
	registered := make(map[string]bool)
	for _, m := range o.alerts.Metrics() {
		registered[m] = true
	}

	var out []alert.Sample
	add := func(metric string, v decimal.Decimal) {
		if registered[metric] {
			out = append(out, alert.Sample{Metric: metric, Value: v})
		}
	}
	add(alert.MetricTVL, pool.TVL)
	add(alert.MetricAPY, pool.APY.Total)
	if g, ok := pool.Gas[pool.Chain]; ok {
		add(alert.MetricGas, g.CostUSD)
	}
	return out
}

var phaseOrder = []model.Phase{model.PhaseStats, model.PhaseFeatures, model.PhaseOptimizer, model.PhaseAlerts}

// remainingPhases 从 phase 开始 (含) 的全部阶段
func remainingPhases(phase model.Phase) []model.Phase {
	for i, p := range phaseOrder {
		if p == phase {
			return phaseOrder[i:]
		}
	}
	return nil
}

func phaseError(phase model.Phase, err error) model.PhaseError {
	kind := string(errs.KindOf(err))
	if kind == "" {
		// 阶段函数本身只会因 panic 返回无类别错误
		kind = "panic"
	}
	return model.PhaseError{Phase: phase, Kind: kind, Message: err.Error()}
}
