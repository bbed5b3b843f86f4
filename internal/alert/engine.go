package alert

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/life2you_mini/poolcore/internal/errs"
	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/series"
	"github.com/life2you_mini/poolcore/internal/telemetry"
)

// Subscriber 告警回调，按注册顺序同步调用；回调失败不影响其他回调
type Subscriber func(ctx context.Context, a model.Alert) error

// Key 检测器键 (池子, 指标)
type Key struct {
	PoolID string
	Metric string
}

func (k Key) String() string {
	return k.PoolID + ":" + k.Metric
}

// detector 单个 (池子, 指标) 的滚动窗口与告警历史
type detector struct {
	mu       sync.Mutex
	window   *series.Window
	history  []model.Alert
	poisoned bool
}

func (d *detector) pushHistory(a model.Alert, size int) {
	d.history = append(d.history, a)
	if len(d.history) > size {
		d.history = append(d.history[:0:0], d.history[len(d.history)-size:]...)
	}
}

// Engine 滚动 z 值异常检测引擎
type Engine struct {
	cfg    Config
	logger *zap.Logger
	sink   telemetry.Sink

	mu        sync.RWMutex
	detectors map[Key]*detector

	subMu       sync.RWMutex
	subscribers []Subscriber

	// beforeCommit 在写入窗口后、提交前调用，测试用于注入 panic 或取消
	beforeCommit func(Key)
}

// NewEngine 创建告警引擎，配置不合法时返回 Misconfiguration
func NewEngine(cfg Config, logger *zap.Logger, sink telemetry.Sink) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "alert_engine")),
		sink:      telemetry.OrNop(sink),
		detectors: make(map[Key]*detector),
	}, nil
}

// Subscribe 注册告警回调
func (e *Engine) Subscribe(s Subscriber) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subscribers = append(e.subscribers, s)
}

// Metrics 已注册指标名，按字母序
func (e *Engine) Metrics() []string {
	names := make([]string, 0, len(e.cfg.Metrics))
	for name := range e.cfg.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) detector(key Key, mc MetricConfig) *detector {
	e.mu.RLock()
	d, ok := e.detectors[key]
	e.mu.RUnlock()
	if ok {
		return d
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok = e.detectors[key]; ok {
		return d
	}
	d = &detector{window: series.NewWindow(mc.Window)}
	e.detectors[key] = d
	return d
}

func (e *Engine) lookup(key Key) (*detector, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.detectors[key]
	return d, ok
}

// Sample 单个指标的样本
type Sample struct {
	Metric string
	Value  decimal.Decimal
}

// Observe 写入一个样本并检测异常，语义同 ObserveAll
func (e *Engine) Observe(ctx context.Context, poolID, metric string, ts int64, value decimal.Decimal) ([]model.Alert, error) {
	return e.ObserveAll(ctx, poolID, ts, []Sample{{Metric: metric, Value: value}})
}

// ObserveAll 原子地写入同一池子的多个指标样本并检测异常
// 上下文在提交前被取消时全部回滚，返回 ctx.Err()；
// 更新过程 panic 时全部回滚并返回 DetectorPoisoned，出错指标的下一次更新只记录样本不检测；
// 订阅者错误合并后返回，告警本身仍然有效
func (e *Engine) ObserveAll(ctx context.Context, poolID string, ts int64, samples []Sample) ([]model.Alert, error) {
	sorted := append([]Sample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Metric < sorted[j].Metric })
	for i, s := range sorted {
		if _, ok := e.cfg.Metrics[s.Metric]; !ok {
			return nil, errs.New(errs.Misconfiguration, "alert.observe", "未注册的指标: %s", s.Metric)
		}
		if i > 0 && sorted[i-1].Metric == s.Metric {
			return nil, errs.New(errs.Misconfiguration, "alert.observe", "同一批次中指标重复: %s", s.Metric)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	alerts, err := e.update(ctx, poolID, ts, sorted)
	if err != nil {
		return nil, err
	}

	var notifyErr error
	for _, a := range alerts {
		e.sink.IncAnomaly(a.Severity)
		e.logger.Warn("检测到指标异常",
			zap.String("pool_id", poolID),
			zap.String("metric", a.Metric),
			zap.String("severity", string(a.Severity)),
			zap.String("old_value", a.OldValue.String()),
			zap.String("new_value", a.NewValue.String()),
			zap.String("z_score", a.ZScore.StringFixed(4)))
		notifyErr = multierr.Append(notifyErr, e.notify(ctx, a))
	}
	return alerts, notifyErr
}

// undoEntry 单个检测器更新前的状态
type undoEntry struct {
	d        *detector
	values   []decimal.Decimal
	history  []model.Alert
	poisoned bool
}

func (u undoEntry) restore() {
	u.d.window.Reset(u.values)
	u.d.history = u.history
	u.d.poisoned = u.poisoned
}

// update 按指标名顺序锁住相关检测器，完成写入与检测后统一提交，失败时按撤销记录回滚
func (e *Engine) update(ctx context.Context, poolID string, ts int64, samples []Sample) (alerts []model.Alert, err error) {
	keys := make([]Key, len(samples))
	dets := make([]*detector, len(samples))
	for i, s := range samples {
		keys[i] = Key{PoolID: poolID, Metric: s.Metric}
		dets[i] = e.detector(keys[i], e.cfg.Metrics[s.Metric])
	}
	for _, d := range dets {
		d.mu.Lock()
	}
	defer func() {
		for i := len(dets) - 1; i >= 0; i-- {
			dets[i].mu.Unlock()
		}
	}()

	undo := make([]undoEntry, 0, len(samples))
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i].restore()
		}
	}

	current := -1
	defer func() {
		if r := recover(); r != nil {
			rollback()
			alerts = nil
			key := keys[current]
			dets[current].poisoned = true
			err = errs.New(errs.DetectorPoisoned, "alert.observe", "检测器 %s 更新异常: %v", key, r)
			e.logger.Error("检测器更新 panic，已回滚",
				zap.String("detector", key.String()),
				zap.Any("panic", r))
		}
	}()

	for i, s := range samples {
		current = i
		d := dets[i]
		prevValues := d.window.Values()
		undo = append(undo, undoEntry{d: d, values: prevValues, history: d.history, poisoned: d.poisoned})

		d.window.Push(s.Value)
		if d.poisoned {
			// 中毒后的第一次更新只记录样本
			d.poisoned = false
		} else if a := e.detect(d, keys[i], e.cfg.Metrics[s.Metric], ts, prevValues, s.Value); a != nil {
			d.pushHistory(*a, e.cfg.HistorySize)
			alerts = append(alerts, *a)
		}

		if e.beforeCommit != nil {
			e.beforeCommit(keys[i])
		}
	}

	if cerr := ctx.Err(); cerr != nil {
		rollback()
		return nil, cerr
	}
	return alerts, nil
}

// detect 用写入后的窗口统计量计算 z 值，超过阈值时生成告警
func (e *Engine) detect(d *detector, key Key, mc MetricConfig, ts int64, prevValues []decimal.Decimal, value decimal.Decimal) *model.Alert {
	std := d.window.StdDev()
	if std.IsZero() {
		return nil
	}
	z := d.window.ZScore(value)
	if z.Abs().LessThanOrEqual(mc.Threshold) {
		return nil
	}

	old := value
	if len(prevValues) > 0 {
		old = prevValues[len(prevValues)-1]
	}
	change, bounded := ChangeBps(old, value)
	volatility := VolatilityScore(d.window.Values(), e.cfg.VolatilityWindow)
	severity := Classify(change, bounded, volatility, e.cfg)
	if severity == model.SeverityNormal {
		// 越过 z 值阈值的样本至少为 warning
		severity = model.SeverityWarning
	}

	return &model.Alert{
		ID:         uuid.NewString(),
		PoolID:     key.PoolID,
		Metric:     key.Metric,
		Severity:   severity,
		Timestamp:  ts,
		OldValue:   old,
		NewValue:   value,
		ChangeBps:  change,
		ZScore:     z,
		Mean:       d.window.Mean(),
		StdDev:     std,
		WindowSize: d.window.Len(),
	}
}

// notify 依次调用订阅者，recover 单个回调的 panic 并合并错误
func (e *Engine) notify(ctx context.Context, a model.Alert) error {
	e.subMu.RLock()
	subs := make([]Subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	e.subMu.RUnlock()

	var result error
	for i, sub := range subs {
		if err := callSubscriber(ctx, sub, a); err != nil {
			e.logger.Warn("告警订阅者处理失败",
				zap.Int("subscriber", i),
				zap.String("alert_id", a.ID),
				zap.Error(err))
			result = multierr.Append(result, fmt.Errorf("订阅者 %d: %w", i, err))
		}
	}
	return result
}

func callSubscriber(ctx context.Context, sub Subscriber, a model.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("订阅者 panic: %v", r)
		}
	}()
	return sub(ctx, a)
}

// History 返回告警历史副本，最旧的在前
func (e *Engine) History(poolID, metric string) []model.Alert {
	d, ok := e.lookup(Key{PoolID: poolID, Metric: metric})
	if !ok {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Alert(nil), d.history...)
}

// Health 最近一次告警的级别，没有告警时为 normal
func (e *Engine) Health(poolID, metric string) model.Severity {
	h := e.History(poolID, metric)
	if len(h) == 0 {
		return model.SeverityNormal
	}
	return h[len(h)-1].Severity
}

// WindowValues 当前窗口内容副本
func (e *Engine) WindowValues(poolID, metric string) []decimal.Decimal {
	d, ok := e.lookup(Key{PoolID: poolID, Metric: metric})
	if !ok {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window.Values()
}

// VolatilityScore 当前窗口的波动评分 (bps)
func (e *Engine) VolatilityScore(poolID, metric string) decimal.Decimal {
	return VolatilityScore(e.WindowValues(poolID, metric), e.cfg.VolatilityWindow)
}

// Poisoned 检测器是否处于中毒状态
func (e *Engine) Poisoned(poolID, metric string) bool {
	d, ok := e.lookup(Key{PoolID: poolID, Metric: metric})
	if !ok {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.poisoned
}

// Keys 全部检测器键，按池子与指标排序
func (e *Engine) Keys() []Key {
	e.mu.RLock()
	keys := make([]Key, 0, len(e.detectors))
	for k := range e.detectors {
		keys = append(keys, k)
	}
	e.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PoolID != keys[j].PoolID {
			return keys[i].PoolID < keys[j].PoolID
		}
		return keys[i].Metric < keys[j].Metric
	})
	return keys
}
