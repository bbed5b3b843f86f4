package features

import (
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/indicators"
	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/numeric"
	"github.com/life2you_mini/poolcore/internal/risk"
	"github.com/life2you_mini/poolcore/internal/series"
)

const (
	// SchemaVersion 特征布局版本，布局变化时必须升级
	SchemaVersion = "pool-features/v2"

	MaxTokens      = 8
	ExtremaSlots   = 3
	CubeRows       = 30
	TrendWindow    = 30
	secondsPerDay  = 86400
	tvlLogScale    = 25.0
	volumeTrendCap = 5.0
	eventLookback  = 90 * secondsPerDay
	cubeAgeHorizon = 365.0
	apyHalfLife    = 7 * secondsPerDay
)

// Options 特征合成参数
type Options struct {
	PlatformTVL           decimal.Decimal
	EfficiencyCoefficient decimal.Decimal
	Regime                indicators.RegimeCutoffs
}

// DefaultOptions 默认参数：平台 TVL 1e9，效率系数 1
func DefaultOptions() Options {
	return Options{
		PlatformTVL:           decimal.New(1, 9),
		EfficiencyCoefficient: decimal.NewFromInt(1),
		Regime:                indicators.DefaultConfig().Regime,
	}
}

// Inputs 合成特征所需的上游结果
type Inputs struct {
	Pool                *model.NormalizedPool
	Metrics             model.AdvancedMetrics
	Technical           model.TechnicalIndicators
	Summary             risk.PerformanceSummary
	InsufficientHistory bool
	NumericOverflow     bool
}

// Builder 特征向量合成器
type Builder struct {
	registry *Registry
	opts     Options
}

// NewBuilder 创建特征合成器
func NewBuilder(registry *Registry, opts Options) *Builder {
	return &Builder{registry: registry, opts: opts}
}

// SchemaID 当前 schema 标识，包含词表版本
func (b *Builder) SchemaID() string {
	return SchemaID(b.registry.Current())
}

// SchemaID 由词表计算 schema 标识
func SchemaID(v *Vocabulary) string {
	return SchemaVersion + "+vocab." + v.Version
}

// SchemaNames 返回当前词表下的特征名列表
func (b *Builder) SchemaNames() []string {
	empty := &model.NormalizedPool{}
	return b.build(Inputs{Pool: empty}, b.registry.Current()).Names
}

// Cardinality 当前词表下的特征数量
func (b *Builder) Cardinality() int {
	return len(b.SchemaNames())
}

// Build 合成特征向量，结果只包含有限值
func (b *Builder) Build(in Inputs) *model.FeatureVector {
	return b.build(in, b.registry.Current())
}

func (b *Builder) build(in Inputs, vocab *Vocabulary) *model.FeatureVector {
	w := newVectorWriter(512)
	pool := in.Pool
	// 溢出时收益指数为空，相关特征取 0
	prices, _ := indicators.PriceIndex(series.Values(pool.PerformanceHistory.DailyReturns))

	b.poolSection(w, pool, vocab)
	b.marketSection(w, pool)
	technicalSection(w, pool, in.Technical, prices)
	riskSection(w, pool, prices)
	temporalSection(w, pool)
	performanceSection(w, in.Summary)

	w.addBool("flag.insufficient_history", in.InsufficientHistory || in.Metrics.InsufficientHistory)
	w.addBool("flag.numeric_overflow", in.NumericOverflow)

	return &model.FeatureVector{
		SchemaID: SchemaID(vocab),
		Values:   w.values,
		Names:    w.names,
	}
}

func (b *Builder) poolSection(w *vectorWriter, pool *model.NormalizedPool, vocab *Vocabulary) {
	tvl := numeric.ToFloat(pool.TVL)

	w.add("pool.tvl_log", logNormalize(tvl))
	w.addDec("pool.volume_tvl_ratio", numeric.Quo(pool.Volume24h, pool.TVL))
	w.add("pool.liquidity_depth", liquidityDepth(pool))
	w.addDec("pool.price_correlation", pool.ILRisk.PriceCorrelation)
	w.add("pool.age_days", poolAgeDays(pool.Timestamp, pool.CreatedAt))

	w.oneHot("pool.kind", vocab.PoolKinds, string(pool.PoolKind))
	w.oneHot("pool.platform", vocab.Platforms, pool.Platform)
	w.oneHot("pool.chain", vocab.Chains, pool.Chain)

	weights := make([]float64, 0, len(pool.Tokens))
	for _, tok := range pool.Tokens {
		weights = append(weights, numeric.ToFloat(tok.Weight))
	}
	w.padded("pool.token_weight", weights, MaxTokens)
	w.add("pool.composition_score", compositionScore(weights))

	platformTVL := b.opts.PlatformTVL
	coefficient := b.opts.EfficiencyCoefficient
	if pool.Market != nil {
		if pool.Market.PlatformTVL.Valid {
			platformTVL = pool.Market.PlatformTVL.Decimal
		}
		if pool.Market.EfficiencyCoefficient.Valid {
			coefficient = pool.Market.EfficiencyCoefficient.Decimal
		}
	}
	w.add("pool.protocol_dominance", math.Min(1, numeric.ToFloat(numeric.Quo(pool.TVL, platformTVL))))
	w.add("pool.capital_efficiency", math.Min(1, numeric.ToFloat(numeric.Quo(pool.Volume24h, pool.TVL).Mul(coefficient))))

	w.addDec("pool.fee.swap", pool.Fees.Swap)
	w.addDec("pool.fee.protocol", pool.Fees.Protocol)
	w.addDec("pool.fee.lp", pool.Fees.LP)
	w.addDec("pool.fee.withdrawal", pool.Fees.Withdrawal)
	w.addDec("pool.fee.performance", pool.Fees.Performance)
	w.addDec("pool.apy.total", pool.APY.Total)
	w.addDec("pool.apy.base", pool.APY.Base)
	w.addDec("pool.apy.reward", pool.APY.Reward)
	w.addDec("pool.apy.farming", pool.APY.Farming)
	w.addDec("pool.risk_adjusted_apy", risk.RiskAdjustedAPY(pool))
}

func (b *Builder) marketSection(w *vectorWriter, pool *model.NormalizedPool) {
	returns := series.Values(pool.PerformanceHistory.DailyReturns)

	w.addDec("market.volatility_1d", pool.Volatility.Daily)
	w.addDec("market.volatility_7d", pool.Volatility.Weekly)
	w.addDec("market.volatility_30d", pool.Volatility.Monthly)
	w.add("market.volume_trend", volumeTrend(series.Values(pool.PerformanceHistory.Volume)))
	w.add("market.tvl_trend", relativeSlope(series.Values(pool.PerformanceHistory.TVL)))

	correlation := decimal.Zero
	if pool.Market != nil && len(pool.Market.BenchmarkReturns) > 0 {
		correlation = risk.Correlation(returns, series.Values(pool.Market.BenchmarkReturns))
	}
	w.addDec("market.correlation", correlation)

	w.padded("market.token_dominance", tokenDominance(pool.Tokens), MaxTokens)

	realized := series.StdDev(series.Last(returns, TrendWindow))
	regime := indicators.ClassifyRegime(realized, b.opts.Regime)
	regimeOneHot(w, "market.regime", regime)

	w.addDec("market.volatility_impact_7d", risk.VolatilityImpact(pool.Volatility.Daily, 7))
	w.addDec("market.volatility_impact_30d", risk.VolatilityImpact(pool.Volatility.Daily, 30))

	depth := liquidityDepth(pool)
	impact1k := numeric.ToFloat(pool.Volatility.PriceImpact1k)
	impact10k := numeric.ToFloat(pool.Volatility.PriceImpact10k)
	liquidityRatio := math.Min(1, numeric.ToFloat(numeric.Quo(pool.Liquidity, pool.TVL)))

	w.add("market.liquidity_score", depth*liquidityRatio)
	w.add("market.impact", impact10k)
	w.add("market.bid_ask_spread", 2*numeric.ToFloat(pool.Fees.Swap)+impact1k)
	w.add("market.depth_2pct", depth*0.02/2)
	w.add("market.depth_5pct", depth*0.05/2)
	w.add("market.depth_10pct", depth*0.10/2)
	w.add("market.slippage_impact", math.Max(0, impact10k-impact1k))
	w.add("market.orderbook_imbalance", orderbookImbalance(pool.Tokens))
}

func technicalSection(w *vectorWriter, pool *model.NormalizedPool, ti model.TechnicalIndicators, prices []decimal.Decimal) {
	returns := series.Values(pool.PerformanceHistory.DailyReturns)

	w.add("tech.rsi_14", numeric.ToFloat(ti.RSI)/100)
	w.addDec("tech.macd", ti.MACD)
	w.addDec("tech.macd_signal", ti.MACDSignal)
	w.addDec("tech.macd_histogram", ti.MACDHistogram)
	w.addDec("tech.bollinger_upper", ti.BollingerUpper)
	w.addDec("tech.bollinger_middle", ti.BollingerMiddle)
	w.addDec("tech.bollinger_lower", ti.BollingerLower)
	w.addDec("tech.atr", ti.ATR)
	w.addDec("tech.momentum_score", indicators.MomentumScore(returns))
	w.addDec("tech.trend_strength", indicators.TrendStrength(returns))

	support, resistance := indicators.SupportResistance(prices, ExtremaSlots)
	w.padded("tech.support", toFloats(support), ExtremaSlots)
	w.padded("tech.resistance", toFloats(resistance), ExtremaSlots)

	regime := ti.Regime
	if regime == "" {
		regime = model.RegimeLow
	}
	regimeOneHot(w, "tech.regime", regime)
}

func riskSection(w *vectorWriter, pool *model.NormalizedPool, prices []decimal.Decimal) {
	sec := pool.Security

	w.add("risk.il_score", float64(pool.ILRisk.Score)/100)
	w.add("risk.volatility_rank", float64(pool.Volatility.Rank)/100)
	w.add("risk.contract_risk", float64(sec.ContractRisk)/100)
	w.add("risk.centralization_risk", float64(sec.CentralizationRisk)/100)
	w.add("risk.audit_score", float64(sec.AuditScore)/100)
	w.addDec("risk.concentration", pool.Users.Concentration)
	w.add("risk.smart_contract", float64(sec.ContractRisk+sec.CentralizationRisk+(100-sec.AuditScore))/300)
	w.addDec("risk.max_projected_il", pool.ILRisk.MaxProjectedIL)
	w.addDec("risk.projected_il", risk.EstimateImpermanentLoss(windowPriceRatio(prices)))

	active := make(map[model.EventSeverity]bool, len(model.EventSeverities))
	for _, ev := range sec.Events {
		if ev.ResolvedAt == nil || ev.Timestamp >= pool.Timestamp-eventLookback {
			active[ev.Severity] = true
		}
	}
	for _, sev := range model.EventSeverities {
		w.addBool("risk.events."+string(sev), active[sev])
	}
}

func temporalSection(w *vectorWriter, pool *model.NormalizedPool) {
	h := pool.PerformanceHistory
	returns := h.DailyReturns

	for row := 0; row < CubeRows; row++ {
		back := CubeRows - row // 距末尾的距离 1..30
		prefix := "temporal.cube." + strconv.Itoa(row)
		idx := len(returns) - back
		if idx < 0 {
			for _, field := range []string{"age", "tvl", "volume", "return", "il"} {
				w.add(prefix+"."+field, 0)
			}
			continue
		}
		age := float64(pool.Timestamp-returns[idx].Timestamp) / secondsPerDay / cubeAgeHorizon
		w.add(prefix+".age", numeric.ClampFloat(age, 0, 1))
		w.add(prefix+".tvl", logNormalize(numeric.ToFloat(fromEnd(h.TVL, back))))
		w.add(prefix+".volume", logNormalize(numeric.ToFloat(fromEnd(h.Volume, back))))
		w.addDec(prefix+".return", returns[idx].Value)
		w.addDec(prefix+".il", fromEnd(h.IL, back))
	}

	hours, days := seasonality(h.Volume)
	w.padded("temporal.season.hour", hours, 24)
	w.padded("temporal.season.dow", days, 7)

	w.add("temporal.trend.tvl_slope", relativeSlope(series.Values(h.TVL)))
	w.add("temporal.trend.volume_slope", relativeSlope(series.Values(h.Volume)))
	w.add("temporal.trend.apy_stability", float64(pool.APY.StabilityScore)/100)
	w.addDec("temporal.trend.apy_ema", series.EMAHalfLife(pool.APY.History, pool.Timestamp, apyHalfLife))
}

func performanceSection(w *vectorWriter, s risk.PerformanceSummary) {
	w.addDec("perf.realized_apy", s.RealizedAPY)
	w.addDec("perf.sharpe", s.Sharpe)
	w.addDec("perf.sortino", s.Sortino)
	w.addDec("perf.max_drawdown", s.MaxDrawdown)
	w.addDec("perf.recovery_factor", s.RecoveryFactor)
	w.addDec("perf.win_loss_ratio", s.WinLossRatio)
	w.addDec("perf.profit_factor", s.ProfitFactor)
	w.addDec("perf.calmar", s.Calmar)
	w.addDec("perf.omega", s.Omega)
	w.addDec("perf.var_95", s.VaR95)
	w.addDec("perf.expected_shortfall", s.ExpectedShortfall)
}

// windowPriceRatio 最近 TrendWindow 天收益指数的首尾比值，数据不足时为 0
func windowPriceRatio(prices []decimal.Decimal) decimal.Decimal {
	window := series.Last(prices, TrendWindow+1)
	if len(window) < 2 {
		return decimal.Zero
	}
	return numeric.Quo(window[len(window)-1], window[0])
}

func regimeOneHot(w *vectorWriter, prefix string, regime model.VolatilityRegime) {
	for _, r := range model.Regimes {
		w.addBool(prefix+"."+string(r), r == regime)
	}
}

// logNormalize ln(x)/25 截断到 [0,1]
func logNormalize(x float64) float64 {
	if x <= 1 {
		return 0
	}
	return numeric.ClampFloat(math.Log(x)/tvlLogScale, 0, 1)
}

func liquidityDepth(pool *model.NormalizedPool) float64 {
	return 1 / (1 + math.Max(0, numeric.ToFloat(pool.Volatility.PriceImpact10k)))
}

// poolAgeDays |now - created| 换算为天数，缺少创建时间时为 0
func poolAgeDays(now, created int64) float64 {
	if created <= 0 || now <= 0 {
		return 0
	}
	diff := now - created
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / secondsPerDay
}

// compositionScore 权重熵按 ln(N) 归一化到 [0,1]
func compositionScore(weights []float64) float64 {
	n := 0
	entropy := 0.0
	for _, wt := range weights {
		if wt > 0 {
			n++
			entropy -= wt * math.Log(wt)
		}
	}
	if n <= 1 {
		return 0
	}
	return numeric.ClampFloat(entropy/math.Log(float64(n)), 0, 1)
}

func volumeTrend(volume []decimal.Decimal) float64 {
	if len(volume) < 2 || volume[0].IsZero() {
		return 0
	}
	change := numeric.Quo(volume[len(volume)-1].Sub(volume[0]), volume[0])
	return numeric.ClampFloat(numeric.ToFloat(change), -volumeTrendCap, volumeTrendCap)
}

// relativeSlope 最小二乘斜率除以序列均值
func relativeSlope(values []decimal.Decimal) float64 {
	return numeric.ToFloat(numeric.Quo(series.Slope(values), series.Mean(values)))
}

func tokenDominance(tokens []model.TokenShare) []float64 {
	total := decimal.Zero
	for _, tok := range tokens {
		total = total.Add(tok.ValueUSD)
	}
	out := make([]float64, len(tokens))
	for i, tok := range tokens {
		out[i] = numeric.ToFloat(numeric.Quo(tok.ValueUSD, total))
	}
	return out
}

func orderbookImbalance(tokens []model.TokenShare) float64 {
	if len(tokens) < 2 {
		return 0
	}
	a, b := tokens[0].ValueUSD, tokens[1].ValueUSD
	return numeric.ToFloat(numeric.Quo(a.Sub(b), a.Add(b)))
}

// seasonality 按 UTC 小时与星期 (周日为 0) 以成交量加权，各组 L1 归一化
func seasonality(volume []series.Point) (hours, days []float64) {
	hours = make([]float64, 24)
	days = make([]float64, 7)
	for _, p := range volume {
		v := numeric.ToFloat(p.Value)
		if v <= 0 {
			continue
		}
		ts := time.Unix(p.Timestamp, 0).UTC()
		hours[ts.Hour()] += v
		days[int(ts.Weekday())] += v
	}
	l1Normalize(hours)
	l1Normalize(days)
	return hours, days
}

func l1Normalize(vals []float64) {
	total := 0.0
	for _, v := range vals {
		total += math.Abs(v)
	}
	if total == 0 {
		return
	}
	for i := range vals {
		vals[i] /= total
	}
}

func fromEnd(points []series.Point, back int) decimal.Decimal {
	idx := len(points) - back
	if idx < 0 || idx >= len(points) {
		return decimal.Zero
	}
	return points[idx].Value
}

func toFloats(ds []decimal.Decimal) []float64 {
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i] = numeric.ToFloat(d)
	}
	return out
}
