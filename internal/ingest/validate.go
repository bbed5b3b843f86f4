package ingest

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/life2you_mini/poolcore/internal/errs"
	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/series"
)

const (
	// DefaultMaxHistoryLength 默认保留的最长历史点数
	DefaultMaxHistoryLength = 365
)

// DefaultWeightTolerance 代币权重之和允许的偏差
var DefaultWeightTolerance = decimal.New(1, -6)

// Options 校验与规整参数
type Options struct {
	MaxHistoryLength int
	WeightTolerance  decimal.Decimal
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		MaxHistoryLength: DefaultMaxHistoryLength,
		WeightTolerance:  DefaultWeightTolerance,
	}
}

// Validate 校验观测，所有违规项合并为一个 InvalidObservation 错误
func Validate(obs *model.Observation, opts Options) error {
	if obs == nil {
		return errs.New(errs.InvalidObservation, "ingest.validate", "观测为空")
	}
	if opts.WeightTolerance.IsZero() {
		opts.WeightTolerance = DefaultWeightTolerance
	}

	var err error
	add := func(format string, args ...interface{}) {
		err = multierr.Append(err, fmt.Errorf(format, args...))
	}

	if obs.PoolID == "" {
		add("pool_id 不能为空")
	}
	if !obs.PoolKind.Valid() {
		add("未知的池子类型: %q", obs.PoolKind)
	}
	if obs.Timestamp <= 0 {
		add("时间戳无效: %d", obs.Timestamp)
	}

	nonNegative := map[string]decimal.Decimal{
		"tvl":                         obs.TVL,
		"volume_24h":                  obs.Volume24h,
		"volume_7d":                   obs.Volume7d,
		"liquidity":                   obs.Liquidity,
		"fees.swap":                   obs.Fees.Swap,
		"fees.protocol":               obs.Fees.Protocol,
		"fees.lp":                     obs.Fees.LP,
		"fees.withdrawal":             obs.Fees.Withdrawal,
		"fees.performance":            obs.Fees.Performance,
		"apy.total":                   obs.APY.Total,
		"apy.base":                    obs.APY.Base,
		"apy.reward":                  obs.APY.Reward,
		"apy.farming":                 obs.APY.Farming,
		"volatility.daily":            obs.Volatility.Daily,
		"volatility.weekly":           obs.Volatility.Weekly,
		"volatility.monthly":          obs.Volatility.Monthly,
		"volatility.price_impact_1k":  obs.Volatility.PriceImpact1k,
		"volatility.price_impact_10k": obs.Volatility.PriceImpact10k,
		"users.avg_position_size":     obs.Users.AvgPositionSize,
		"users.avg_holding_period":    obs.Users.AvgHoldingPeriod,
	}
	for _, name := range sortedKeys(nonNegative) {
		if nonNegative[name].IsNegative() {
			add("%s 不能为负: %s", name, nonNegative[name])
		}
	}

	validateTokens(obs.Tokens, opts.WeightTolerance, add)

	one := decimal.NewFromInt(1)
	if obs.ILRisk.PriceCorrelation.LessThan(one.Neg()) || obs.ILRisk.PriceCorrelation.GreaterThan(one) {
		add("价格相关系数超出 [-1,1]: %s", obs.ILRisk.PriceCorrelation)
	}
	if obs.ILRisk.MaxProjectedIL.IsPositive() {
		add("最大预估无常损失必须 <= 0: %s", obs.ILRisk.MaxProjectedIL)
	}
	if obs.Users.Concentration.IsNegative() || obs.Users.Concentration.GreaterThan(one) {
		add("用户集中度超出 [0,1]: %s", obs.Users.Concentration)
	}
	if obs.Users.Total < 0 || obs.Users.Active < 0 {
		add("用户数不能为负")
	}

	scores := []struct {
		name  string
		value int
	}{
		{"il_risk.score", obs.ILRisk.Score},
		{"apy.stability_score", obs.APY.StabilityScore},
		{"volatility.rank", obs.Volatility.Rank},
		{"volatility.price_stability_score", obs.Volatility.PriceStabilityScore},
		{"security.audit_score", obs.Security.AuditScore},
		{"security.contract_risk", obs.Security.ContractRisk},
		{"security.centralization_risk", obs.Security.CentralizationRisk},
	}
	for _, s := range scores {
		if s.value < 0 || s.value > 100 {
			add("%s 超出 [0,100]: %d", s.name, s.value)
		}
	}

	for _, ev := range obs.Security.Events {
		if !validSeverity(ev.Severity) {
			add("未知的安全事件级别: %q", ev.Severity)
		}
		if ev.ResolvedAt != nil && *ev.ResolvedAt < ev.Timestamp {
			add("安全事件解决时间早于发生时间: %d", ev.Timestamp)
		}
	}

	for _, chain := range sortedKeys(obs.Gas) {
		gas := obs.Gas[chain]
		if gas.AvgCost.IsNegative() || gas.TokenPrice.IsNegative() || gas.CostUSD.IsNegative() {
			add("链 %s 的 gas 指标不能为负", chain)
		}
		for _, h := range gas.PeakHours {
			if h < 0 || h > 23 {
				add("链 %s 的高峰时段超出 0..23: %d", chain, h)
			}
		}
	}

	history := map[string][]series.Point{
		"daily_returns": obs.PerformanceHistory.DailyReturns,
		"volume":        obs.PerformanceHistory.Volume,
		"tvl":           obs.PerformanceHistory.TVL,
		"il":            obs.PerformanceHistory.IL,
	}
	for _, name := range sortedKeys(history) {
		if !series.StrictlyIncreasing(history[name]) {
			add("performance_history.%s 的时间戳必须严格递增", name)
		}
	}
	for _, p := range obs.PerformanceHistory.TVL {
		if p.Value.IsNegative() {
			add("performance_history.tvl 含负值: %s", p.Value)
			break
		}
	}
	for _, p := range obs.PerformanceHistory.Volume {
		if p.Value.IsNegative() {
			add("performance_history.volume 含负值: %s", p.Value)
			break
		}
	}

	if obs.Market != nil {
		if obs.Market.PlatformTVL.Valid && !obs.Market.PlatformTVL.Decimal.IsPositive() {
			add("market.platform_tvl 必须大于0")
		}
		if obs.Market.EfficiencyCoefficient.Valid && obs.Market.EfficiencyCoefficient.Decimal.IsNegative() {
			add("market.efficiency_coefficient 不能为负")
		}
	}
	for _, pool := range sortedKeys(obs.CurrentWeights) {
		w := obs.CurrentWeights[pool]
		if w < 0 || w > 10000 {
			add("current_weights.%s 超出 [0,10000]: %d", pool, w)
		}
	}
	for _, pool := range sortedKeys(obs.TargetWeights) {
		w := obs.TargetWeights[pool]
		if w < 0 || w > 10000 {
			add("target_weights.%s 超出 [0,10000]: %d", pool, w)
		}
	}

	if err != nil {
		return errs.Wrap(errs.InvalidObservation, "ingest.validate", err)
	}
	return nil
}

func validateTokens(tokens []model.TokenShare, tolerance decimal.Decimal, add func(string, ...interface{})) {
	if len(tokens) == 0 {
		add("代币列表不能为空")
		return
	}
	sum := decimal.Zero
	for _, tok := range tokens {
		if tok.Weight.IsNegative() {
			add("代币 %s 的权重不能为负", tok.Symbol)
		}
		if tok.Amount.IsNegative() {
			add("代币 %s 的数量不能为负", tok.Symbol)
		}
		if tok.ValueUSD.IsNegative() {
			add("代币 %s 的美元价值不能为负", tok.Symbol)
		}
		sum = sum.Add(tok.Weight)
	}
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(tolerance) {
		add("代币权重之和必须为 1: %s", sum)
	}
}

func validSeverity(s model.EventSeverity) bool {
	for _, known := range model.EventSeverities {
		if s == known {
			return true
		}
	}
	return false
}
