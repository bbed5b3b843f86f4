package model

import (
	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/series"
)

// PoolKind 池子类型
type PoolKind string

const (
	PoolKindStable       PoolKind = "stable"
	PoolKindVolatile     PoolKind = "volatile"
	PoolKindWeighted     PoolKind = "weighted"
	PoolKindConcentrated PoolKind = "concentrated"
	PoolKindHybrid       PoolKind = "hybrid"
)

// PoolKinds 全部池子类型，顺序即编码顺序
var PoolKinds = []PoolKind{
	PoolKindStable,
	PoolKindVolatile,
	PoolKindWeighted,
	PoolKindConcentrated,
	PoolKindHybrid,
}

// Valid 是否为已知池子类型
func (k PoolKind) Valid() bool {
	for _, known := range PoolKinds {
		if k == known {
			return true
		}
	}
	return false
}

// EventSeverity 安全事件严重程度
type EventSeverity string

const (
	EventSeverityLow      EventSeverity = "low"
	EventSeverityMedium   EventSeverity = "medium"
	EventSeverityHigh     EventSeverity = "high"
	EventSeverityCritical EventSeverity = "critical"
)

// EventSeverities 事件严重程度，顺序即编码顺序
var EventSeverities = []EventSeverity{
	EventSeverityLow,
	EventSeverityMedium,
	EventSeverityHigh,
	EventSeverityCritical,
}

// Observation 单个池子在某一时刻的快照
type Observation struct {
	ObservationID string   `json:"observation_id,omitempty"`
	PoolID        string   `json:"pool_id"`
	PoolName      string   `json:"pool_name"`
	Platform      string   `json:"platform"`
	Chain         string   `json:"chain"`
	PoolKind      PoolKind `json:"pool_kind"`
	Timestamp     int64    `json:"timestamp"`
	CreatedAt     int64    `json:"created_at"`

	TVL       decimal.Decimal `json:"tvl"`
	Volume24h decimal.Decimal `json:"volume_24h"`
	Volume7d  decimal.Decimal `json:"volume_7d"`
	Liquidity decimal.Decimal `json:"liquidity"`
	Fees      FeeStructure    `json:"fees"`

	Tokens     []TokenShare          `json:"tokens"`
	APY        APYBreakdown          `json:"apy"`
	ILRisk     ILRisk                `json:"il_risk"`
	Volatility VolatilityInputs      `json:"volatility"`
	Security   SecurityInputs        `json:"security"`
	Gas        map[string]GasMetrics `json:"gas,omitempty"`
	Users      UserMetrics           `json:"users"`

	PerformanceHistory PerformanceHistory `json:"performance_history"`

	Market *MarketInputs `json:"market,omitempty"`

	// 当前与目标组合权重（基点），用于漂移再平衡信号
	CurrentWeights map[string]int64 `json:"current_weights,omitempty"`
	TargetWeights  map[string]int64 `json:"target_weights,omitempty"`
}

// FeeStructure 费率结构，均为非负小数
type FeeStructure struct {
	Swap        decimal.Decimal `json:"swap"`
	Protocol    decimal.Decimal `json:"protocol"`
	LP          decimal.Decimal `json:"lp"`
	Withdrawal  decimal.Decimal `json:"withdrawal"`
	Performance decimal.Decimal `json:"performance"`
}

// TokenShare 池中单个代币的份额
type TokenShare struct {
	Symbol   string          `json:"symbol"`
	Weight   decimal.Decimal `json:"weight"`
	Amount   decimal.Decimal `json:"amount"`
	ValueUSD decimal.Decimal `json:"value_usd"`
}

// APYBreakdown 收益率构成
type APYBreakdown struct {
	Total          decimal.Decimal `json:"total"`
	Base           decimal.Decimal `json:"base"`
	Reward         decimal.Decimal `json:"reward"`
	Farming        decimal.Decimal `json:"farming"`
	StabilityScore int             `json:"stability_score"`
	History        []series.Point  `json:"history"`
}

// ILRisk 无常损失风险输入
type ILRisk struct {
	Score            int             `json:"score"`
	History          []series.Point  `json:"history"`
	PriceCorrelation decimal.Decimal `json:"price_correlation"`
	MaxProjectedIL   decimal.Decimal `json:"max_projected_il"`
}

// VolatilityInputs 波动率输入
type VolatilityInputs struct {
	Daily               decimal.Decimal `json:"daily"`
	Weekly              decimal.Decimal `json:"weekly"`
	Monthly             decimal.Decimal `json:"monthly"`
	PriceImpact1k       decimal.Decimal `json:"price_impact_1k"`
	PriceImpact10k      decimal.Decimal `json:"price_impact_10k"`
	Rank                int             `json:"rank"`
	PriceStabilityScore int             `json:"price_stability_score"`
}

// SecurityEvent 安全事件
type SecurityEvent struct {
	Timestamp  int64         `json:"timestamp"`
	Severity   EventSeverity `json:"severity"`
	ResolvedAt *int64        `json:"resolved_at,omitempty"`
}

// SecurityInputs 安全评分输入
type SecurityInputs struct {
	AuditScore         int             `json:"audit_score"`
	ContractRisk       int             `json:"contract_risk"`
	CentralizationRisk int             `json:"centralization_risk"`
	Events             []SecurityEvent `json:"events"`
}

// GasMetrics 单条链的 gas 指标
type GasMetrics struct {
	AvgCost    decimal.Decimal `json:"avg_cost"`
	TokenPrice decimal.Decimal `json:"token_price"`
	CostUSD    decimal.Decimal `json:"cost_usd"`
	PeakHours  []int           `json:"peak_hours"`
	History    []series.Point  `json:"history"`
}

// UserMetrics 用户指标
type UserMetrics struct {
	Total            int64           `json:"total"`
	Active           int64           `json:"active"`
	AvgPositionSize  decimal.Decimal `json:"avg_position_size"`
	AvgHoldingPeriod decimal.Decimal `json:"avg_holding_period"`
	Concentration    decimal.Decimal `json:"concentration"`
}

// PerformanceHistory 历史表现，时间戳严格递增
type PerformanceHistory struct {
	DailyReturns []series.Point `json:"daily_returns"`
	Volume       []series.Point `json:"volume"`
	TVL          []series.Point `json:"tvl"`
	IL           []series.Point `json:"il"`
}

// MarketInputs 可选的市场输入
type MarketInputs struct {
	BenchmarkReturns      []series.Point      `json:"benchmark_returns,omitempty"`
	PlatformTVL           decimal.NullDecimal `json:"platform_tvl"`
	EfficiencyCoefficient decimal.NullDecimal `json:"efficiency_coefficient"`
}
