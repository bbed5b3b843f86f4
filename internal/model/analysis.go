package model

import (
	"github.com/shopspring/decimal"

	"github.com/life2you_mini/poolcore/internal/series"
)

// NormalizedPool 经过校验与规整的观测，所有序列按时间升序、去重、截断
type NormalizedPool struct {
	Observation
}

// AdvancedMetrics 由历史表现推导的风险收益指标
type AdvancedMetrics struct {
	Alpha            decimal.Decimal `json:"alpha"`
	Beta             decimal.Decimal `json:"beta"`
	Sharpe           decimal.Decimal `json:"sharpe"`
	Sortino          decimal.Decimal `json:"sortino"`
	MaxDrawdown      decimal.Decimal `json:"max_drawdown"`
	VaR              decimal.Decimal `json:"var"`
	Calmar           decimal.Decimal `json:"calmar"`
	Omega            decimal.Decimal `json:"omega"`
	AnnualizedReturn decimal.Decimal `json:"annualized_return"`

	// InsufficientHistory 至少一个指标因数据点不足而取 0
	InsufficientHistory bool `json:"insufficient_history"`
}

// VolatilityRegime 波动率区间
type VolatilityRegime string

const (
	RegimeLow     VolatilityRegime = "low"
	RegimeMedium  VolatilityRegime = "medium"
	RegimeHigh    VolatilityRegime = "high"
	RegimeExtreme VolatilityRegime = "extreme"
)

// Regimes 全部波动率区间，顺序即编码顺序
var Regimes = []VolatilityRegime{RegimeLow, RegimeMedium, RegimeHigh, RegimeExtreme}

// TechnicalIndicators 最新一期的技术指标
type TechnicalIndicators struct {
	RSI             decimal.Decimal  `json:"rsi_14"`
	MACD            decimal.Decimal  `json:"macd"`
	MACDSignal      decimal.Decimal  `json:"macd_signal"`
	MACDHistogram   decimal.Decimal  `json:"macd_histogram"`
	BollingerUpper  decimal.Decimal  `json:"bollinger_upper"`
	BollingerMiddle decimal.Decimal  `json:"bollinger_middle"`
	BollingerLower  decimal.Decimal  `json:"bollinger_lower"`
	ATR             decimal.Decimal  `json:"atr"`
	Regime          VolatilityRegime `json:"volatility_regime"`
}

// FeatureVector 扁平特征向量，Names 与 Values 一一对应
type FeatureVector struct {
	SchemaID string    `json:"schema_id"`
	Values   []float64 `json:"values"`
	Names    []string  `json:"-"`
}

// SignalKind 信号类型
type SignalKind string

const (
	SignalEntry       SignalKind = "entry"
	SignalExit        SignalKind = "exit"
	SignalRebalance   SignalKind = "rebalance"
	SignalRiskWarning SignalKind = "risk-warning"
)

// Signal 交易或风险信号
type Signal struct {
	Timestamp  int64           `json:"timestamp"`
	Kind       SignalKind      `json:"kind"`
	Strength   decimal.Decimal `json:"strength"`
	Confidence decimal.Decimal `json:"confidence"`
	Indicators []string        `json:"indicators"`
	Reason     string          `json:"reason,omitempty"`
}

// Strategy 金库提供的策略描述，优化器只读
type Strategy struct {
	Name             string         `json:"name"`
	IsActive         bool           `json:"is_active"`
	BalanceHistory   []series.Point `json:"performance_history"`
	MaxAllocationBps *int64         `json:"max_allocation_bps,omitempty"` // 为空时不限制，0 表示不分配
	MinWeightBps     int64          `json:"min_weight"`
	MaxWeightBps     int64          `json:"max_weight"`
}

// Allocation 单个策略的权重
type Allocation struct {
	Strategy  string          `json:"strategy"`
	WeightBps int64           `json:"weight_bps"`
	Sharpe    decimal.Decimal `json:"sharpe"`
}

// AllocationPlan 策略权重分配方案
type AllocationPlan struct {
	Allocations []Allocation `json:"allocations"`
	TotalBps    int64        `json:"total_bps"`
}

// RebalanceMove 一次再平衡调仓
type RebalanceMove struct {
	From      string `json:"from"`
	To        string `json:"to"`
	AmountBps int64  `json:"amount_bps"`
}

// Severity 告警级别
type Severity string

const (
	SeverityNormal    Severity = "normal"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Alert 异常检测事件
type Alert struct {
	ID         string          `json:"id"`
	PoolID     string          `json:"pool_id"`
	Metric     string          `json:"metric"`
	Severity   Severity        `json:"severity"`
	Timestamp  int64           `json:"timestamp"`
	OldValue   decimal.Decimal `json:"old_value"`
	NewValue   decimal.Decimal `json:"new_value"`
	ChangeBps  decimal.Decimal `json:"change_bps"`
	ZScore     decimal.Decimal `json:"z_score"`
	Mean       decimal.Decimal `json:"mean"`
	StdDev     decimal.Decimal `json:"std_dev"`
	WindowSize int             `json:"window_size"`
}
