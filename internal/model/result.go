package model

import (
	"github.com/shopspring/decimal"
)

// Flag 结果中的状态标记
type Flag string

const (
	FlagInvalidObservation  Flag = "invalid_observation"
	FlagInsufficientHistory Flag = "insufficient_history"
	FlagNumericOverflow     Flag = "numeric_overflow"
	FlagPhaseTimeout        Flag = "phase_timeout"
	FlagDetectorPoisoned    Flag = "detector_poisoned"
)

// Phase 编排阶段
type Phase string

const (
	PhaseIngest    Phase = "ingest"
	PhaseStats     Phase = "stats"
	PhaseFeatures  Phase = "features"
	PhaseOptimizer Phase = "optimizer"
	PhaseAlerts    Phase = "alerts"
)

// MissingPhaseFlag 某阶段未执行
func MissingPhaseFlag(p Phase) Flag {
	return Flag("missing_phase:" + string(p))
}

// PhaseError 阶段级错误描述
type PhaseError struct {
	Phase   Phase  `json:"phase"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result 单个观测的分析结果
type Result struct {
	ObservationID       string               `json:"observation_id"`
	PoolID              string               `json:"pool_id"`
	Timestamp           int64                `json:"timestamp"`
	SchemaVersion       string               `json:"schema_version"`
	AdvancedMetrics     *AdvancedMetrics     `json:"advanced_metrics,omitempty"`
	TechnicalIndicators *TechnicalIndicators `json:"technical_indicators,omitempty"`
	FeatureVector       *FeatureVector       `json:"feature_vector,omitempty"`
	PositionSize        decimal.Decimal      `json:"position_size"`
	RiskAdjustedAPY     decimal.Decimal      `json:"risk_adjusted_apy"`
	RiskLevel           string               `json:"risk_level,omitempty"`
	Signals             []Signal             `json:"signals"`
	AllocationPlan      *AllocationPlan      `json:"allocation_plan,omitempty"`
	RebalanceMoves      []RebalanceMove      `json:"rebalance_moves,omitempty"`
	OptimalGasHour      map[string]int       `json:"optimal_gas_hour,omitempty"`
	Alerts              []Alert              `json:"alerts"`
	Flags               []Flag               `json:"flags"`
	Errors              []PhaseError         `json:"errors,omitempty"`
}

// AddFlag 添加标记，重复时忽略
func (r *Result) AddFlag(f Flag) {
	for _, existing := range r.Flags {
		if existing == f {
			return
		}
	}
	r.Flags = append(r.Flags, f)
}

// HasFlag 是否带有某标记
func (r *Result) HasFlag(f Flag) bool {
	for _, existing := range r.Flags {
		if existing == f {
			return true
		}
	}
	return false
}

// SignalsOf 按类型筛选信号
func (r *Result) SignalsOf(kind SignalKind) []Signal {
	var out []Signal
	for _, s := range r.Signals {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
